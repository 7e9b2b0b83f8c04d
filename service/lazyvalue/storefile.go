package lazyvalue

import "github.com/layerfs/scmstore/api"

// StoreFile is the per-key result bundle: the content payload and/or
// derived aux data the orchestrator managed to assemble.
type StoreFile struct {
	Content *Value
	AuxData *api.AuxData
}

// Union merges two StoreFile values field by field, receiver-biased: a
// field already set on the receiver is kept even if incoming sets it too.
// Callers merge newly probed attributes into what's already accumulated
// as existing.Union(incoming), never the other way around.
func (existing StoreFile) Union(incoming StoreFile) StoreFile {
	out := existing
	if out.Content == nil {
		out.Content = incoming.Content
	}
	if out.AuxData == nil {
		out.AuxData = incoming.AuxData
	}
	return out
}

// Attrs returns the mask of fields currently present.
func (sf StoreFile) Attrs() api.FileAttributes {
	var a api.FileAttributes
	if sf.Content != nil {
		a |= api.Content
	}
	if sf.AuxData != nil {
		a |= api.AuxData
	}
	return a
}

// Mask drops any field not named by m.
func (sf StoreFile) Mask(m api.FileAttributes) StoreFile {
	out := sf
	if m&api.Content == 0 {
		out.Content = nil
	}
	if m&api.AuxData == 0 {
		out.AuxData = nil
	}
	return out
}
