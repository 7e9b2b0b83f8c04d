package filestore

import (
	"sync"

	"github.com/layerfs/scmstore/api"
	"github.com/layerfs/scmstore/internal/contenthash"
)

// pointerOrigin is the one field of FetchState shared across threads: the
// large-file remote's writeback callback reads origins while the state
// machine's probes insert and raise them. Many readers, rare
// single-writer inserts, so a plain RWMutex suffices.
type pointerOrigin struct {
	mu sync.RWMutex
	m  map[contenthash.Hash]api.TierOrigin
}

func newPointerOrigin() *pointerOrigin {
	return &pointerOrigin{m: make(map[contenthash.Hash]api.TierOrigin)}
}

func (p *pointerOrigin) get(h contenthash.Hash) (api.TierOrigin, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	o, ok := p.m[h]
	return o, ok
}

// insertOrRaise records origin for h. Once h has been seen at Cache, it
// stays Cache regardless of later Local sightings.
func (p *pointerOrigin) insertOrRaise(h contenthash.Hash, origin api.TierOrigin) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if existing, ok := p.m[h]; ok {
		p.m[h] = api.Raise(existing, origin)
		return
	}
	p.m[h] = origin
}
