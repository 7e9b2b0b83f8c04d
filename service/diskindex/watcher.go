package diskindex

import (
	"github.com/fsnotify/fsnotify"

	"github.com/layerfs/scmstore/internal/logging"
)

// Watcher observes a directory for externally-written pack/index files
// (written by another process sharing the same on-disk store) and invokes
// onChange so the caller can force a rescan. Store.Refresh, reached via
// FileStore.Refresh, uses this to reopen its bbolt handle after an
// external write.
type Watcher struct {
	w *fsnotify.Watcher
}

// NewWatcher starts watching dir.
func NewWatcher(dir string, onChange func(name string)) (*Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := w.Add(dir); err != nil {
		w.Close()
		return nil, err
	}
	go func() {
		for {
			select {
			case event, ok := <-w.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
					onChange(event.Name)
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				logging.Warningf("diskindex: watcher error: %v", err)
			}
		}
	}()
	return &Watcher{w: w}, nil
}

// Close stops watching.
func (w *Watcher) Close() error { return w.w.Close() }
