// Package diskindex implements LocalIndexedStore over an embedded bbolt
// database, grounded on rclone's bolt-backed cache backend. One instance
// per role (file-content Local, file-content Cache, aux-data Local,
// aux-data Cache) is expected — they're independent databases, not shared
// buckets in one file, since their write-lock and eviction policies
// differ.
package diskindex

import (
	"encoding/binary"
	"fmt"
	"path/filepath"
	"sync"

	"go.etcd.io/bbolt"

	"github.com/layerfs/scmstore/api"
	"github.com/layerfs/scmstore/internal/contenthash"
	"github.com/layerfs/scmstore/service/backend"
	"github.com/layerfs/scmstore/service/lazyvalue"
)

var entriesBucket = []byte("entries")

// Store is a single bbolt-backed indexed log, optionally watching its own
// file for writes committed by another process sharing the same root
// (see OpenWatched).
type Store struct {
	mu   sync.RWMutex
	db   *bbolt.DB
	path string

	watcher   *Watcher
	changedMu sync.Mutex
	changed   bool
}

// Open opens (creating if necessary) the bbolt database at path.
func Open(path string) (*Store, error) {
	db, err := bbolt.Open(path, 0o644, nil)
	if err != nil {
		return nil, fmt.Errorf("diskindex: opening %s: %w", path, err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(entriesBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db, path: path}, nil
}

// OpenWatched is Open plus a Watcher on path's directory: once another
// process writes to path (e.g. a sibling build rewriting the shared
// store root), Refresh reopens the bbolt handle to pick up its commit.
func OpenWatched(path string) (*Store, error) {
	s, err := Open(path)
	if err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		s.Close()
		return nil, err
	}
	w, err := NewWatcher(filepath.Dir(abs), func(name string) {
		if name == abs {
			s.markChanged()
		}
	})
	if err != nil {
		s.Close()
		return nil, err
	}
	s.watcher = w
	return s, nil
}

func (s *Store) markChanged() {
	s.changedMu.Lock()
	s.changed = true
	s.changedMu.Unlock()
}

// GetRawEntry implements backend.LocalIndexedStore.
func (s *Store) GetRawEntry(key api.Key) (backend.IndexedEntry, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var raw []byte
	err := s.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(entriesBucket).Get(encodeKey(key))
		if v != nil {
			raw = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil {
		return backend.IndexedEntry{}, false, err
	}
	if raw == nil {
		return backend.IndexedEntry{}, false, nil
	}
	entry, err := decodeEntry(raw)
	if err != nil {
		return backend.IndexedEntry{}, false, err
	}
	entry.Key = key
	return entry, true, nil
}

// PutEntry implements backend.LocalIndexedStore. Writes are batched under
// the store's write lock; bbolt itself also serializes writers per file.
func (s *Store) PutEntry(entry backend.IndexedEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(entriesBucket).Put(encodeKey(entry.Key), encodeEntry(entry))
	})
}

// FlushLog implements backend.LocalIndexedStore: bbolt syncs on every
// committed write transaction, so there is nothing further to flush; the
// call exists to satisfy the contract for backends that do buffer.
func (s *Store) FlushLog() error { return nil }

// Refresh satisfies filestore.Refreshable. A Store opened with plain Open
// never needs to re-open: bbolt always reads a consistent, already-
// committed view of its own writes. A Store opened with OpenWatched
// reopens its bbolt handle once the watcher observed an external write to
// the file since the last Refresh, picking up the other process's commit.
func (s *Store) Refresh() error {
	if s.watcher == nil {
		return nil
	}
	s.changedMu.Lock()
	changed := s.changed
	s.changed = false
	s.changedMu.Unlock()
	if !changed {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("diskindex: reopening %s: %w", s.path, err)
	}
	db, err := bbolt.Open(s.path, 0o644, nil)
	if err != nil {
		return fmt.Errorf("diskindex: reopening %s: %w", s.path, err)
	}
	s.db = db
	return nil
}

// Close releases the underlying database handle and any watcher.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.watcher != nil {
		s.watcher.Close()
	}
	return s.db.Close()
}

// OpenRole is a convenience constructor for the common "<root>/<role>.db"
// layout used to stand up the four LocalIndexedStore roles FileStore
// expects (local/cache content, local/cache aux-data).
func OpenRole(root, role string) (*Store, error) {
	return Open(filepath.Join(root, role+".db"))
}

func encodeKey(key api.Key) []byte {
	pathBytes := []byte(key.Path)
	out := make([]byte, 0, len(pathBytes)+1+contenthash.Size)
	out = append(out, pathBytes...)
	out = append(out, 0)
	out = append(out, key.ContentId.Bytes()...)
	return out
}

// encodeEntry serializes: [8 bytes size][4 bytes flags][1 byte is_lfs][content...]
func encodeEntry(entry backend.IndexedEntry) []byte {
	out := make([]byte, 13+len(entry.Content))
	binary.LittleEndian.PutUint64(out[0:8], uint64(entry.Meta.Size))
	binary.LittleEndian.PutUint32(out[8:12], entry.Meta.Flags)
	if entry.IsLFS {
		out[12] = 1
	}
	copy(out[13:], entry.Content)
	return out
}

func decodeEntry(raw []byte) (backend.IndexedEntry, error) {
	if len(raw) < 13 {
		return backend.IndexedEntry{}, fmt.Errorf("diskindex: corrupt entry: %d bytes", len(raw))
	}
	size := int64(binary.LittleEndian.Uint64(raw[0:8]))
	flags := binary.LittleEndian.Uint32(raw[8:12])
	isLFS := raw[12] != 0
	content := append([]byte(nil), raw[13:]...)
	return backend.IndexedEntry{
		Content: content,
		Meta:    lazyvalue.Metadata{Size: size, Flags: flags},
		IsLFS:   isLFS,
	}, nil
}

var _ backend.LocalIndexedStore = (*Store)(nil)
