// Package memcache implements DistributedMemoryCache over Redis.
package memcache

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/layerfs/scmstore/api"
	"github.com/layerfs/scmstore/internal/logging"
	"github.com/layerfs/scmstore/service/backend"
	"github.com/layerfs/scmstore/service/lazyvalue"
)

// Store is a DistributedMemoryCache backed by a Redis client. Per-key
// errors are surfaced but never abort the batch, matching the contract's
// best-effort semantics.
type Store struct {
	rdb    *redis.Client
	prefix string
}

// New wraps an existing Redis client. prefix namespaces keys so several
// stores can share one Redis instance.
func New(rdb *redis.Client, prefix string) *Store {
	return &Store{rdb: rdb, prefix: prefix}
}

func (s *Store) redisKey(key api.Key) string {
	return s.prefix + ":" + key.Path + ":" + key.ContentId.Hex()
}

// GetDataIter implements backend.DistributedMemoryCache: one pipelined
// MGET for the whole batch, so a miss for one key never blocks the rest.
func (s *Store) GetDataIter(ctx context.Context, keys []api.Key) ([]backend.Result[backend.McData], error) {
	if len(keys) == 0 {
		return nil, nil
	}
	redisKeys := make([]string, len(keys))
	for i, k := range keys {
		redisKeys[i] = s.redisKey(k)
	}

	values, err := s.rdb.MGet(ctx, redisKeys...).Result()
	if err != nil {
		return nil, fmt.Errorf("memcache: MGET: %w", err)
	}

	out := make([]backend.Result[backend.McData], 0, len(keys))
	for i, key := range keys {
		if values[i] == nil {
			continue // miss; absent from the result, not an error
		}
		raw, ok := values[i].(string)
		if !ok {
			out = append(out, backend.Result[backend.McData]{Key: key, Err: fmt.Errorf("memcache: unexpected value type for %s", key.Path)})
			continue
		}
		data, err := decodeMcData([]byte(raw))
		if err != nil {
			out = append(out, backend.Result[backend.McData]{Key: key, Err: err})
			continue
		}
		data.Key = key
		out = append(out, backend.Result[backend.McData]{Key: key, Value: data})
	}
	return out, nil
}

// AddMcData implements backend.DistributedMemoryCache.
func (s *Store) AddMcData(ctx context.Context, entry backend.McData) error {
	if err := s.rdb.Set(ctx, s.redisKey(entry.Key), encodeMcData(entry), 0).Err(); err != nil {
		logging.Warningf("memcache: failed to cache %s: %v", entry.Key.Path, err)
		return err
	}
	return nil
}

// encodeMcData packs [8 bytes size][4 bytes flags][content...].
func encodeMcData(entry backend.McData) []byte {
	out := make([]byte, 12+len(entry.Content))
	binary.LittleEndian.PutUint64(out[0:8], uint64(entry.Meta.Size))
	binary.LittleEndian.PutUint32(out[8:12], entry.Meta.Flags)
	copy(out[12:], entry.Content)
	return out
}

func decodeMcData(raw []byte) (backend.McData, error) {
	if len(raw) < 12 {
		return backend.McData{}, errors.New("memcache: corrupt entry")
	}
	size := int64(binary.LittleEndian.Uint64(raw[0:8]))
	flags := binary.LittleEndian.Uint32(raw[8:12])
	content := append([]byte(nil), raw[12:]...)
	return backend.McData{Content: content, Meta: lazyvalue.Metadata{Size: size, Flags: flags}}, nil
}

var _ backend.DistributedMemoryCache = (*Store)(nil)
