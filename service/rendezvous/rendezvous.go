// Package rendezvous implements a generic batch-coalescing layer that sits
// in front of any backend whose latency improves with batching: it
// deduplicates concurrent requests for overlapping keys into one backend
// call, and optionally delays dispatch briefly so more keys accumulate.
package rendezvous

import (
	"context"
	"sync"
	"time"
)

// Controller decides when a RendezVous starts a new batch. It is called
// once per request that arrives, and is expected to carry its own
// internal state to make that decision (e.g. a tunable knob, a queue-depth
// heuristic).
type Controller interface {
	// ShouldBatch reports whether batching is enabled at all.
	ShouldBatch() bool
	// WaitForDispatch returns a channel that closes once the controller
	// wants to kick off the accumulated batch.
	WaitForDispatch(ctx context.Context) <-chan struct{}
	// EarlyDispatchThreshold: a staged key set at or above this size is
	// dispatched immediately rather than waiting.
	EarlyDispatchThreshold() int
}

// Stats are the counters the spec requires RendezVous to surface.
type Stats struct {
	mu                     sync.Mutex
	DispatchNoBatch        int64
	DispatchBatchScheduled int64
	DispatchBatchEarly     int64
	KeysDeduplicated       int64
	KeysDispatched         int64
	Inflight               int64
	fetchCompletionTotalMs int64
	fetchCompletionCount   int64
}

func (s *Stats) addInflight(delta int64) {
	s.mu.Lock()
	s.Inflight += delta
	s.mu.Unlock()
}

func (s *Stats) recordCompletion(d time.Duration) {
	s.mu.Lock()
	s.fetchCompletionTotalMs += d.Milliseconds()
	s.fetchCompletionCount++
	s.mu.Unlock()
}

// FetchCompletionTimeMs returns the mean dispatch-call duration observed
// so far, in milliseconds.
func (s *Stats) FetchCompletionTimeMs() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fetchCompletionCount == 0 {
		return 0
	}
	return s.fetchCompletionTotalMs / s.fetchCompletionCount
}

// BackendCall is the function a caller supplies to actually perform the
// batched lookup.
type BackendCall[K comparable, V any] func(ctx context.Context, keys []K) (map[K]V, error)

// stagingSlot is the one in-flight batch a RendezVous may hold at a time.
type stagingSlot[K comparable, V any] struct {
	keys        map[K]struct{}
	earlyNotify chan struct{}
	notifyOnce  sync.Once
	done        chan struct{}
	result      map[K]V
	err         error
}

func (s *stagingSlot[K, V]) notifyEarly() {
	s.notifyOnce.Do(func() { close(s.earlyNotify) })
}

// RendezVous coalesces concurrent Dispatch calls for the same backend into
// as few calls as possible. At most one staging slot is active at a time;
// it is cleared exactly once per dispatch, immediately before invoking the
// backend call.
type RendezVous[K comparable, V any] struct {
	mu         sync.Mutex
	staging    *stagingSlot[K, V]
	controller Controller
	Stats      *Stats
}

// New constructs a RendezVous fronting a particular backend call shape.
func New[K comparable, V any](controller Controller) *RendezVous[K, V] {
	return &RendezVous[K, V]{controller: controller, Stats: &Stats{}}
}

// Dispatch resolves keys, either immediately or by joining/starting a
// staged batch, and returns a map keyed by the caller's own requested
// keys; a key absent from the backend's response is simply absent from
// the returned map (the caller should treat that as "no value").
func (r *RendezVous[K, V]) Dispatch(ctx context.Context, keys []K, call BackendCall[K, V]) (map[K]V, error) {
	if !r.controller.ShouldBatch() || len(keys) >= r.controller.EarlyDispatchThreshold() {
		return r.dispatchNotBatched(ctx, keys, call)
	}
	return r.dispatchBatched(ctx, keys, call)
}

func (r *RendezVous[K, V]) dispatchNotBatched(ctx context.Context, keys []K, call BackendCall[K, V]) (map[K]V, error) {
	r.Stats.mu.Lock()
	r.Stats.DispatchNoBatch++
	r.Stats.mu.Unlock()

	full, err := dispatchWithStats(ctx, call, keys, r.Stats)
	if err != nil {
		return nil, err
	}
	out := make(map[K]V, len(keys))
	for _, k := range keys {
		if v, ok := full[k]; ok {
			out[k] = v
		}
	}
	return out, nil
}

func (r *RendezVous[K, V]) dispatchBatched(ctx context.Context, keys []K, call BackendCall[K, V]) (map[K]V, error) {
	r.mu.Lock()

	var slot *stagingSlot[K, V]
	deduplicated := int64(0)

	if r.staging == nil {
		slot = &stagingSlot[K, V]{
			keys:        make(map[K]struct{}, len(keys)),
			earlyNotify: make(chan struct{}),
			done:        make(chan struct{}),
		}
		for _, k := range keys {
			slot.keys[k] = struct{}{}
		}
		r.staging = slot
		r.launch(ctx, slot, call)
	} else {
		slot = r.staging
		for _, k := range keys {
			if _, exists := slot.keys[k]; exists {
				deduplicated++
			} else {
				slot.keys[k] = struct{}{}
			}
		}
		if len(slot.keys) >= r.controller.EarlyDispatchThreshold() {
			slot.notifyEarly()
		}
	}
	r.mu.Unlock()

	r.Stats.mu.Lock()
	r.Stats.KeysDeduplicated += deduplicated
	r.Stats.mu.Unlock()

	select {
	case <-slot.done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if slot.err != nil {
		return nil, slot.err
	}
	out := make(map[K]V, len(keys))
	for _, k := range keys {
		if v, ok := slot.result[k]; ok {
			out[k] = v
		}
	}
	return out, nil
}

// launch starts the goroutine that races the controller's wait-for-dispatch
// delay against the early-dispatch notification, then takes the (by then
// possibly grown) key set out of the staging slot and invokes the backend.
func (r *RendezVous[K, V]) launch(ctx context.Context, slot *stagingSlot[K, V], call BackendCall[K, V]) {
	go func() {
		var early bool
		select {
		case <-r.controller.WaitForDispatch(ctx):
			early = false
		case <-slot.earlyNotify:
			early = true
		}

		r.mu.Lock()
		if r.staging == slot {
			r.staging = nil
		}
		r.mu.Unlock()

		r.Stats.mu.Lock()
		if early {
			r.Stats.DispatchBatchEarly++
		} else {
			r.Stats.DispatchBatchScheduled++
		}
		r.Stats.mu.Unlock()

		keys := make([]K, 0, len(slot.keys))
		for k := range slot.keys {
			keys = append(keys, k)
		}

		result, err := dispatchWithStats(ctx, call, keys, r.Stats)
		slot.result, slot.err = result, err
		close(slot.done)
	}()
}

func dispatchWithStats[K comparable, V any](ctx context.Context, call BackendCall[K, V], keys []K, stats *Stats) (map[K]V, error) {
	stats.mu.Lock()
	stats.KeysDispatched += int64(len(keys))
	stats.mu.Unlock()

	stats.addInflight(1)
	start := time.Now()
	result, err := call(ctx, keys)
	stats.recordCompletion(time.Since(start))
	stats.addInflight(-1)

	return result, err
}
