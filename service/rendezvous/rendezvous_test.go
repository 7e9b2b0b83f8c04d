package rendezvous

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// TestDedupOneBackendCall is scenario 6 and invariant 4: two concurrent
// overlapping dispatches, with batching enabled and a high threshold,
// produce exactly one backend call covering the union of keys, and each
// caller receives only its own requested subset.
func TestDedupOneBackendCall(t *testing.T) {
	ctrl := NewDefaultController(20*time.Millisecond, 10)
	rdv := New[string, string](ctrl)

	var calls int32
	backend := func(ctx context.Context, keys []string) (map[string]string, error) {
		atomic.AddInt32(&calls, 1)
		out := make(map[string]string, len(keys))
		for _, k := range keys {
			out[k] = "v-" + k
		}
		return out, nil
	}

	var wg sync.WaitGroup
	var r1, r2 map[string]string
	var err1, err2 error

	wg.Add(2)
	go func() {
		defer wg.Done()
		r1, err1 = rdv.Dispatch(context.Background(), []string{"k1", "k2"}, backend)
	}()
	go func() {
		defer wg.Done()
		time.Sleep(2 * time.Millisecond)
		r2, err2 = rdv.Dispatch(context.Background(), []string{"k2", "k3"}, backend)
	}()
	wg.Wait()

	if err1 != nil || err2 != nil {
		t.Fatalf("unexpected errors: %v, %v", err1, err2)
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("expected exactly one backend call, got %d", got)
	}
	if len(r1) != 2 || r1["k1"] != "v-k1" || r1["k2"] != "v-k2" {
		t.Fatalf("caller 1 should see only its own subset, got %v", r1)
	}
	if len(r2) != 2 || r2["k2"] != "v-k2" || r2["k3"] != "v-k3" {
		t.Fatalf("caller 2 should see only its own subset, got %v", r2)
	}
	if rdv.Stats.KeysDeduplicated != 1 {
		t.Fatalf("expected keys_deduplicated == 1, got %d", rdv.Stats.KeysDeduplicated)
	}
	if rdv.Stats.KeysDispatched != 3 {
		t.Fatalf("expected 3 unique keys dispatched, got %d", rdv.Stats.KeysDispatched)
	}
}

func TestEarlyDispatchThreshold(t *testing.T) {
	ctrl := NewDefaultController(time.Hour, 2)
	rdv := New[string, string](ctrl)

	backend := func(ctx context.Context, keys []string) (map[string]string, error) {
		out := make(map[string]string, len(keys))
		for _, k := range keys {
			out[k] = k
		}
		return out, nil
	}

	done := make(chan struct{})
	go func() {
		rdv.Dispatch(context.Background(), []string{"a"}, backend)
		close(done)
	}()
	time.Sleep(2 * time.Millisecond)

	result, err := rdv.Dispatch(context.Background(), []string{"b"}, backend)
	if err != nil {
		t.Fatal(err)
	}
	if result["b"] != "b" {
		t.Fatalf("expected b resolved via early-threshold dispatch, got %v", result)
	}
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("first dispatch should have completed once threshold was reached")
	}
	if rdv.Stats.DispatchBatchEarly != 1 {
		t.Fatalf("expected one early dispatch, got %d", rdv.Stats.DispatchBatchEarly)
	}
}

func TestNotBatchedWhenThresholdMet(t *testing.T) {
	ctrl := NewDefaultController(time.Hour, 1)
	rdv := New[string, string](ctrl)
	backend := func(ctx context.Context, keys []string) (map[string]string, error) {
		return map[string]string{"a": "a"}, nil
	}
	result, err := rdv.Dispatch(context.Background(), []string{"a"}, backend)
	if err != nil {
		t.Fatal(err)
	}
	if result["a"] != "a" {
		t.Fatalf("unexpected result: %v", result)
	}
	if rdv.Stats.DispatchNoBatch != 1 {
		t.Fatalf("single request >= threshold should dispatch immediately, got stats=%+v", rdv.Stats)
	}
}
