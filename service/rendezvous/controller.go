package rendezvous

import (
	"context"
	"time"
)

// DefaultController is a simple fixed-delay, fixed-threshold Controller,
// the RendezVous equivalent of the original TunablesRendezVousController:
// a batching policy that can be tuned without touching the coalescer.
type DefaultController struct {
	Batch     bool
	Delay     time.Duration
	Threshold int
}

// NewDefaultController builds a controller that batches for delay before
// dispatching, unless threshold keys accumulate first.
func NewDefaultController(delay time.Duration, threshold int) *DefaultController {
	return &DefaultController{Batch: true, Delay: delay, Threshold: threshold}
}

func (c *DefaultController) ShouldBatch() bool { return c.Batch }

func (c *DefaultController) WaitForDispatch(ctx context.Context) <-chan struct{} {
	ch := make(chan struct{})
	timer := time.NewTimer(c.Delay)
	go func() {
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
		}
		close(ch)
	}()
	return ch
}

func (c *DefaultController) EarlyDispatchThreshold() int { return c.Threshold }

// NoBatchController always dispatches immediately; useful for tests and
// for callers that want Rendezvous's stats/dedup bookkeeping shape without
// ever delaying a request.
type NoBatchController struct{}

func (NoBatchController) ShouldBatch() bool { return false }

func (NoBatchController) WaitForDispatch(ctx context.Context) <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

func (NoBatchController) EarlyDispatchThreshold() int { return 0 }
