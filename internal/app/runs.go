package app

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/JakeFAU/realtime-content-feed/internal/engine"
)

// errShuttingDown is returned for runs triggered after shutdown began.
var errShuttingDown = errors.New("service is shutting down")

// runTracker counts in-flight engine runs so Close can wait for them before
// tearing down the store and publisher.
type runTracker struct {
	engine *engine.Engine

	mu      sync.Mutex
	closing bool
	wg      sync.WaitGroup
}

func newRunTracker(e *engine.Engine) *runTracker {
	return &runTracker{engine: e}
}

// RunAll implements api.Runner.
func (t *runTracker) RunAll(ctx context.Context) (engine.Report, error) {
	t.mu.Lock()
	if t.closing {
		t.mu.Unlock()
		return engine.Report{}, errShuttingDown
	}
	t.wg.Add(1)
	t.mu.Unlock()
	defer t.wg.Done()
	return t.engine.RunAll(ctx)
}

// drain stops accepting runs and waits up to timeout for active ones. It
// reports whether every run finished.
func (t *runTracker) drain(timeout time.Duration) bool {
	t.mu.Lock()
	t.closing = true
	t.mu.Unlock()

	done := make(chan struct{})
	go func() {
		t.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}
