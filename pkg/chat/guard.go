package chat

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/sync/semaphore"
)

// ErrTurnInFlight is returned by Send while a previous turn has not yet
// reached a terminal state. Callers should treat it as "ignored while
// busy" rather than a failure.
var ErrTurnInFlight = errors.New("chat: turn already in flight")

// guard admits at most one in-flight turn per client and holds the
// cancellation handle for the turn it admitted.
type guard struct {
	sem *semaphore.Weighted

	mu     sync.Mutex
	cancel context.CancelFunc
}

func newGuard() *guard {
	return &guard{sem: semaphore.NewWeighted(1)}
}

// admit takes the single send slot without waiting. On success it returns
// a turn context whose cancellation handle the guard keeps until release.
func (g *guard) admit(ctx context.Context) (context.Context, bool) {
	if !g.sem.TryAcquire(1) {
		return nil, false
	}

	turnCtx, cancel := context.WithCancel(ctx)
	g.mu.Lock()
	g.cancel = cancel
	g.mu.Unlock()
	return turnCtx, true
}

// release frees the slot taken by admit. It must be called exactly once
// per successful admit, after the turn is terminal.
func (g *guard) release() {
	g.mu.Lock()
	cancel := g.cancel
	g.cancel = nil
	g.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	g.sem.Release(1)
}

// interrupt cancels the in-flight turn. Calling it while no turn is in
// flight, or after release, is a no-op.
func (g *guard) interrupt() {
	g.mu.Lock()
	cancel := g.cancel
	g.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}
