package sender

import (
	"context"
	"sync"

	"github.com/SebastienMelki/loghub/internal/event"
)

// State is the terminal state of a Future.
type State int

const (
	// Pending means the event's outcome is not yet known.
	Pending State = iota
	// Success means the sink delivered the event.
	Success
	// Failure means the sink failed to deliver the event, or it was never
	// attempted (e.g. the sender was closed).
	Failure
)

// Future is a one-shot completion handle for a single event's delivery
// outcome. The zero value is not usable; construct with newFuture.
type Future struct {
	evt event.Event

	mu      sync.Mutex
	state   State
	message string
	done    chan struct{}
}

func newFuture(e event.Event) *Future {
	return &Future{
		evt:  e,
		done: make(chan struct{}),
	}
}

// Event returns the underlying event this future tracks.
func (f *Future) Event() event.Event {
	return f.evt
}

// IsPending reports whether the future has not yet transitioned out of
// Pending.
func (f *Future) IsPending() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state == Pending
}

// Complete transitions the future to Success or Failure and invokes the
// event's End callback. It returns true only for the call that performed
// the first transition; later calls (e.g. a worker racing a shutdown that
// already failed the future) are no-ops and return false. Every counter
// update in the worker/feeder/scheduler is gated on this return value so a
// late completion never double-counts (SPEC_FULL.md §9, open question 2).
func (f *Future) Complete(success bool) bool {
	return f.complete(success, "")
}

// Fail is Complete(false) with an attached human-readable reason.
func (f *Future) Fail(message string) bool {
	return f.complete(false, message)
}

func (f *Future) complete(success bool, message string) bool {
	f.mu.Lock()
	if f.state != Pending {
		f.mu.Unlock()
		return false
	}
	if success {
		f.state = Success
	} else {
		f.state = Failure
	}
	f.message = message
	f.mu.Unlock()

	close(f.done)
	f.evt.End(success, message)
	return true
}

// Await blocks until the future is no longer pending or ctx is done. The
// sender core never calls this itself; it exists for external callers that
// want to wait on a specific event's outcome (e.g. a synchronous-delivery
// convenience wrapper, or tests).
func (f *Future) Await(ctx context.Context) (State, string) {
	select {
	case <-f.done:
	case <-ctx.Done():
		return Pending, ""
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state, f.message
}
