package event

import (
	"context"
	"fmt"
	"sync"
)

// Future is the one-shot completion handle for a single event. It starts
// pending and transitions exactly once to success or failure; later
// completions are ignored.
type Future struct {
	event *Event

	once    sync.Once
	done    chan struct{}
	success bool
	message string
}

// NewFuture creates a pending Future for ev.
func NewFuture(ev *Event) *Future {
	return &Future{
		event: ev,
		done:  make(chan struct{}),
	}
}

// CompletedFuture creates a Future already resolved to the given outcome.
func CompletedFuture(ev *Event, success bool) *Future {
	f := NewFuture(ev)
	f.Complete(success)
	return f
}

// Event returns the event this future tracks.
func (f *Future) Event() *Event {
	return f.event
}

// Complete resolves the future. It reports whether this call was the one that
// resolved it, so callers can guard one-time bookkeeping on the result.
func (f *Future) Complete(success bool) bool {
	first := false
	f.once.Do(func() {
		f.success = success
		close(f.done)
		first = true
	})
	return first
}

// Fail resolves the future as a failure carrying a human-readable reason.
func (f *Future) Fail(message string) bool {
	first := false
	f.once.Do(func() {
		f.success = false
		f.message = message
		close(f.done)
		first = true
	})
	return first
}

// Pending reports whether the future has not resolved yet.
func (f *Future) Pending() bool {
	select {
	case <-f.done:
		return false
	default:
		return true
	}
}

// Await blocks until the future resolves or ctx ends. The sender core never
// calls it; it exists for external callers that need the outcome.
func (f *Future) Await(ctx context.Context) (bool, error) {
	select {
	case <-f.done:
		return f.success, nil
	case <-ctx.Done():
		return false, fmt.Errorf("await delivery outcome: %w", ctx.Err())
	}
}

// Success reports the outcome. It is only meaningful once Pending is false.
func (f *Future) Success() bool {
	return f.success
}

// Message returns the failure reason, if the sink provided one.
func (f *Future) Message() string {
	return f.message
}
