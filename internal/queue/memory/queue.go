// Package memory provides the in-process event queue feeding senders.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/logpipe-io/logpipe/internal/event"
)

// ErrClosed is returned by Enqueue and Next once the queue has been closed.
var ErrClosed = errors.New("queue closed")

// Queue is a bounded in-memory event queue with context-aware operations.
// Producers block when the queue is full; the sender's feeder blocks on Next
// while it is empty.
type Queue struct {
	ch      chan *event.Event
	closeMu sync.Mutex
	closed  bool
}

// NewQueue constructs a new queue with the provided capacity.
func NewQueue(capacity int) *Queue {
	return &Queue{
		ch: make(chan *event.Event, capacity),
	}
}

// Enqueue pushes an event into the queue or returns if the context ends.
func (q *Queue) Enqueue(ctx context.Context, ev *event.Event) error {
	q.closeMu.Lock()
	if q.closed {
		q.closeMu.Unlock()
		return ErrClosed
	}
	q.closeMu.Unlock()
	select {
	case <-ctx.Done():
		return fmt.Errorf("enqueue canceled: %w", ctx.Err())
	case q.ch <- ev:
		return nil
	}
}

// Next pops the next event, respecting context cancellation. It implements
// the sender's upstream Source contract.
func (q *Queue) Next(ctx context.Context) (*event.Event, error) {
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("dequeue canceled: %w", ctx.Err())
	case ev, ok := <-q.ch:
		if !ok {
			return nil, ErrClosed
		}
		return ev, nil
	}
}

// Len reports the number of buffered events.
func (q *Queue) Len() int {
	return len(q.ch)
}

// Close closes the underlying channel for shutdown.
func (q *Queue) Close() {
	q.closeMu.Lock()
	defer q.closeMu.Unlock()
	if q.closed {
		return
	}
	close(q.ch)
	q.closed = true
}
