// Package event defines the pipeline event and its delivery future.
package event

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Event is one unit of log data moving through the pipeline. The sender core
// treats the payload as opaque; it only guarantees that End runs exactly once
// when the delivery outcome is known.
type Event struct {
	ID        uuid.UUID
	Timestamp time.Time
	Fields    map[string]any

	endOnce sync.Once
	onEnd   func()
}

// New creates an Event carrying the provided fields.
func New(fields map[string]any) *Event {
	return &Event{
		ID:        uuid.New(),
		Timestamp: time.Now().UTC(),
		Fields:    fields,
	}
}

// OnEnd registers the terminal callback invoked when the event reaches its
// final outcome. It must be set before the event is submitted.
func (e *Event) OnEnd(fn func()) {
	e.onEnd = fn
}

// End marks the event as terminally processed. Repeated calls are no-ops.
func (e *Event) End() {
	e.endOnce.Do(func() {
		if e.onEnd != nil {
			e.onEnd()
		}
	})
}
