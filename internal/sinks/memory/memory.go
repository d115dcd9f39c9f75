// Package memory provides in-process sinks for local development and tests.
package memory

import (
	"context"
	"sync"

	"github.com/logpipe-io/logpipe/internal/event"
	"github.com/logpipe-io/logpipe/internal/sender"
)

// Sink is a synchronous capture sink: every event is recorded and delivery
// always succeeds unless a failure is injected.
type Sink struct {
	name string

	mu     sync.Mutex
	events []*event.Event
	err    error
}

// New constructs a capture sink.
func New(name string) *Sink {
	if name == "" {
		name = "memory"
	}
	return &Sink{name: name}
}

// Name implements sender.Sink.
func (s *Sink) Name() string {
	return s.name
}

// FailWith makes every subsequent delivery fail with err; nil restores
// success.
func (s *Sink) FailWith(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

// Send implements sender.SyncSink.
func (s *Sink) Send(_ context.Context, ev *event.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return sender.NewSendError(s.name, s.err)
	}
	s.events = append(s.events, ev)
	return nil
}

// SelfEncoding implements sender.SelfEncodingSink; the sink stores events
// as-is and needs no encoder.
func (s *Sink) SelfEncoding() {}

// Events returns a copy of everything delivered so far.
func (s *Sink) Events() []*event.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*event.Event(nil), s.events...)
}

// BatchSink is the batch-capable capture variant: each flush records the
// batch's pending events as one delivered group.
type BatchSink struct {
	name string

	mu      sync.Mutex
	flushes [][]*event.Event
	err     error
}

// NewBatch constructs a batch capture sink.
func NewBatch(name string) *BatchSink {
	if name == "" {
		name = "memory-batch"
	}
	return &BatchSink{name: name}
}

// Name implements sender.Sink.
func (s *BatchSink) Name() string {
	return s.name
}

// FailWith makes every subsequent flush fail with err; nil restores success.
func (s *BatchSink) FailWith(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

// Flush implements sender.BatchSink.
func (s *BatchSink) Flush(_ context.Context, b *sender.Batch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return sender.NewSendError(s.name, s.err)
	}
	s.flushes = append(s.flushes, b.PendingEvents())
	return nil
}

// SelfEncoding implements sender.SelfEncodingSink.
func (s *BatchSink) SelfEncoding() {}

// Flushes returns a copy of the recorded flush groups.
func (s *BatchSink) Flushes() [][]*event.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]*event.Event, len(s.flushes))
	for i, f := range s.flushes {
		out[i] = append([]*event.Event(nil), f...)
	}
	return out
}
