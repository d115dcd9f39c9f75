package sender

import (
	"context"

	"github.com/logpipe-io/logpipe/internal/event"
)

// Sink is the outbound delivery primitive a Sender drives. A concrete sink
// implements at least one of the capability interfaces below; the sender
// inspects them once at construction to pick its delivery mode.
type Sink interface {
	Name() string
}

// SyncSink delivers one event at a time. A nil return means delivered.
type SyncSink interface {
	Sink
	Send(ctx context.Context, ev *event.Event) error
}

// AsyncSink accepts an event for deferred delivery. The sink receives the
// future and must resolve it itself once the outcome is known. A false return
// means the event was not accepted and the sender fails it immediately.
type AsyncSink interface {
	Sink
	SendAsync(ctx context.Context, f *event.Future) bool
}

// BatchSink delivers a sealed batch in one call. A nil return completes every
// still-pending future in the batch as a success; an error fails them all.
type BatchSink interface {
	Sink
	Flush(ctx context.Context, b *Batch) error
}

// BatchOnlySink marks a BatchSink that cannot deliver events one at a time.
// Senders built on one clamp batch size and worker count to at least 1.
type BatchOnlySink interface {
	BatchSink
	BatchOnly()
}

// SelfEncodingSink marks a sink that renders events itself, lifting the
// requirement for a configured encoder.
type SelfEncodingSink interface {
	Sink
	SelfEncoding()
}

// StoppableSink exposes an optional teardown hook invoked during shutdown,
// after in-flight batches have been resolved.
type StoppableSink interface {
	Sink
	Stop()
}

// Source is the upstream queue the feeder drains. Next blocks until an event
// is available or ctx ends.
type Source interface {
	Next(ctx context.Context) (*event.Event, error)
}
