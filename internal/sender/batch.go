package sender

import (
	"sync"

	"github.com/logpipe-io/logpipe/internal/event"
	"github.com/logpipe-io/logpipe/internal/metrics"
)

// Batch is an append-only collection of event futures flushed together by one
// publisher worker. Appends happen only while the batch sits in the sender's
// current-batch cell; once sealed it is owned by exactly one worker. The
// internal mutex covers the window where a scheduler swap races an append:
// the append lands in either the old or the new batch, never in a torn state.
type Batch struct {
	sender *Sender

	mu      sync.Mutex
	futures []*event.Future
	sealed  bool

	finalizeOnce sync.Once
}

func newBatch(s *Sender) *Batch {
	b := &Batch{
		sender:  s,
		futures: make([]*event.Future, 0, s.batchSize),
	}
	metrics.IncActiveBatches(s.name)
	return b
}

// Append adds ev to the batch and returns its delivery future. It reports
// false when the batch was already sealed; the caller retries against the
// fresh current batch.
func (b *Batch) Append(ev *event.Event) (*event.Future, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.sealed {
		return nil, false
	}
	f := event.NewFuture(ev)
	b.futures = append(b.futures, f)
	return f, true
}

// seal marks the batch as no longer current. Appends observed after seal go
// to the replacement batch.
func (b *Batch) seal() {
	b.mu.Lock()
	b.sealed = true
	b.mu.Unlock()
}

// Size returns the number of futures appended so far.
func (b *Batch) Size() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.futures)
}

func (b *Batch) snapshot() []*event.Future {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]*event.Future(nil), b.futures...)
}

// PendingEvents returns the events whose futures are still unresolved, in
// append order. Encoders consume this to build the bulk payload.
func (b *Batch) PendingEvents() []*event.Event {
	futures := b.snapshot()
	evs := make([]*event.Event, 0, len(futures))
	for _, f := range futures {
		if f.Pending() {
			evs = append(evs, f.Event())
		}
	}
	return evs
}

// EachPending visits the still-pending futures in append order. Resolved
// futures are skipped so a shutdown mark and a late sink completion cannot
// both act on the same future.
func (b *Batch) EachPending(fn func(*event.Future)) {
	for _, f := range b.snapshot() {
		if f.Pending() {
			fn(f)
		}
	}
}

// Encode renders the still-pending events through the sender's encoder and
// filter. Batch sinks call it to build their outbound payload.
func (b *Batch) Encode() ([]byte, error) {
	return b.sender.encodeBatch(b)
}

// finalize reports the terminal status of every future and releases the
// batch. It runs exactly once per batch regardless of how the flush ended.
func (b *Batch) finalize() {
	b.finalizeOnce.Do(func() {
		for _, f := range b.snapshot() {
			b.sender.processStatus(f)
		}
		metrics.DecActiveBatches(b.sender.name)
	})
}
