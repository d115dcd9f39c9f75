// Package sender implements the outbound dispatch engine of the pipeline: it
// drains an upstream event queue, optionally aggregates events into bounded
// batches, and drives a sink across a fixed pool of publisher workers while
// tracking a one-shot delivery future per event.
package sender

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/logpipe-io/logpipe/internal/clock"
	"github.com/logpipe-io/logpipe/internal/clock/system"
	"github.com/logpipe-io/logpipe/internal/encoding"
	"github.com/logpipe-io/logpipe/internal/event"
	"github.com/logpipe-io/logpipe/internal/metrics"
)

// Mode selects where delivery outcomes are reported.
type Mode int

// Delivery modes, fixed at construction.
const (
	ModeSync Mode = iota
	ModeAsync
	ModeBatch
)

func (m Mode) String() string {
	switch m {
	case ModeSync:
		return "synchronous"
	case ModeAsync:
		return "asynchronous"
	case ModeBatch:
		return "batched"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

const (
	defaultWorkers       = 2
	defaultFlushInterval = 5 * time.Second

	// batchQueueFactor sizes the sealed-batch queue relative to the worker
	// pool; a full queue blocks the feeder, which is the backpressure surface.
	batchQueueFactor = 8

	workerJoinTimeout = time.Second
)

// schedulerTick is the cadence of the flush scheduler. It is a variable only
// so tests can tighten it.
var schedulerTick = 5 * time.Second

// Config carries the per-sender knobs. All fields are immutable after Start.
type Config struct {
	// Name labels logs, metrics, and the monitor endpoint.
	Name string
	// BatchSize enables batching when > 0 and the sink is batch-capable.
	BatchSize int
	// Workers is the publisher pool size in batch mode.
	Workers int
	// FlushInterval bounds the age of the current batch before a forced seal.
	FlushInterval time.Duration
	// Encoder renders events; required unless the sink self-encodes.
	Encoder encoding.Encoder
	// Filter optionally transforms encoded bytes (e.g. gzip).
	Filter encoding.Filter
	// Clock is swappable for tests; defaults to the system clock.
	Clock clock.Clock
	// Logger defaults to a no-op logger.
	Logger *zap.Logger
}

// Sender pulls events from source and delivers them through sink in one of
// three modes. Construct with New, then Start, then Close.
type Sender struct {
	name   string
	sink   Sink
	source Source
	mode   Mode

	encoder encoding.Encoder
	filter  encoding.Filter
	clk     clock.Clock
	logger  *zap.Logger

	batchSize     int
	workers       int
	flushInterval time.Duration

	current   atomic.Pointer[Batch]
	batches   chan *Batch
	lastFlush atomic.Int64

	closed   atomic.Bool
	stopMu   sync.Mutex
	stopOnce sync.Once

	runCtx    context.Context
	runCancel context.CancelFunc
	started   bool

	feederDone  chan struct{}
	workerWG    sync.WaitGroup
	asyncWG     sync.WaitGroup
	backlogWarn *rate.Limiter

	sent   atomic.Int64
	failed atomic.Int64

	unregister func() error
}

// New builds a Sender for the given sink and upstream source. The delivery
// mode is decided here: batched if the sink is batch-capable and a batch size
// is configured, else asynchronous if the sink accepts deferred delivery,
// else synchronous.
func New(sink Sink, source Source, cfg Config) (*Sender, error) {
	if sink == nil {
		return nil, errors.New("sender: sink is required")
	}
	if source == nil {
		return nil, errors.New("sender: source is required")
	}
	name := cfg.Name
	if name == "" {
		name = sink.Name()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clk := cfg.Clock
	if clk == nil {
		clk = system.New()
	}

	batchSize := cfg.BatchSize
	workers := cfg.Workers
	if _, ok := sink.(BatchOnlySink); ok {
		if batchSize < 1 {
			batchSize = 1
		}
		if workers < 1 {
			workers = 1
		}
	}
	if workers <= 0 {
		workers = defaultWorkers
	}
	flushInterval := cfg.FlushInterval
	if flushInterval <= 0 {
		flushInterval = defaultFlushInterval
	}

	var mode Mode
	switch {
	case batchSize > 0 && isBatchCapable(sink):
		mode = ModeBatch
	case isAsync(sink):
		mode = ModeAsync
	default:
		if _, ok := sink.(SyncSink); !ok {
			return nil, fmt.Errorf("sender %s: sink %s implements no delivery capability", name, sink.Name())
		}
		mode = ModeSync
	}

	if cfg.Encoder == nil {
		if _, ok := sink.(SelfEncodingSink); !ok {
			return nil, fmt.Errorf("sender %s: missing encoder", name)
		}
	}

	metrics.Init()

	s := &Sender{
		name:          name,
		sink:          sink,
		source:        source,
		mode:          mode,
		encoder:       cfg.Encoder,
		filter:        cfg.Filter,
		clk:           clk,
		logger:        logger.Named("sender").With(zap.String("sender", name)),
		batchSize:     batchSize,
		workers:       workers,
		flushInterval: flushInterval,
		feederDone:    make(chan struct{}),
		backlogWarn:   rate.NewLimiter(rate.Every(5*time.Second), 1),
	}
	if mode == ModeBatch {
		s.batches = make(chan *Batch, workers*batchQueueFactor)
		s.current.Store(newBatch(s))
	}
	return s, nil
}

func isBatchCapable(sink Sink) bool {
	_, ok := sink.(BatchSink)
	return ok
}

func isAsync(sink Sink) bool {
	_, ok := sink.(AsyncSink)
	return ok
}

// Name returns the sender label.
func (s *Sender) Name() string {
	return s.name
}

// Mode returns the delivery mode fixed at construction.
func (s *Sender) Mode() Mode {
	return s.mode
}

// Workers returns the publisher pool size, zero when not batching.
func (s *Sender) Workers() int {
	if s.mode != ModeBatch {
		return 0
	}
	return s.workers
}

// BatchSize returns the configured batch size, zero when not batching.
func (s *Sender) BatchSize() int {
	if s.mode != ModeBatch {
		return 0
	}
	return s.batchSize
}

// SetUnregisterHook installs the best-effort teardown hook that removes the
// sender from the monitoring endpoint during Close.
func (s *Sender) SetUnregisterHook(fn func() error) {
	s.unregister = fn
}

// Start verifies the encoder and launches the feeder, and in batch mode the
// publisher workers and the flush scheduler. It must be called once.
func (s *Sender) Start(ctx context.Context) error {
	if s.started {
		return fmt.Errorf("sender %s: already started", s.name)
	}
	if s.closed.Load() {
		return fmt.Errorf("sender %s: already closed", s.name)
	}
	if v, ok := s.encoder.(interface{ Verify() error }); ok {
		if err := v.Verify(); err != nil {
			return fmt.Errorf("sender %s: encoder verification: %w", s.name, err)
		}
	}
	s.started = true
	s.runCtx, s.runCancel = context.WithCancel(context.WithoutCancel(ctx))

	if s.mode == ModeBatch {
		for i := 0; i < s.workers; i++ {
			s.workerWG.Add(1)
			go s.publisher(i)
		}
		go s.scheduler()
	}
	go s.feeder()

	s.logger.Info("sender started",
		zap.String("mode", s.mode.String()),
		zap.Int("batch_size", s.BatchSize()),
		zap.Int("workers", s.Workers()),
		zap.Duration("flush_interval", s.flushInterval),
	)
	return nil
}

// feeder is the single goroutine moving events from the upstream queue into
// the dispatch path.
func (s *Sender) feeder() {
	defer close(s.feederDone)
	for s.running() {
		ev, err := s.source.Next(s.runCtx)
		if err != nil {
			if s.runCtx.Err() != nil {
				return
			}
			s.logger.Error("upstream take failed", zap.Error(err))
			continue
		}
		s.dispatch(ev)
	}
}

func (s *Sender) running() bool {
	return !s.closed.Load() && s.runCtx.Err() == nil
}

// dispatch routes one event by mode. It holds the stop barrier for the whole
// step so shutdown can never begin while an event is mid-acceptance.
func (s *Sender) dispatch(ev *event.Event) {
	s.stopMu.Lock()
	defer s.stopMu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			metrics.ObserveUnhandled(s.name)
			s.logger.Error("unexpected error dispatching event", zap.Any("panic", r))
			s.reportStatus(ev, false)
		}
	}()

	if s.closed.Load() {
		s.reportStatus(ev, false)
		return
	}

	switch s.mode {
	case ModeBatch:
		if !s.queue(ev) {
			s.reportStatus(ev, false)
		}
	case ModeAsync:
		f := event.NewFuture(ev)
		if !s.sink.(AsyncSink).SendAsync(s.runCtx, f) {
			s.reportStatus(ev, false)
			return
		}
		s.watchAsync(f)
	case ModeSync:
		if err := s.sink.(SyncSink).Send(s.runCtx, ev); err != nil {
			s.handleError(err)
			s.reportStatus(ev, false)
		} else {
			s.reportStatus(ev, true)
		}
	}
}

// watchAsync waits for the sink to resolve the future and reports its status.
// Shutdown cancels the wait and converts the future to a terminal failure.
func (s *Sender) watchAsync(f *event.Future) {
	s.asyncWG.Add(1)
	go func() {
		defer s.asyncWG.Done()
		if _, err := f.Await(s.runCtx); err != nil {
			f.Complete(false)
		}
		s.processStatus(f)
	}()
}

// queue appends ev to the current batch, sealing and handing the batch to the
// workers when it reaches the size threshold. It reports false once the
// sender is closed.
func (s *Sender) queue(ev *event.Event) bool {
	if s.closed.Load() {
		return false
	}
	var b *Batch
	for {
		b = s.current.Load()
		if _, ok := b.Append(ev); ok {
			break
		}
		// Lost a race with a scheduler swap; the fresh batch accepts it.
	}
	if b.Size() >= s.batchSize {
		s.logger.Debug("batch full, flush")
		s.enqueue(s.rotate())
		if backlog := len(s.batches); backlog > s.workers {
			s.logger.Warn("waiting flush batches, add workers", zap.Int("waiting", backlog-s.workers))
		}
	}
	return true
}

// rotate installs a fresh current batch and returns the sealed previous one.
func (s *Sender) rotate() *Batch {
	old := s.current.Swap(newBatch(s))
	old.seal()
	return old
}

// enqueue hands a sealed batch to the worker pool, blocking for backpressure.
func (s *Sender) enqueue(b *Batch) {
	s.batches <- b
	metrics.SetQueuedBatches(s.name, len(s.batches))
}

// scheduler force-seals the current batch when it has gone unflushed longer
// than the flush interval. It shares the stop barrier with dispatch so a
// swap can never race shutdown.
func (s *Sender) scheduler() {
	ticker := time.NewTicker(schedulerTick)
	defer ticker.Stop()
	for {
		select {
		case <-s.runCtx.Done():
			return
		case <-ticker.C:
			s.scheduledFlush()
		}
	}
}

func (s *Sender) scheduledFlush() {
	s.stopMu.Lock()
	defer s.stopMu.Unlock()
	if s.closed.Load() {
		return
	}
	now := s.clk.Now().UnixNano()
	if now-s.lastFlush.Load() <= s.flushInterval.Nanoseconds() {
		return
	}
	if len(s.batches) == cap(s.batches) {
		if s.backlogWarn.Allow() {
			s.logger.Warn("failed to launch a scheduled batch: queue full")
		}
		return
	}
	s.enqueue(s.rotate())
}

// publisher is one worker of the flush pool. It drains sealed batches until
// it observes the shutdown sentinel, completing futures with the sink
// outcome and finalizing every batch exactly once.
func (s *Sender) publisher(idx int) {
	defer s.workerWG.Done()
	logger := s.logger.Named("publisher").With(zap.Int("worker", idx))
	for {
		var b *Batch
		select {
		case <-s.runCtx.Done():
			return
		case b = <-s.batches:
		}
		if b == nil {
			// Shutdown sentinel, one per worker.
			return
		}
		metrics.SetQueuedBatches(s.name, len(s.batches))
		metrics.ObserveBatchSize(s.name, b.Size())
		if b.Size() == 0 {
			b.finalize()
			continue
		}
		s.lastFlush.Store(s.clk.Now().UnixNano())
		s.flushBatch(logger, b)
	}
}

func (s *Sender) flushBatch(logger *zap.Logger, b *Batch) {
	defer b.finalize()
	metrics.IncInflightWorkers(s.name)
	start := s.clk.Now()
	err := s.safeFlush(b)
	metrics.ObserveFlushDuration(s.name, s.clk.Now().Sub(start))
	metrics.DecInflightWorkers(s.name)
	if err != nil {
		s.handleError(err)
		b.EachPending(func(f *event.Future) { f.Complete(false) })
		return
	}
	b.EachPending(func(f *event.Future) { f.Complete(true) })
	logger.Debug("batch flushed", zap.Int("size", b.Size()))
}

// safeFlush invokes the sink and converts panics into errors so a misbehaving
// sink cannot kill a worker.
func (s *Sender) safeFlush(b *Batch) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("sink panic: %v", r)
		}
	}()
	return s.sink.(BatchSink).Flush(s.runCtx, b)
}

// handleError classifies a delivery error, records it, and logs it. Known
// send and encode failures keep the pipeline running; anything else counts
// as an unhandled error.
func (s *Sender) handleError(err error) {
	msg, known := errorMessage(err)
	if known {
		metrics.ObserveSenderError(s.name, msg)
		s.logger.Error("sending exception", zap.Error(err))
		return
	}
	metrics.ObserveUnhandled(s.name)
	s.logger.Error("unexpected exception", zap.Error(err))
}

// processStatus records the terminal outcome of a resolved future and fires
// the event's end hook. Completion is one-shot and each future is processed
// by exactly one finalize or watcher, so counters cannot double-move.
func (s *Sender) processStatus(f *event.Future) {
	if f.Success() {
		s.sent.Add(1)
		metrics.ObserveSent(s.name)
	} else {
		s.failed.Add(1)
		if msg := f.Message(); msg != "" {
			metrics.ObserveSenderError(s.name, msg)
		} else {
			metrics.ObserveFailed(s.name)
		}
	}
	f.Event().End()
}

// reportStatus records an immediate outcome for an event that never got a
// live future (synchronous sends, rejected async sends, closed sender).
func (s *Sender) reportStatus(ev *event.Event, success bool) {
	if success {
		s.sent.Add(1)
		metrics.ObserveSent(s.name)
	} else {
		s.failed.Add(1)
		metrics.ObserveFailed(s.name)
	}
	ev.End()
}

// encodeBatch renders the batch's pending events and applies the filter.
func (s *Sender) encodeBatch(b *Batch) ([]byte, error) {
	if s.encoder == nil {
		return nil, NewEncodeError(errors.New("no encoder configured"))
	}
	data, err := s.encoder.EncodeBatch(b.PendingEvents())
	if err != nil {
		return nil, NewEncodeError(err)
	}
	return s.applyFilter(data)
}

// EncodeEvent renders one event and applies the filter. Synchronous sinks
// constructed around this sender use it for single-event payloads.
func (s *Sender) EncodeEvent(ev *event.Event) ([]byte, error) {
	if s.encoder == nil {
		return nil, NewEncodeError(errors.New("no encoder configured"))
	}
	data, err := s.encoder.Encode(ev)
	if err != nil {
		return nil, NewEncodeError(err)
	}
	return s.applyFilter(data)
}

func (s *Sender) applyFilter(data []byte) ([]byte, error) {
	if s.filter == nil {
		return data, nil
	}
	filtered, err := s.filter.Filter(data)
	if err != nil {
		return nil, NewEncodeError(err)
	}
	return filtered, nil
}

// Close begins shutdown and blocks until the feeder has exited. After it
// returns no future is pending, all workers have stopped, and every event
// observed by the sender has had its end hook invoked.
func (s *Sender) Close() error {
	s.stopOnce.Do(s.stopSending)
	if s.started {
		<-s.feederDone
	}
	s.asyncWG.Wait()
	return nil
}

func (s *Sender) stopSending() {
	s.logger.Debug("closing")
	s.stopMu.Lock()
	s.closed.Store(true)

	if s.mode == ModeBatch && s.started {
		s.drainBatches()
		s.joinWorkers()
	}

	if s.unregister != nil {
		if err := s.unregister(); err != nil {
			s.logger.Error("failed to unregister monitor endpoint", zap.Error(err))
		}
	}
	if st, ok := s.sink.(StoppableSink); ok {
		st.Stop()
	}
	if s.runCancel != nil {
		s.runCancel()
	}
	s.stopMu.Unlock()
}

// drainBatches empties the sealed-batch queue, posts one shutdown sentinel
// per worker, and resolves every waiting future as a failure.
func (s *Sender) drainBatches() {
	var missed []*Batch
drain:
	for {
		select {
		case b := <-s.batches:
			if b != nil {
				missed = append(missed, b)
			}
		default:
			break drain
		}
	}
	for i := 0; i < s.workers; i++ {
		s.batches <- nil
	}

	cur := s.current.Load()
	cur.seal()
	missed = append(missed, cur)
	for _, b := range missed {
		b.EachPending(func(f *event.Future) { f.Complete(false) })
		b.finalize()
	}
}

// joinWorkers waits for the pool with a bounded budget, then cancels the run
// context to interrupt any worker stuck inside a sink call.
func (s *Sender) joinWorkers() {
	done := make(chan struct{})
	go func() {
		s.workerWG.Wait()
		close(done)
	}()
	select {
	case <-done:
		return
	case <-time.After(workerJoinTimeout):
		s.logger.Warn("publisher workers still running, interrupting")
		s.runCancel()
	}
	<-done
}

// Status is a point-in-time snapshot served by the monitoring endpoint.
type Status struct {
	Name          string `json:"name"`
	Mode          string `json:"mode"`
	BatchSize     int    `json:"batch_size,omitempty"`
	Workers       int    `json:"workers,omitempty"`
	QueuedBatches int    `json:"queued_batches"`
	Sent          int64  `json:"sent"`
	Failed        int64  `json:"failed"`
	Closed        bool   `json:"closed"`
}

// Status returns the sender's current counters and configuration.
func (s *Sender) Status() Status {
	queued := 0
	if s.batches != nil {
		queued = len(s.batches)
	}
	return Status{
		Name:          s.name,
		Mode:          s.mode.String(),
		BatchSize:     s.BatchSize(),
		Workers:       s.Workers(),
		QueuedBatches: queued,
		Sent:          s.sent.Load(),
		Failed:        s.failed.Load(),
		Closed:        s.closed.Load(),
	}
}
