// Package tcp delivers events one line at a time over a TCP socket.
package tcp

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/logpipe-io/logpipe/internal/encoding"
	"github.com/logpipe-io/logpipe/internal/event"
	"github.com/logpipe-io/logpipe/internal/sender"
)

const defaultDialTimeout = 10 * time.Second

// Config controls the socket destination.
type Config struct {
	// Address is the host:port to dial; required.
	Address string
	// DialTimeout bounds connection establishment.
	DialTimeout time.Duration
	// Logger defaults to a no-op logger.
	Logger *zap.Logger
}

// Sink writes one encoded event per line, reconnecting after write errors.
// It is synchronous: the sender reports each event's outcome from the Send
// return.
type Sink struct {
	cfg     Config
	encoder encoding.Encoder
	filter  encoding.Filter
	logger  *zap.Logger

	mu   sync.Mutex
	conn net.Conn
}

// New constructs the sink around the sender's encoder and optional filter.
func New(cfg Config, enc encoding.Encoder, filter encoding.Filter) (*Sink, error) {
	if cfg.Address == "" {
		return nil, fmt.Errorf("tcp: address is required")
	}
	if enc == nil {
		return nil, fmt.Errorf("tcp: encoder is required")
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = defaultDialTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sink{cfg: cfg, encoder: enc, filter: filter, logger: logger}, nil
}

// Name implements sender.Sink.
func (s *Sink) Name() string {
	return "tcp"
}

// Send implements sender.SyncSink.
func (s *Sink) Send(ctx context.Context, ev *event.Event) error {
	data, err := s.encoder.Encode(ev)
	if err != nil {
		return sender.NewEncodeError(err)
	}
	if s.filter != nil {
		data, err = s.filter.Filter(data)
		if err != nil {
			return sender.NewEncodeError(err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	conn, err := s.connLocked(ctx)
	if err != nil {
		return sender.NewSendError(s.Name(), err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetWriteDeadline(deadline)
	}
	if _, err := conn.Write(append(data, '\n')); err != nil {
		s.dropLocked()
		return sender.NewSendError(s.Name(), fmt.Errorf("write to %s: %w", s.cfg.Address, err))
	}
	return nil
}

func (s *Sink) connLocked(ctx context.Context) (net.Conn, error) {
	if s.conn != nil {
		return s.conn, nil
	}
	dialer := net.Dialer{Timeout: s.cfg.DialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", s.cfg.Address)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", s.cfg.Address, err)
	}
	s.logger.Info("connected", zap.String("address", s.cfg.Address))
	s.conn = conn
	return conn, nil
}

func (s *Sink) dropLocked() {
	if s.conn != nil {
		_ = s.conn.Close()
		s.conn = nil
	}
}

// Stop implements sender.StoppableSink by closing the connection.
func (s *Sink) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dropLocked()
}
