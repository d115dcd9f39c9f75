// Package httpbulk delivers batches to an HTTP bulk-ingest endpoint, one
// request per flush with the encoded batch as the body.
package httpbulk

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/logpipe-io/logpipe/internal/sender"
)

const defaultTimeout = 30 * time.Second

// Config controls the bulk endpoint and request shape.
type Config struct {
	// URL is the bulk-ingest endpoint; required.
	URL string
	// ContentType defaults to application/x-ndjson, the form bulk APIs expect.
	ContentType string
	// Timeout bounds each flush request.
	Timeout time.Duration
	// Headers are added to every request, e.g. authorization.
	Headers map[string]string
	// Logger defaults to a no-op logger.
	Logger *zap.Logger
}

// Sink posts encoded batches to the endpoint. It is batch-only: the sender
// core always drives it through Flush.
type Sink struct {
	cfg    Config
	client *http.Client
	logger *zap.Logger
}

// New constructs the sink.
func New(cfg Config) (*Sink, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("httpbulk: url is required")
	}
	if cfg.ContentType == "" {
		cfg.ContentType = "application/x-ndjson"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sink{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: logger,
	}, nil
}

// Name implements sender.Sink.
func (s *Sink) Name() string {
	return "httpbulk"
}

// BatchOnly implements sender.BatchOnlySink.
func (s *Sink) BatchOnly() {}

// Flush implements sender.BatchSink. A non-2xx response or transport error
// fails the whole batch.
func (s *Sink) Flush(ctx context.Context, b *sender.Batch) error {
	body, err := b.Encode()
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return sender.NewSendError(s.Name(), fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("Content-Type", s.cfg.ContentType)
	for k, v := range s.cfg.Headers {
		req.Header.Set(k, v)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return sender.NewSendError(s.Name(), fmt.Errorf("post bulk: %w", err))
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return sender.NewSendError(s.Name(), fmt.Errorf("bulk endpoint returned %s", resp.Status))
	}
	s.logger.Debug("bulk request accepted",
		zap.Int("status", resp.StatusCode),
		zap.Int("bytes", len(body)),
	)
	return nil
}

// Stop implements sender.StoppableSink by closing idle connections.
func (s *Sink) Stop() {
	s.client.CloseIdleConnections()
}
