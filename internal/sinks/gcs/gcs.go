// Package gcs archives flushed batches as objects in a Cloud Storage bucket.
package gcs

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/storage"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/logpipe-io/logpipe/internal/sender"
)

// Config controls object placement.
type Config struct {
	// Bucket is the destination bucket name; required.
	Bucket string
	// Prefix is prepended to every object name.
	Prefix string
	// ContentType defaults to application/x-ndjson.
	ContentType string
	// Logger defaults to a no-op logger.
	Logger *zap.Logger
}

// Sink writes one object per flushed batch, named by flush time and a unique
// suffix. It is batch-only: single-event delivery makes no sense for an
// archive.
type Sink struct {
	cfg    Config
	bucket *storage.BucketHandle
	logger *zap.Logger
}

// New constructs the sink over an existing storage client.
func New(client *storage.Client, cfg Config) (*Sink, error) {
	if client == nil {
		return nil, fmt.Errorf("gcs: client is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("gcs: bucket is required")
	}
	if cfg.ContentType == "" {
		cfg.ContentType = "application/x-ndjson"
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sink{
		cfg:    cfg,
		bucket: client.Bucket(cfg.Bucket),
		logger: logger,
	}, nil
}

// Name implements sender.Sink.
func (s *Sink) Name() string {
	return "gcs"
}

// BatchOnly implements sender.BatchOnlySink.
func (s *Sink) BatchOnly() {}

// Flush implements sender.BatchSink.
func (s *Sink) Flush(ctx context.Context, b *sender.Batch) error {
	body, err := b.Encode()
	if err != nil {
		return err
	}
	name := s.objectName(time.Now().UTC())
	w := s.bucket.Object(name).NewWriter(ctx)
	w.ContentType = s.cfg.ContentType
	if _, err := w.Write(body); err != nil {
		_ = w.Close()
		return sender.NewSendError(s.Name(), fmt.Errorf("write object %s: %w", name, err))
	}
	if err := w.Close(); err != nil {
		return sender.NewSendError(s.Name(), fmt.Errorf("finalize object %s: %w", name, err))
	}
	s.logger.Debug("batch archived", zap.String("object", name), zap.Int("bytes", len(body)))
	return nil
}

func (s *Sink) objectName(now time.Time) string {
	name := fmt.Sprintf("%s-%s.ndjson", now.Format("20060102T150405Z"), uuid.NewString())
	if s.cfg.Prefix == "" {
		return name
	}
	return fmt.Sprintf("%s/%s", s.cfg.Prefix, name)
}
