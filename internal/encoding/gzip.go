package encoding

import (
	"bytes"
	"compress/gzip"
	"fmt"
)

// GzipFilter compresses encoded payloads before they reach the sink.
type GzipFilter struct {
	// Level is a compress/gzip level; zero means gzip.DefaultCompression.
	Level int
}

// NewGzipFilter returns a filter using the default compression level.
func NewGzipFilter() *GzipFilter {
	return &GzipFilter{Level: gzip.DefaultCompression}
}

// Filter implements Filter.
func (g *GzipFilter) Filter(data []byte) ([]byte, error) {
	level := g.Level
	if level == 0 {
		level = gzip.DefaultCompression
	}
	var buf bytes.Buffer
	w, err := gzip.NewWriterLevel(&buf, level)
	if err != nil {
		return nil, fmt.Errorf("gzip writer: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return nil, fmt.Errorf("gzip write: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("gzip close: %w", err)
	}
	return buf.Bytes(), nil
}
