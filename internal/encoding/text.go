package encoding

import (
	"bytes"
	"fmt"

	"github.com/logpipe-io/logpipe/internal/event"
)

// TextEncoder writes the value of a single payload field as a line of text.
// It suits sinks that expect raw log lines, like the TCP socket sink.
type TextEncoder struct {
	// Field names the payload entry to emit. Events missing the field fail
	// to encode.
	Field string
}

// NewTextEncoder returns a TextEncoder reading the given payload field.
func NewTextEncoder(field string) *TextEncoder {
	if field == "" {
		field = "message"
	}
	return &TextEncoder{Field: field}
}

// Encode implements Encoder.
func (c *TextEncoder) Encode(ev *event.Event) ([]byte, error) {
	v, ok := ev.Fields[c.Field]
	if !ok {
		return nil, fmt.Errorf("event %s has no %q field", ev.ID, c.Field)
	}
	switch s := v.(type) {
	case string:
		return []byte(s), nil
	case []byte:
		return s, nil
	default:
		return fmt.Appendf(nil, "%v", v), nil
	}
}

// EncodeBatch implements Encoder, one line per event.
func (c *TextEncoder) EncodeBatch(evs []*event.Event) ([]byte, error) {
	var buf bytes.Buffer
	for _, ev := range evs {
		line, err := c.Encode(ev)
		if err != nil {
			return nil, err
		}
		buf.Write(line)
		buf.WriteByte('\n')
	}
	return buf.Bytes(), nil
}
