package encoding

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/logpipe-io/logpipe/internal/event"
)

// JSONEncoder renders each event as a single JSON document. Batches become
// newline-delimited documents, the form bulk HTTP endpoints ingest directly.
type JSONEncoder struct {
	// Pretty enables indented output for single events; batches are always
	// compact because bulk bodies are line-oriented.
	Pretty bool
}

// NewJSONEncoder returns a compact JSON encoder.
func NewJSONEncoder() *JSONEncoder {
	return &JSONEncoder{}
}

// Encode implements Encoder.
func (c *JSONEncoder) Encode(ev *event.Event) ([]byte, error) {
	doc := c.document(ev)
	var (
		data []byte
		err  error
	)
	if c.Pretty {
		data, err = json.MarshalIndent(doc, "", "  ")
	} else {
		data, err = json.Marshal(doc)
	}
	if err != nil {
		return nil, fmt.Errorf("marshal event %s: %w", ev.ID, err)
	}
	return data, nil
}

// EncodeBatch implements Encoder.
func (c *JSONEncoder) EncodeBatch(evs []*event.Event) ([]byte, error) {
	var buf bytes.Buffer
	for _, ev := range evs {
		data, err := json.Marshal(c.document(ev))
		if err != nil {
			return nil, fmt.Errorf("marshal event %s: %w", ev.ID, err)
		}
		buf.Write(data)
		buf.WriteByte('\n')
	}
	return buf.Bytes(), nil
}

func (c *JSONEncoder) document(ev *event.Event) map[string]any {
	doc := make(map[string]any, len(ev.Fields)+2)
	for k, v := range ev.Fields {
		doc[k] = v
	}
	doc["@timestamp"] = ev.Timestamp.Format(time.RFC3339Nano)
	doc["event_id"] = ev.ID.String()
	return doc
}
