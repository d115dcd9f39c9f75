package encoding

import (
	"bytes"
	"compress/gzip"
	"encoding/json"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/logpipe-io/logpipe/internal/event"
)

// TestJSONEncodeEvent checks the single-event document shape.
func TestJSONEncodeEvent(t *testing.T) {
	t.Parallel()

	ev := event.New(map[string]any{"message": "disk full", "host": "web-1"})
	data, err := NewJSONEncoder().Encode(ev)
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(data, &doc))
	require.Equal(t, "disk full", doc["message"])
	require.Equal(t, "web-1", doc["host"])
	require.Equal(t, ev.ID.String(), doc["event_id"])
	require.Contains(t, doc, "@timestamp")
}

// TestJSONEncodeBatch checks the newline-delimited bulk form.
func TestJSONEncodeBatch(t *testing.T) {
	t.Parallel()

	evs := []*event.Event{
		event.New(map[string]any{"n": 1}),
		event.New(map[string]any{"n": 2}),
		event.New(map[string]any{"n": 3}),
	}
	data, err := NewJSONEncoder().EncodeBatch(evs)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	require.Len(t, lines, 3)
	for i, line := range lines {
		var doc map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &doc))
		require.EqualValues(t, i+1, doc["n"])
	}
}

// TestTextEncoder covers field extraction and the missing-field error.
func TestTextEncoder(t *testing.T) {
	t.Parallel()

	enc := NewTextEncoder("message")
	data, err := enc.Encode(event.New(map[string]any{"message": "hello"}))
	require.NoError(t, err)
	require.Equal(t, "hello", string(data))

	_, err = enc.Encode(event.New(map[string]any{"other": "x"}))
	require.ErrorContains(t, err, `no "message" field`)
}

// TestTextEncoderBatch renders one line per event.
func TestTextEncoderBatch(t *testing.T) {
	t.Parallel()

	enc := NewTextEncoder("")
	data, err := enc.EncodeBatch([]*event.Event{
		event.New(map[string]any{"message": "a"}),
		event.New(map[string]any{"message": "b"}),
	})
	require.NoError(t, err)
	require.Equal(t, "a\nb\n", string(data))
}

// TestGzipFilterRoundTrip verifies the compressed payload inflates back.
func TestGzipFilterRoundTrip(t *testing.T) {
	t.Parallel()

	payload := bytes.Repeat([]byte("log line\n"), 64)
	compressed, err := NewGzipFilter().Filter(payload)
	require.NoError(t, err)
	require.Less(t, len(compressed), len(payload))

	r, err := gzip.NewReader(bytes.NewReader(compressed))
	require.NoError(t, err)
	inflated, err := io.ReadAll(r)
	require.NoError(t, err)
	require.Equal(t, payload, inflated)
}
