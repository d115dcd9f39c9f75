// Package encoding turns events into sink-ready bytes and applies optional
// byte-level filters to the result.
package encoding

import (
	"github.com/logpipe-io/logpipe/internal/event"
)

// Encoder renders events to bytes. EncodeBatch receives the still-pending
// events of a batch in append order and produces one payload for the whole
// flush.
type Encoder interface {
	Encode(ev *event.Event) ([]byte, error)
	EncodeBatch(evs []*event.Event) ([]byte, error)
}

// Filter transforms encoded bytes before they reach the sink, typically for
// compression. A filter error is surfaced as an encode error.
type Filter interface {
	Filter(data []byte) ([]byte, error)
}
