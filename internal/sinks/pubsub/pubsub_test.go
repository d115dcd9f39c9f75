package pubsub

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/logpipe-io/logpipe/internal/encoding"
	"github.com/logpipe-io/logpipe/internal/event"
)

type fakeResult struct {
	id  string
	err error
}

func (r fakeResult) Get(context.Context) (string, error) {
	return r.id, r.err
}

type fakePublisher struct {
	err error

	mu      sync.Mutex
	msgs    []*pubsub.Message
	stopped bool
}

func (p *fakePublisher) Publish(_ context.Context, msg *pubsub.Message) publishResult {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.msgs = append(p.msgs, msg)
	return fakeResult{id: "m1", err: p.err}
}

func (p *fakePublisher) Stop() {
	p.mu.Lock()
	p.stopped = true
	p.mu.Unlock()
}

// TestSendAsyncCompletesFuture checks a successful publish resolves the
// future with success.
func TestSendAsyncCompletesFuture(t *testing.T) {
	t.Parallel()

	pub := &fakePublisher{}
	sink := &Sink{pub: pub, encoder: encoding.NewJSONEncoder(), logger: zap.NewNop()}

	f := event.NewFuture(event.New(map[string]any{"message": "hi"}))
	require.True(t, sink.SendAsync(context.Background(), f))

	ok, err := f.Await(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, pub.msgs, 1)
	require.NotEmpty(t, pub.msgs[0].Data)
}

// TestSendAsyncPublishFailure resolves the future as a failure with the
// broker's reason.
func TestSendAsyncPublishFailure(t *testing.T) {
	t.Parallel()

	pub := &fakePublisher{err: errors.New("topic not found")}
	sink := &Sink{pub: pub, encoder: encoding.NewJSONEncoder(), logger: zap.NewNop()}

	f := event.NewFuture(event.New(map[string]any{"message": "hi"}))
	require.True(t, sink.SendAsync(context.Background(), f))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	ok, err := f.Await(ctx)
	require.NoError(t, err)
	require.False(t, ok)
	require.Equal(t, "topic not found", f.Message())
}

// TestSendAsyncRejectsOnEncodeError refuses the event when it cannot be rendered.
func TestSendAsyncRejectsOnEncodeError(t *testing.T) {
	t.Parallel()

	pub := &fakePublisher{}
	sink := &Sink{pub: pub, encoder: encoding.NewTextEncoder("message"), logger: zap.NewNop()}

	f := event.NewFuture(event.New(map[string]any{"other": "x"}))
	require.False(t, sink.SendAsync(context.Background(), f))
	require.True(t, f.Pending())
	require.Empty(t, pub.msgs)
}

// TestStopFlushesPublisher verifies the teardown hook reaches the client.
func TestStopFlushesPublisher(t *testing.T) {
	t.Parallel()

	pub := &fakePublisher{}
	sink := &Sink{pub: pub, encoder: encoding.NewJSONEncoder(), logger: zap.NewNop()}
	sink.Stop()
	require.True(t, pub.stopped)
}
