package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/logpipe-io/logpipe/internal/event"
)

// TestQueueRoundTrip pushes and pops in FIFO order.
func TestQueueRoundTrip(t *testing.T) {
	t.Parallel()

	q := NewQueue(4)
	first := event.New(map[string]any{"n": 1})
	second := event.New(map[string]any{"n": 2})
	require.NoError(t, q.Enqueue(context.Background(), first))
	require.NoError(t, q.Enqueue(context.Background(), second))
	require.Equal(t, 2, q.Len())

	got, err := q.Next(context.Background())
	require.NoError(t, err)
	require.Same(t, first, got)
	got, err = q.Next(context.Background())
	require.NoError(t, err)
	require.Same(t, second, got)
}

// TestQueueNextHonorsContext ensures a blocked take unblocks on cancel.
func TestQueueNextHonorsContext(t *testing.T) {
	t.Parallel()

	q := NewQueue(1)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := q.Next(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

// TestQueueEnqueueBlocksWhenFull verifies the bounded-queue backpressure.
func TestQueueEnqueueBlocksWhenFull(t *testing.T) {
	t.Parallel()

	q := NewQueue(1)
	require.NoError(t, q.Enqueue(context.Background(), event.New(nil)))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := q.Enqueue(ctx, event.New(nil))
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

// TestQueueClose drains buffered events then reports closure.
func TestQueueClose(t *testing.T) {
	t.Parallel()

	q := NewQueue(2)
	require.NoError(t, q.Enqueue(context.Background(), event.New(nil)))
	q.Close()
	q.Close()

	_, err := q.Next(context.Background())
	require.NoError(t, err)
	_, err = q.Next(context.Background())
	require.ErrorIs(t, err, ErrClosed)

	require.ErrorIs(t, q.Enqueue(context.Background(), event.New(nil)), ErrClosed)
}
