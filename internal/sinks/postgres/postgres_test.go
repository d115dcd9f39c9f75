package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/logpipe-io/logpipe/internal/event"
	"github.com/logpipe-io/logpipe/internal/queue/memory"
	"github.com/logpipe-io/logpipe/internal/sender"
)

// TestFlushInsertsBatch drives a sealed batch through the sink and expects
// one batched insert round-trip with a row per event.
func TestFlushInsertsBatch(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)

	sink, err := NewWithPool(mock, "events")
	require.NoError(t, err)

	eb := mock.ExpectBatch()
	for i := 0; i < 2; i++ {
		eb.ExpectExec("INSERT INTO events").
			WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
	}

	q := memory.NewQueue(8)
	s, err := sender.New(sink, q, sender.Config{
		Name:      "pg-test",
		BatchSize: 2,
		Workers:   1,
	})
	require.NoError(t, err)
	require.NoError(t, s.Start(context.Background()))
	t.Cleanup(func() { _ = s.Close() })

	require.NoError(t, q.Enqueue(context.Background(), event.New(map[string]any{"message": "a"})))
	require.NoError(t, q.Enqueue(context.Background(), event.New(map[string]any{"message": "b"})))

	require.Eventually(t, func() bool {
		return s.Status().Sent == 2
	}, 2*time.Second, 10*time.Millisecond)
	require.NoError(t, mock.ExpectationsWereMet())
}

// TestFlushStatementError fails the whole batch on any row error.
func TestFlushStatementError(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)

	sink, err := NewWithPool(mock, "events")
	require.NoError(t, err)

	eb := mock.ExpectBatch()
	eb.ExpectExec("INSERT INTO events").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(context.DeadlineExceeded)

	q := memory.NewQueue(8)
	s, err := sender.New(sink, q, sender.Config{
		Name:      "pg-error",
		BatchSize: 1,
		Workers:   1,
	})
	require.NoError(t, err)
	require.NoError(t, s.Start(context.Background()))
	t.Cleanup(func() { _ = s.Close() })

	require.NoError(t, q.Enqueue(context.Background(), event.New(map[string]any{"message": "a"})))
	require.Eventually(t, func() bool {
		return s.Status().Failed == 1
	}, 2*time.Second, 10*time.Millisecond)
}

// TestNewWithPoolValidation rejects bad table names.
func TestNewWithPoolValidation(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	_, err = NewWithPool(mock, "events; drop table users")
	require.ErrorContains(t, err, "invalid table name")

	_, err = NewWithPool(nil, "events")
	require.ErrorContains(t, err, "pool is required")
}
