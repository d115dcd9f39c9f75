// Package postgres provides a Postgres-backed sink that stores each flushed
// batch as rows of an events table.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/logpipe-io/logpipe/internal/sender"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Config controls the Postgres connection pool behind the sink.
type Config struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

// batchSender is the part of pgxpool.Pool the sink consumes, narrowed so
// tests can substitute a mock.
type batchSender interface {
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
	Close()
}

// Sink inserts events into Postgres. Each sender flush becomes one pgx batch
// round-trip; it self-encodes rows, so no pipeline encoder is required.
type Sink struct {
	pool  batchSender
	table string
}

// New creates a Postgres sink using the provided config.
func New(ctx context.Context, cfg Config) (*Sink, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("postgres: dsn is required")
	}
	table := cfg.Table
	if table == "" {
		table = "events"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("postgres: invalid table name %q", table)
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &Sink{pool: pool, table: table}, nil
}

// NewWithPool constructs a sink from an existing pool (primarily for testing).
func NewWithPool(pool batchSender, table string) (*Sink, error) {
	if pool == nil {
		return nil, fmt.Errorf("postgres: pool is required")
	}
	if table == "" {
		table = "events"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("postgres: invalid table name %q", table)
	}
	return &Sink{pool: pool, table: table}, nil
}

// Name implements sender.Sink.
func (s *Sink) Name() string {
	return "postgres"
}

// SelfEncoding implements sender.SelfEncodingSink; rows are built from the
// event structure directly.
func (s *Sink) SelfEncoding() {}

// Flush implements sender.BatchSink. All pending events of the batch are
// inserted in one batched round-trip; any statement error fails the flush.
func (s *Sink) Flush(ctx context.Context, b *sender.Batch) error {
	evs := b.PendingEvents()
	if len(evs) == 0 {
		return nil
	}
	query := fmt.Sprintf(
		"INSERT INTO %s (id, event_ts, payload) VALUES ($1, $2, $3)", s.table)

	pgb := &pgx.Batch{}
	for _, ev := range evs {
		payload, err := json.Marshal(ev.Fields)
		if err != nil {
			return sender.NewEncodeError(fmt.Errorf("marshal event %s: %w", ev.ID, err))
		}
		pgb.Queue(query, ev.ID, ev.Timestamp, payload)
	}

	br := s.pool.SendBatch(ctx, pgb)
	defer func() { _ = br.Close() }()
	for range evs {
		if _, err := br.Exec(); err != nil {
			return sender.NewSendError(s.Name(), fmt.Errorf("insert event: %w", err))
		}
	}
	return nil
}

// Stop implements sender.StoppableSink by releasing the pool.
func (s *Sink) Stop() {
	if s.pool != nil {
		s.pool.Close()
	}
}
