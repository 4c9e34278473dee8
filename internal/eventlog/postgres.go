package eventlog

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const ddlCommandEvents = `
CREATE TABLE IF NOT EXISTS command_events (
    id          BIGSERIAL PRIMARY KEY,
    occurred_at TIMESTAMPTZ      NOT NULL,
    transcript  TEXT             NOT NULL,
    command     TEXT             NOT NULL DEFAULT '',
    phrase      TEXT             NOT NULL DEFAULT '',
    confidence  DOUBLE PRECISION NOT NULL DEFAULT 0,
    kind        TEXT             NOT NULL DEFAULT 'none',
    result      TEXT             NOT NULL DEFAULT '',
    executed    BOOLEAN          NOT NULL DEFAULT FALSE,
    trace_id    TEXT             NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_command_events_occurred_at
    ON command_events (occurred_at);

CREATE INDEX IF NOT EXISTS idx_command_events_command
    ON command_events (command);
`

// Migrate creates the command_events table if it does not exist. It is
// idempotent and safe to call on every start.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, ddlCommandEvents); err != nil {
		return fmt.Errorf("eventlog: migrate: %w", err)
	}
	return nil
}

// PostgresSink is a durable [Sink] backed by a PostgreSQL table.
// All methods are safe for concurrent use.
type PostgresSink struct {
	pool *pgxpool.Pool
}

// NewPostgresSink connects to the database at dsn, verifies the connection
// and runs [Migrate].
func NewPostgresSink(ctx context.Context, dsn string) (*PostgresSink, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("eventlog: parse dsn: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("eventlog: create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("eventlog: ping: %w", err)
	}

	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresSink{pool: pool}, nil
}

// Record implements [Sink].
func (s *PostgresSink) Record(ctx context.Context, ev Event) error {
	const q = `
		INSERT INTO command_events
		    (occurred_at, transcript, command, phrase, confidence, kind, result, executed, trace_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := s.pool.Exec(ctx, q,
		ev.Timestamp,
		ev.Transcript,
		ev.Command,
		ev.Phrase,
		ev.Confidence,
		ev.Kind,
		ev.Result,
		ev.Executed,
		ev.TraceID,
	)
	if err != nil {
		return fmt.Errorf("eventlog: record: %w", err)
	}
	return nil
}

// Recent returns the newest limit events, oldest first.
func (s *PostgresSink) Recent(ctx context.Context, limit int) ([]Event, error) {
	const q = `
		SELECT occurred_at, transcript, command, phrase, confidence, kind, result, executed, trace_id
		FROM (
		    SELECT *
		    FROM   command_events
		    ORDER  BY occurred_at DESC, id DESC
		    LIMIT  $1
		) newest
		ORDER BY occurred_at, id`

	if limit <= 0 {
		return nil, nil
	}
	rows, err := s.pool.Query(ctx, q, limit)
	if err != nil {
		return nil, fmt.Errorf("eventlog: recent: %w", err)
	}
	events, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Event, error) {
		var ev Event
		err := row.Scan(
			&ev.Timestamp,
			&ev.Transcript,
			&ev.Command,
			&ev.Phrase,
			&ev.Confidence,
			&ev.Kind,
			&ev.Result,
			&ev.Executed,
			&ev.TraceID,
		)
		return ev, err
	})
	if err != nil {
		return nil, fmt.Errorf("eventlog: recent: %w", err)
	}
	return events, nil
}

// Ping checks that the database is reachable.
func (s *PostgresSink) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases all pooled connections.
func (s *PostgresSink) Close() {
	s.pool.Close()
}
