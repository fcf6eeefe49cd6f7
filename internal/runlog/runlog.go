// Package runlog records every scrape run in geocover.scrape_runs.
package runlog

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/geocover/internal/db"
	"github.com/sells-group/geocover/internal/geo"
)

//go:embed schema.sql
var schemaSQL string

// migrationLock serializes concurrent Migrate calls across processes.
const migrationLock = 7_340_512

// Run statuses.
const (
	StatusRunning  = "running"
	StatusComplete = "complete"
	StatusFailed   = "failed"
)

// Entry is one row of geocover.scrape_runs.
type Entry struct {
	ID          string          `json:"id"`
	BBox        string          `json:"bbox"`
	Status      string          `json:"status"`
	StartedAt   time.Time       `json:"started_at"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
	Table       string          `json:"table,omitempty"`
	Points      int64           `json:"points"`
	Queries     int64           `json:"queries"`
	Warnings    int64           `json:"warnings"`
	Error       string          `json:"error,omitempty"`
	Summary     json.RawMessage `json:"summary,omitempty"`
}

// Result is recorded when a run completes.
type Result struct {
	Table    string
	Points   int64
	Queries  int64
	Warnings int64
	Summary  any
}

// Log reads and writes run entries.
type Log struct {
	pool db.Pool
}

// New creates a Log backed by pool.
func New(pool db.Pool) *Log {
	return &Log{pool: pool}
}

// Migrate creates the schema and table if needed.
func (l *Log) Migrate(ctx context.Context) error {
	if _, err := l.pool.Exec(ctx, "SELECT pg_advisory_lock($1)", migrationLock); err != nil {
		return eris.Wrap(err, "runlog: acquire migration lock")
	}
	defer func() {
		if _, err := l.pool.Exec(ctx, "SELECT pg_advisory_unlock($1)", migrationLock); err != nil {
			zap.L().Warn("runlog: release migration lock", zap.Error(err))
		}
	}()

	if _, err := l.pool.Exec(ctx, schemaSQL); err != nil {
		return eris.Wrap(err, "runlog: apply schema")
	}
	return nil
}

// Start records the beginning of a run.
func (l *Log) Start(ctx context.Context, id string, bbox geo.Rect, startedAt time.Time) error {
	_, err := l.pool.Exec(ctx,
		`INSERT INTO geocover.scrape_runs (id, bbox, status, started_at)
		 VALUES ($1, $2, 'running', $3)`,
		id, bbox.String(), startedAt,
	)
	if err != nil {
		return eris.Wrapf(err, "runlog: start run %s", id)
	}
	return nil
}

// Complete marks a run as complete.
func (l *Log) Complete(ctx context.Context, id string, res Result) error {
	var summary []byte
	if res.Summary != nil {
		var err error
		if summary, err = json.Marshal(res.Summary); err != nil {
			return eris.Wrap(err, "runlog: marshal summary")
		}
	}

	_, err := l.pool.Exec(ctx,
		`UPDATE geocover.scrape_runs
		 SET status = 'complete', completed_at = now(), table_name = $1,
		     points = $2, queries = $3, warnings = $4, summary = $5
		 WHERE id = $6`,
		res.Table, res.Points, res.Queries, res.Warnings, summary, id,
	)
	if err != nil {
		return eris.Wrapf(err, "runlog: complete run %s", id)
	}
	return nil
}

// Fail marks a run as failed.
func (l *Log) Fail(ctx context.Context, id string, errMsg string) error {
	_, err := l.pool.Exec(ctx,
		`UPDATE geocover.scrape_runs
		 SET status = 'failed', completed_at = now(), error = $1
		 WHERE id = $2`,
		errMsg, id,
	)
	if err != nil {
		return eris.Wrapf(err, "runlog: fail run %s", id)
	}
	return nil
}

// LastSuccess returns the start of the most recent complete run, or nil.
func (l *Log) LastSuccess(ctx context.Context) (*time.Time, error) {
	var t time.Time
	err := l.pool.QueryRow(ctx,
		`SELECT started_at FROM geocover.scrape_runs
		 WHERE status = 'complete'
		 ORDER BY started_at DESC LIMIT 1`,
	).Scan(&t)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "runlog: last success")
	}
	return &t, nil
}

// List returns up to limit entries, most recent first. limit <= 0 means 50.
func (l *Log) List(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := l.pool.Query(ctx,
		`SELECT id, bbox, status, started_at, completed_at, table_name, points, queries, warnings, error, summary
		 FROM geocover.scrape_runs ORDER BY started_at DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "runlog: list")
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		var (
			e       Entry
			table   *string
			errStr  *string
			summary []byte
		)
		if err := rows.Scan(&e.ID, &e.BBox, &e.Status, &e.StartedAt, &e.CompletedAt, &table,
			&e.Points, &e.Queries, &e.Warnings, &errStr, &summary); err != nil {
			return nil, eris.Wrap(err, "runlog: scan entry")
		}
		if table != nil {
			e.Table = *table
		}
		if errStr != nil {
			e.Error = *errStr
		}
		if len(summary) > 0 {
			e.Summary = summary
		}
		entries = append(entries, e)
	}
	return entries, eris.Wrap(rows.Err(), "runlog: iterate entries")
}
