package runlog

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/geocover/internal/geo"
)

func newMockLog(t *testing.T) (pgxmock.PgxPoolIface, *Log) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })
	return mock, New(mock)
}

func TestMigrate(t *testing.T) {
	mock, l := newMockLog(t)

	mock.ExpectExec("SELECT pg_advisory_lock").WithArgs(migrationLock).WillReturnResult(pgxmock.NewResult("SELECT", 1))
	mock.ExpectExec("CREATE SCHEMA IF NOT EXISTS geocover").WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectExec("SELECT pg_advisory_unlock").WithArgs(migrationLock).WillReturnResult(pgxmock.NewResult("SELECT", 1))

	require.NoError(t, l.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
	assert.Contains(t, schemaSQL, "geocover.scrape_runs")
}

func TestMigrate_LockFails(t *testing.T) {
	mock, l := newMockLog(t)
	mock.ExpectExec("SELECT pg_advisory_lock").WithArgs(migrationLock).WillReturnError(errors.New("conn closed"))

	err := l.Migrate(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "acquire migration lock")
}

func TestStart(t *testing.T) {
	mock, l := newMockLog(t)
	bbox := geo.Rect{NELat: 2, NELon: 2, SWLat: 1, SWLon: 1}
	started := time.Date(2024, 3, 1, 14, 5, 9, 0, time.UTC)

	mock.ExpectExec("INSERT INTO geocover.scrape_runs").
		WithArgs("run-1", "2,2,1,1", started).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, l.Start(context.Background(), "run-1", bbox, started))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestComplete(t *testing.T) {
	mock, l := newMockLog(t)

	mock.ExpectExec("UPDATE geocover.scrape_runs").
		WithArgs("time_2024_03_01_14_05_09", int64(120), int64(13), int64(0), pgxmock.AnyArg(), "run-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err := l.Complete(context.Background(), "run-1", Result{
		Table:   "time_2024_03_01_14_05_09",
		Points:  120,
		Queries: 13,
		Summary: map[string]int{"queries": 13},
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestComplete_Error(t *testing.T) {
	mock, l := newMockLog(t)
	mock.ExpectExec("UPDATE geocover.scrape_runs").WillReturnError(errors.New("deadlock"))

	err := l.Complete(context.Background(), "run-1", Result{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "complete run run-1")
}

func TestFail(t *testing.T) {
	mock, l := newMockLog(t)
	mock.ExpectExec("UPDATE geocover.scrape_runs").
		WithArgs("upstream down", "run-2").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, l.Fail(context.Background(), "run-2", "upstream down"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLastSuccess(t *testing.T) {
	mock, l := newMockLog(t)
	when := time.Date(2024, 3, 1, 14, 0, 0, 0, time.UTC)
	mock.ExpectQuery("SELECT started_at FROM geocover.scrape_runs").
		WillReturnRows(pgxmock.NewRows([]string{"started_at"}).AddRow(when))

	got, err := l.LastSuccess(context.Background())
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, when.Equal(*got))
}

func TestLastSuccess_NeverRan(t *testing.T) {
	mock, l := newMockLog(t)
	mock.ExpectQuery("SELECT started_at FROM geocover.scrape_runs").WillReturnError(pgx.ErrNoRows)

	got, err := l.LastSuccess(context.Background())
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestList(t *testing.T) {
	mock, l := newMockLog(t)
	started := time.Date(2024, 3, 1, 14, 0, 0, 0, time.UTC)
	done := started.Add(time.Minute)
	table := "time_2024_03_01_14_00_00"
	failure := "engine: run interrupted"

	cols := []string{"id", "bbox", "status", "started_at", "completed_at", "table_name", "points", "queries", "warnings", "error", "summary"}
	mock.ExpectQuery("SELECT id, bbox, status").
		WithArgs(10).
		WillReturnRows(pgxmock.NewRows(cols).
			AddRow("b", "2,2,1,1", StatusFailed, started.Add(time.Hour), &done, (*string)(nil), int64(0), int64(3), int64(0), &failure, []byte(nil)).
			AddRow("a", "2,2,1,1", StatusComplete, started, &done, &table, int64(120), int64(13), int64(1), (*string)(nil), []byte(`{"queries":13}`)))

	entries, err := l.List(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Equal(t, "b", entries[0].ID)
	assert.Equal(t, failure, entries[0].Error)
	assert.Empty(t, entries[0].Table)
	assert.Nil(t, entries[0].Summary)

	assert.Equal(t, StatusComplete, entries[1].Status)
	assert.Equal(t, table, entries[1].Table)
	assert.Equal(t, int64(120), entries[1].Points)
	assert.JSONEq(t, `{"queries":13}`, string(entries[1].Summary))
	require.NotNil(t, entries[1].CompletedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestList_DefaultLimit(t *testing.T) {
	mock, l := newMockLog(t)
	mock.ExpectQuery("SELECT id, bbox, status").WithArgs(50).
		WillReturnRows(pgxmock.NewRows([]string{"id"}))

	entries, err := l.List(context.Background(), 0)
	require.NoError(t, err)
	assert.Empty(t, entries)
	assert.NotNil(t, entries)
}
