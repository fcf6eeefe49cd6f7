package db

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIdentifier(t *testing.T) {
	assert.Equal(t, pgx.Identifier{"runs"}, Identifier("runs"))
	assert.Equal(t, pgx.Identifier{"geocover", "time_2025_01_02_03_04_05"}, Identifier("geocover.time_2025_01_02_03_04_05"))
	assert.Equal(t, `"geocover"."scrape_runs"`, Quote("geocover.scrape_runs"))
}

func TestOpen_EmptyURL(t *testing.T) {
	_, err := Open(context.Background(), "", PoolConfig{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty database url")
}

func TestCopyFrom_EmptyRows(t *testing.T) {
	n, err := CopyFrom(context.Background(), nil, "t", []string{"a"}, nil)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestCopyFrom(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectCopyFrom(pgx.Identifier{"geocover", "pts"}, []string{"lat", "lon"}).WillReturnResult(2)

	n, err := CopyFrom(context.Background(), mock, "geocover.pts", []string{"lat", "lon"}, [][]any{{1.0, 2.0}, {3.0, 4.0}})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCopyFrom_Error(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectCopyFrom(pgx.Identifier{"pts"}, []string{"lat"}).WillReturnError(errors.New("copy failed"))

	_, err = CopyFrom(context.Background(), mock, "pts", []string{"lat"}, [][]any{{1.0}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db: copy into pts")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReplaceTable(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	ddl := `CREATE TABLE "geocover"."pts" (lat double precision)`
	mock.ExpectBegin()
	mock.ExpectExec(`DROP TABLE IF EXISTS "geocover"."pts"`).WillReturnResult(pgxmock.NewResult("DROP", 0))
	mock.ExpectExec(`CREATE TABLE "geocover"."pts"`).WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"geocover", "pts"}, []string{"lat"}).WillReturnResult(1)
	mock.ExpectCommit()

	n, err := ReplaceTable(context.Background(), mock, "geocover.pts", ddl, []string{"lat"}, [][]any{{1.0}})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReplaceTable_CreateFails(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectExec(`DROP TABLE`).WillReturnResult(pgxmock.NewResult("DROP", 0))
	mock.ExpectExec(`CREATE TABLE`).WillReturnError(errors.New("permission denied"))
	mock.ExpectRollback()

	_, err = ReplaceTable(context.Background(), mock, "pts", "CREATE TABLE pts ()", []string{"lat"}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db: create pts")
	assert.NoError(t, mock.ExpectationsWereMet())
}
