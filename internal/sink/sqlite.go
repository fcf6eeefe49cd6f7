package sink

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/geocover/internal/model"
)

// SQLite writes each run into its own time_* table of a SQLite database.
type SQLite struct {
	path   string
	layout TableLayout
}

// NewSQLite creates a sink for the database file at path.
func NewSQLite(path string, layout TableLayout) *SQLite {
	return &SQLite{path: path, layout: layout}
}

// Name implements Sink.
func (s *SQLite) Name() string { return "sqlite" }

// OpenSQLite opens a SQLite database with WAL enabled.
func OpenSQLite(dsn string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return db, nil
}

// sqliteType maps a record column to its SQLite affinity.
func sqliteType(col string) string {
	switch col {
	case "lat", "lon":
		return "REAL"
	case "port":
		return "INTEGER"
	default:
		return "TEXT"
	}
}

// CreateTableSQL returns the DDL for a run table.
func CreateTableSQL(table string, columns []string) string {
	defs := make([]string, len(columns))
	for i, c := range columns {
		defs[i] = fmt.Sprintf("%q %s", c, sqliteType(c))
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %q (%s, PRIMARY KEY (\"lat\", \"lon\"))", table, strings.Join(defs, ", "))
}

// Write implements Sink. Rows are inserted in one transaction; a re-export
// of the same run replaces rows by (lat, lon).
func (s *SQLite) Write(ctx context.Context, run Run, points []model.PointRecord) error {
	db, err := OpenSQLite(s.path)
	if err != nil {
		return err
	}
	defer db.Close() //nolint:errcheck

	table := run.TableName()
	cols := s.layout.Columns()
	if _, err := db.ExecContext(ctx, CreateTableSQL(table, cols)); err != nil {
		return eris.Wrapf(err, "sqlite: create %s", table)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = fmt.Sprintf("%q", c)
	}
	insert := fmt.Sprintf("INSERT OR REPLACE INTO %q (%s) VALUES (%s)",
		table, strings.Join(quoted, ", "), strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", "))
	stmt, err := tx.PrepareContext(ctx, insert)
	if err != nil {
		return eris.Wrapf(err, "sqlite: prepare insert into %s", table)
	}
	defer stmt.Close() //nolint:errcheck

	for _, p := range points {
		if _, err := stmt.ExecContext(ctx, s.layout.Row(p)...); err != nil {
			return eris.Wrapf(err, "sqlite: insert %s", p.Key())
		}
	}

	if err := tx.Commit(); err != nil {
		return eris.Wrap(err, "sqlite: commit")
	}
	return nil
}
