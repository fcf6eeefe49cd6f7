package sink

import (
	"context"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/ewkb"

	"github.com/sells-group/geocover/internal/db"
	"github.com/sells-group/geocover/internal/geo"
	"github.com/sells-group/geocover/internal/model"
)

// Postgres writes each run into <schema>.time_* with a PostGIS point column,
// loaded with COPY.
type Postgres struct {
	pool   db.Pool
	schema string
	layout TableLayout
}

// NewPostgres creates a Postgres sink. An empty schema means "geocover".
func NewPostgres(pool db.Pool, schema string, layout TableLayout) *Postgres {
	if schema == "" {
		schema = "geocover"
	}
	return &Postgres{pool: pool, schema: schema, layout: layout}
}

// Name implements Sink.
func (p *Postgres) Name() string { return "postgres" }

func pgType(col string) string {
	switch col {
	case "lat", "lon":
		return "double precision NOT NULL"
	case "port":
		return "integer"
	default:
		return "text"
	}
}

// DDL returns the CREATE TABLE statement for a run table.
func (p *Postgres) DDL(table string) string {
	cols := p.layout.Columns()
	defs := make([]string, 0, len(cols)+2)
	for _, c := range cols {
		defs = append(defs, fmt.Sprintf("%s %s", quoteIdent(c), pgType(c)))
	}
	defs = append(defs, fmt.Sprintf("geom geometry(Point,%d)", geo.SRID), "PRIMARY KEY (lat, lon)")
	return fmt.Sprintf("CREATE TABLE %s (%s)", db.Quote(p.schema+"."+table), strings.Join(defs, ", "))
}

// PointEWKB encodes (lat, lon) as an EWKB point in SRID 4326.
func PointEWKB(lat, lon float64) ([]byte, error) {
	pt := geom.NewPointFlat(geom.XY, []float64{lon, lat}).SetSRID(geo.SRID)
	b, err := ewkb.Marshal(pt, ewkb.NDR)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: encode point")
	}
	return b, nil
}

// Write implements Sink. The run table is replaced atomically.
func (p *Postgres) Write(ctx context.Context, run Run, points []model.PointRecord) error {
	if _, err := p.pool.Exec(ctx, "CREATE SCHEMA IF NOT EXISTS "+db.Quote(p.schema)); err != nil {
		return eris.Wrapf(err, "postgres: create schema %s", p.schema)
	}

	table := run.TableName()
	cols := append(append([]string{}, p.layout.Columns()...), "geom")
	rows := make([][]any, 0, len(points))
	for _, pt := range points {
		g, err := PointEWKB(pt.Lat, pt.Lon)
		if err != nil {
			return err
		}
		rows = append(rows, append(p.layout.Row(pt), g))
	}

	if _, err := db.ReplaceTable(ctx, p.pool, p.schema+"."+table, p.DDL(table), cols, rows); err != nil {
		return eris.Wrapf(err, "postgres: export %s", table)
	}
	return nil
}

func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}
