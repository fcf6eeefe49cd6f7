package sink

import (
	"context"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/geocover/internal/model"
)

// Workbook writes each run as an .xlsx file with a header row.
type Workbook struct {
	dir    string
	layout TableLayout
}

// NewWorkbook creates a spreadsheet sink writing into dir.
func NewWorkbook(dir string, layout TableLayout) *Workbook {
	return &Workbook{dir: dir, layout: layout}
}

// Name implements Sink.
func (w *Workbook) Name() string { return "xlsx" }

// Path returns the file written for run.
func (w *Workbook) Path(run Run) string {
	return filepath.Join(w.dir, run.TableName()+".xlsx")
}

// Write implements Sink.
func (w *Workbook) Write(_ context.Context, run Run, points []model.PointRecord) error {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("stations")
	if err != nil {
		return eris.Wrap(err, "xlsx: add sheet")
	}

	header := sheet.AddRow()
	for _, c := range w.layout.Columns() {
		header.AddCell().SetString(c)
	}
	for _, p := range points {
		row := sheet.AddRow()
		for _, v := range w.layout.Row(p) {
			cell := row.AddCell()
			switch val := v.(type) {
			case float64:
				cell.SetFloat(val)
			case int:
				cell.SetInt(val)
			case string:
				cell.SetString(val)
			}
		}
	}

	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return eris.Wrapf(err, "xlsx: create dir %s", w.dir)
	}
	path := w.Path(run)
	if err := f.Save(path); err != nil {
		return eris.Wrapf(err, "xlsx: save %s", path)
	}
	return nil
}
