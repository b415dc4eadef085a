package fetcher

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
	"go.uber.org/zap"
)

// XLSXOptions configures roster XLSX parsing.
type XLSXOptions struct {
	SheetIndex int    // default 0
	SheetName  string // if set, overrides SheetIndex
}

// ParseXLSX reads a roster from an XLSX workbook and returns deduplicated
// records. The first row of the chosen sheet is the header.
func ParseXLSX(path string, opts XLSXOptions) ([]Record, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "fetcher: open xlsx")
	}

	sheet, err := getSheet(f, opts)
	if err != nil {
		return nil, err
	}
	if len(sheet.Rows) == 0 {
		return nil, eris.New("fetcher: empty xlsx sheet")
	}

	setters, fullNameIdx := headerMap(rowToStrings(sheet.Rows[0]))
	if len(setters) == 0 && fullNameIdx < 0 {
		return nil, eris.New("fetcher: no recognized roster columns in header")
	}

	var (
		out     []Record
		seen    = map[string]bool{}
		skipped int
	)
	for _, row := range sheet.Rows[1:] {
		rec := recordFromRow(rowToStrings(row), setters, fullNameIdx)
		if !rec.valid() {
			skipped++
			continue
		}
		if key := rec.dedupeKey(); !seen[key] {
			seen[key] = true
			out = append(out, rec)
		}
	}

	zap.L().Info("fetcher: parsed roster xlsx",
		zap.String("sheet", sheet.Name),
		zap.Int("records", len(out)),
		zap.Int("skipped", skipped))
	return out, nil
}

func getSheet(f *xlsx.File, opts XLSXOptions) (*xlsx.Sheet, error) {
	if opts.SheetName != "" {
		sheet, ok := f.Sheet[opts.SheetName]
		if !ok {
			return nil, eris.Errorf("fetcher: sheet %q not found", opts.SheetName)
		}
		return sheet, nil
	}
	if opts.SheetIndex >= len(f.Sheets) {
		return nil, eris.Errorf("fetcher: sheet index %d out of range (file has %d sheets)", opts.SheetIndex, len(f.Sheets))
	}
	return f.Sheets[opts.SheetIndex], nil
}

func rowToStrings(row *xlsx.Row) []string {
	cells := make([]string, len(row.Cells))
	for j, cell := range row.Cells {
		cells[j] = strings.TrimSpace(cell.String())
	}
	return cells
}
