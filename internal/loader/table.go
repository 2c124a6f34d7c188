// Package loader reads city inputs (blocks, facilities, accessibility
// matrices, what-if overrides) from CSV, XLSX, shapefile and YAML sources.
package loader

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/provision-cli/internal/fetcher"
)

// ReadTable reads a tabular file as string rows, header first. The format is
// chosen by extension: .csv, .tsv, .txt or .xlsx.
func ReadTable(ctx context.Context, path string) ([][]string, error) {
	return ReadTableEncoded(ctx, path, "")
}

// ReadTableEncoded is ReadTable for text tables stored in a legacy charset.
// XLSX files are always UTF-8 and ignore charset.
func ReadTableEncoded(ctx context.Context, path, charset string) ([][]string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx":
		return readWorkbook(path)

	case ".csv", ".tsv", ".txt":
		f, err := os.Open(path)
		if err != nil {
			return nil, eris.Wrapf(err, "loader: open %s", path)
		}
		defer f.Close() //nolint:errcheck

		opts := fetcher.CSVOptions{TrimSpace: true, SkipBlank: true, LazyQuotes: true, Charset: charset}
		if strings.EqualFold(filepath.Ext(path), ".tsv") {
			opts.Delimiter = '\t'
		}
		rows, err := fetcher.ReadCSV(ctx, f, opts)
		if err != nil {
			return nil, eris.Wrapf(err, "loader: read %s", path)
		}
		return rows, nil

	default:
		return nil, eris.Errorf("loader: unsupported table format %q", filepath.Ext(path))
	}
}

// readWorkbook reads the first sheet of an XLSX workbook. An empty first sheet
// is an error naming the sheets the workbook does have.
func readWorkbook(path string) ([][]string, error) {
	names, err := fetcher.SheetNames(path)
	if err != nil {
		return nil, eris.Wrapf(err, "loader: read %s", path)
	}
	if len(names) == 0 {
		return nil, eris.Errorf("loader: workbook %s has no sheets", path)
	}

	rows, err := fetcher.ReadXLSX(path, fetcher.XLSXOptions{SheetName: names[0]})
	if err != nil {
		return nil, eris.Wrapf(err, "loader: read %s", path)
	}
	if len(rows) == 0 {
		return nil, eris.Errorf("loader: sheet %q of %s is empty (sheets: %s)", names[0], path, strings.Join(names, ", "))
	}
	if len(names) > 1 {
		zap.L().Debug("loader: reading first sheet of workbook",
			zap.String("path", path),
			zap.String("sheet", names[0]),
			zap.Strings("sheets", names),
		)
	}
	return rows, nil
}

// header maps lower-cased column names to their index.
type header map[string]int

func parseHeader(row []string) header {
	h := make(header, len(row))
	for i, name := range row {
		key := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")))
		if _, dup := h[key]; !dup {
			h[key] = i
		}
	}
	return h
}

// find returns the index of the first column present among names.
func (h header) find(names ...string) (int, bool) {
	for _, n := range names {
		if i, ok := h[n]; ok {
			return i, true
		}
	}
	return 0, false
}

func (h header) require(table string, names ...string) (int, error) {
	i, ok := h.find(names...)
	if !ok {
		return 0, eris.Errorf("loader: %s table has no %q column", table, names[0])
	}
	return i, nil
}

func cell(row []string, i int) string {
	if i < len(row) {
		return row[i]
	}
	return ""
}

// cellError names the 1-based row (header is row 1) and the column.
func cellError(err error, table string, line int, column, value string) error {
	return eris.Wrapf(err, "loader: %s row %d column %q: invalid value %q", table, line, column, value)
}

func parseID(s string) (int, error) {
	if i, err := strconv.Atoi(s); err == nil {
		return i, nil
	}
	// Spreadsheet exports often write integer IDs as "12.0".
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if f != float64(int(f)) {
		return 0, eris.Errorf("not an integer: %s", s)
	}
	return int(f), nil
}

func parseBool(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "1", "true", "t", "yes", "y":
		return true, nil
	case "0", "false", "f", "no", "n", "":
		return false, nil
	}
	return false, eris.Errorf("not a boolean: %s", s)
}
