// Package report writes provision results as CSV, XLSX and console summaries.
package report

import (
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/rotisserie/eris"

	"github.com/sells-group/provision-cli/internal/provision"
)

// Columns returns the output header for one service type.
func Columns(service string) []string {
	return []string{
		"block_id",
		"provision_" + service,
		"id_" + service,
		"population_prov_" + service,
		"population_unprov_" + service,
		"population",
	}
}

// WriteCSV writes t as CSV, header first, one row per block.
func WriteCSV(w io.Writer, t provision.Table) error {
	cw := csv.NewWriter(w)

	if err := cw.Write(Columns(t.Service)); err != nil {
		return eris.Wrap(err, "report: write header")
	}
	for _, r := range t.Rows {
		if err := cw.Write(resultRow(r)); err != nil {
			return eris.Wrapf(err, "report: write block %d", r.BlockID)
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return eris.Wrap(err, "report: flush csv")
	}
	return nil
}

// ExportCSV writes each table to dir/<service>.csv and returns the paths.
func ExportCSV(dir string, tables []provision.Table) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, eris.Wrapf(err, "report: create %s", dir)
	}

	paths := make([]string, 0, len(tables))
	for _, t := range tables {
		path := filepath.Join(dir, t.Service+".csv")
		if err := exportOne(path, t); err != nil {
			return nil, err
		}
		paths = append(paths, path)
	}
	return paths, nil
}

func exportOne(path string, t provision.Table) error {
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "report: create %s", path)
	}
	if err := WriteCSV(f, t); err != nil {
		_ = f.Close()
		return err
	}
	return eris.Wrapf(f.Close(), "report: close %s", path)
}

func resultRow(r provision.Result) []string {
	return []string{
		strconv.Itoa(r.BlockID),
		strconv.Itoa(r.Provision),
		strconv.Itoa(r.ServingID),
		strconv.Itoa(r.PopulationProvided),
		strconv.Itoa(r.PopulationUnprovided),
		strconv.Itoa(r.Population),
	}
}
