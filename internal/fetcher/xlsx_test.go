package fetcher

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"
)

func createTestXLSX(t *testing.T, sheets []string, rows map[string][][]string) string {
	t.Helper()
	f := xlsx.NewFile()
	for _, name := range sheets {
		sheet, err := f.AddSheet(name)
		require.NoError(t, err)
		for _, rowData := range rows[name] {
			row := sheet.AddRow()
			for _, cellData := range rowData {
				row.AddCell().SetString(cellData)
			}
		}
	}
	path := filepath.Join(t.TempDir(), "test.xlsx")
	require.NoError(t, f.Save(path))
	return path
}

func TestReadXLSX_Basic(t *testing.T) {
	path := createTestXLSX(t, []string{"blocks"}, map[string][][]string{
		"blocks": {
			{"id", "population"},
			{"1", " 100 "},
			{"2", "250"},
		},
	})

	rows, err := ReadXLSX(path, XLSXOptions{})
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"id", "population"}, {"1", "100"}, {"2", "250"}}, rows)
}

func TestReadXLSX_SheetSelection(t *testing.T) {
	path := createTestXLSX(t, []string{"first", "second"}, map[string][][]string{
		"first":  {{"a"}},
		"second": {{"header"}, {"b"}},
	})

	rows, err := ReadXLSX(path, XLSXOptions{SheetName: "second", SkipRows: 1})
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"b"}}, rows)

	rows, err = ReadXLSX(path, XLSXOptions{SheetIndex: 1})
	require.NoError(t, err)
	assert.Len(t, rows, 2)

	names, err := SheetNames(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"first", "second"}, names)
}

func TestReadXLSX_Errors(t *testing.T) {
	path := createTestXLSX(t, []string{"only"}, map[string][][]string{"only": {{"x"}}})

	_, err := ReadXLSX(path, XLSXOptions{SheetName: "missing"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `sheet "missing" not found`)

	_, err = ReadXLSX(path, XLSXOptions{SheetIndex: 3})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "out of range")

	_, err = ReadXLSX(filepath.Join(t.TempDir(), "nope.xlsx"), XLSXOptions{})
	assert.Error(t, err)
}
