package loader

import (
	"context"
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/provision-cli/internal/provision"
)

func TestParseBlocks(t *testing.T) {
	rows := [][]string{
		{"ID", "Population", "is_living", "geometry"},
		{"1", "120", "true", ""},
		{"2.0", "0", "0", "\\x0101000000000000000000f03f0000000000000040"},
		{"3", "", "yes", ""},
	}
	blocks, err := ParseBlocks(rows)
	require.NoError(t, err)
	require.Len(t, blocks, 3)

	assert.Equal(t, provision.Block{ID: 1, Population: 120, IsLiving: true}, blocks[0])
	assert.Equal(t, 2, blocks[1].ID)
	assert.False(t, blocks[1].IsLiving)
	assert.Len(t, blocks[1].Geometry, 21)
	assert.Equal(t, provision.Block{ID: 3, IsLiving: true}, blocks[2])
}

func TestParseBlocks_DerivedLiving(t *testing.T) {
	blocks, err := ParseBlocks([][]string{{"block_id", "pop"}, {"1", "10"}, {"2", "0"}})
	require.NoError(t, err)
	assert.True(t, blocks[0].IsLiving)
	assert.False(t, blocks[1].IsLiving)
}

func TestParseBlocks_Errors(t *testing.T) {
	tests := []struct {
		name string
		rows [][]string
		want string
	}{
		{"empty", nil, "blocks table is empty"},
		{"no id column", [][]string{{"population"}}, `no "id" column`},
		{"no population column", [][]string{{"id"}}, `no "population" column`},
		{"bad id", [][]string{{"id", "population"}, {"1", "1"}, {"x", "1"}}, `row 3 column "id"`},
		{"fractional id", [][]string{{"id", "population"}, {"1.5", "1"}}, `row 2 column "id"`},
		{"bad population", [][]string{{"id", "population"}, {"1", "many"}}, `row 2 column "population"`},
		{"negative population", [][]string{{"id", "population"}, {"1", "-4"}}, `row 2 column "population"`},
		{"bad living", [][]string{{"id", "population", "is_living"}, {"1", "1", "maybe"}}, `column "is_living"`},
		{"bad geometry", [][]string{{"id", "population", "geometry"}, {"1", "1", "zz"}}, `column "geometry"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseBlocks(tt.rows)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestParseFacilities(t *testing.T) {
	rows := [][]string{
		{"block_id", "capacity", "service"},
		{"1", "300", "schools"},
		{"2", "12.5", "Hospitals"},
		{"1", "50", "schools"},
	}

	schools, err := ParseFacilities(rows, "schools")
	require.NoError(t, err)
	assert.Equal(t, []provision.Facility{{BlockID: 1, Capacity: 300}, {BlockID: 1, Capacity: 50}}, schools)

	all, err := ParseFacilitiesByService(rows)
	require.NoError(t, err)
	assert.Len(t, all, 2)
	assert.Equal(t, []provision.Facility{{BlockID: 2, Capacity: 12.5}}, all["hospitals"])

	// Without a service column every row belongs to the requested service.
	plain, err := ParseFacilities([][]string{{"block_id", "capacity"}, {"4", "1"}}, "cinemas")
	require.NoError(t, err)
	assert.Equal(t, []provision.Facility{{BlockID: 4, Capacity: 1}}, plain)
}

func TestParseFacilities_Errors(t *testing.T) {
	_, err := ParseFacilities([][]string{{"block_id"}}, "schools")
	assert.ErrorContains(t, err, `no "capacity" column`)

	_, err = ParseFacilities([][]string{{"block_id", "capacity"}, {"1", "-1"}}, "schools")
	assert.ErrorContains(t, err, `row 2 column "capacity"`)

	_, err = ParseFacilitiesByService([][]string{{"block_id", "capacity"}, {"1", "1"}})
	assert.ErrorContains(t, err, `no "service" column`)

	_, err = ParseFacilitiesByService([][]string{{"block_id", "capacity", "service"}, {"1", "1", ""}})
	assert.ErrorContains(t, err, "service is required")
}

func TestParseMatrix(t *testing.T) {
	m, err := ParseMatrix([][]string{
		{"", "1", "2", "3"},
		{"1", "0", "5.5", "7"},
		{"2", "5.5", "0", "2"},
		{"3", "7", "2", "0"},
	})
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, m.IDs())
	c, ok := m.Cost(1, 2)
	require.True(t, ok)
	assert.Equal(t, 5.5, c)
}

func TestParseMatrix_Errors(t *testing.T) {
	_, err := ParseMatrix(nil)
	assert.Error(t, err)

	_, err = ParseMatrix([][]string{{"", "1", "2"}, {"2", "0", "1"}, {"1", "1", "0"}})
	require.Error(t, err)
	assert.True(t, eris.Is(err, provision.ErrDataConsistency), "label order mismatch")

	_, err = ParseMatrix([][]string{{"", "1", "2"}, {"1", "0", "1"}})
	require.Error(t, err)
	assert.True(t, eris.Is(err, provision.ErrDataConsistency), "not square")

	_, err = ParseMatrix([][]string{{"", "1", "2"}, {"1", "0"}, {"2", "1", "0"}})
	assert.True(t, eris.Is(err, provision.ErrDataConsistency), "ragged row")

	_, err = ParseMatrix([][]string{{"", "1"}, {"1", "far"}})
	assert.ErrorContains(t, err, `row 2 column "1"`)
}

func TestParseOverrides(t *testing.T) {
	doc := `
name: new school
overrides:
  - block_id: 12
    population: 850
    capacity:
      schools: 300
  - block_id: 14
    capacity:
      schools: -20
`
	got, err := ParseOverrides([]byte(doc))
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, 12, got[0].BlockID)
	require.NotNil(t, got[0].Population)
	assert.Equal(t, 850.0, *got[0].Population)
	assert.Equal(t, map[string]float64{"schools": 300}, got[0].Capacity)
	assert.Nil(t, got[1].Population)
	assert.Equal(t, -20.0, got[1].Capacity["schools"])

	list, err := ParseOverrides([]byte("- block_id: 3\n  population: 10\n"))
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, 3, list[0].BlockID)

	jsonList, err := ParseOverrides([]byte(`[{"block_id": 5, "capacity": {"cinemas": 2}}]`))
	require.NoError(t, err)
	assert.Equal(t, 2.0, jsonList[0].Capacity["cinemas"])
}

// Service keys match facility tables regardless of case.
func TestParseOverrides_ServiceKeysLowerCased(t *testing.T) {
	doc := `
- block_id: 12
  capacity:
    Schools: 300
    " CINEMAS ": 2
- block_id: 13
  capacity:
    Schools: 10
    schools: 5
`
	got, err := ParseOverrides([]byte(doc))
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, map[string]float64{"schools": 300, "cinemas": 2}, got[0].Capacity)
	assert.Equal(t, map[string]float64{"schools": 15}, got[1].Capacity)
}

func TestParseOverrides_Errors(t *testing.T) {
	_, err := ParseOverrides([]byte("overrides: [unclosed"))
	assert.ErrorContains(t, err, "parse overrides")

	_, err = ParseOverrides([]byte("- block_id: 3\n  population: -1\n"))
	assert.ErrorContains(t, err, "population must be a non-negative number")

	_, err = LoadOverrides(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestReadTable(t *testing.T) {
	dir := t.TempDir()

	csvPath := filepath.Join(dir, "blocks.csv")
	require.NoError(t, os.WriteFile(csvPath, []byte("\ufeffid, population\n1, 10\n\n"), 0o644))
	rows, err := ReadTable(context.Background(), csvPath)
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"\ufeffid", "population"}, {"1", "10"}}, rows)
	blocks, err := ParseBlocks(rows)
	require.NoError(t, err)
	assert.Equal(t, 1, blocks[0].ID, "byte order mark is ignored in headers")

	tsvPath := filepath.Join(dir, "blocks.tsv")
	require.NoError(t, os.WriteFile(tsvPath, []byte("id\tpopulation\n1\t10\n"), 0o644))
	rows, err = ReadTable(context.Background(), tsvPath)
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "10"}, rows[1])

	xlsxPath := filepath.Join(dir, "blocks.xlsx")
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("blocks")
	require.NoError(t, err)
	for _, r := range [][]string{{"id", "population"}, {"7", "70"}} {
		row := sheet.AddRow()
		for _, c := range r {
			row.AddCell().SetString(c)
		}
	}
	require.NoError(t, f.Save(xlsxPath))
	rows, err = ReadTable(context.Background(), xlsxPath)
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"id", "population"}, {"7", "70"}}, rows)

	_, err = ReadTable(context.Background(), filepath.Join(dir, "blocks.parquet"))
	assert.ErrorContains(t, err, "unsupported table format")
}

func TestReadTable_EmptyFirstSheet(t *testing.T) {
	path := filepath.Join(t.TempDir(), "city.xlsx")
	f := xlsx.NewFile()
	notes, err := f.AddSheet("notes")
	require.NoError(t, err)
	notes.AddRow().AddCell().SetString("")
	blocks, err := f.AddSheet("blocks")
	require.NoError(t, err)
	row := blocks.AddRow()
	row.AddCell().SetString("id")
	require.NoError(t, f.Save(path))

	_, err = ReadTable(context.Background(), path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `sheet "notes"`)
	assert.Contains(t, err.Error(), "notes, blocks")
}

func TestParseGeometryHex(t *testing.T) {
	data, err := hex.DecodeString("0101000000000000000000f03f0000000000000040")
	require.NoError(t, err)

	blocks, err := ParseBlocks([][]string{{"id", "population", "wkb"}, {"1", "1", hex.EncodeToString(data)}})
	require.NoError(t, err)
	assert.Equal(t, data, blocks[0].Geometry)
}
