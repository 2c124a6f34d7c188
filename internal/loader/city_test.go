package loader

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/provision-cli/internal/provision"
)

// dirOpener resolves bare file names inside a directory.
type dirOpener string

func (d dirOpener) Open(_ context.Context, uri string) (string, error) {
	p := filepath.Join(string(d), uri)
	if _, err := os.Stat(p); err != nil {
		return "", err
	}
	return p, nil
}

func writeCity(t *testing.T, files map[string]string) dirOpener {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}
	return dirOpener(dir)
}

var cityFiles = map[string]string{
	"blocks.csv":     "id,population,is_living\n1,0,false\n2,50,true\n3,80,true\n",
	"matrix.csv":     ",1,2,3\n1,0,1,2\n2,1,0,3\n3,2,3,0\n",
	"schools.csv":    "block_id,capacity\n1,12\n",
	"facilities.csv": "block_id,capacity,service\n3,1.5,cinemas\n1,3,schools\n",
	"scenario.yaml":  "overrides:\n  - block_id: 2\n    capacity:\n      schools: 6\n",
}

func TestLoadCity(t *testing.T) {
	opener := writeCity(t, cityFiles)

	city, err := LoadCity(context.Background(), opener, Sources{
		Blocks:        "blocks.csv",
		Matrix:        "matrix.csv",
		Facilities:    map[string]string{"schools": "schools.csv"},
		FacilitiesAll: "facilities.csv",
		Overrides:     "scenario.yaml",
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"cinemas", "schools"}, city.Model.ServiceTypes())
	assert.Equal(t, map[int]float64{1: 15}, city.Model.Capacities("schools"))
	assert.Equal(t, map[int]float64{3: 1.5}, city.Model.Capacities("cinemas"))
	require.Len(t, city.Overrides, 1)
	assert.Equal(t, 2, city.Overrides[0].BlockID)

	r := provision.NewRunner(provision.DefaultStandards())
	out, err := r.Run(context.Background(), city.Model, "schools", city.Overrides)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, out.Graph.Facilities())
}

func TestLoadCity_MatrixBlockMissing(t *testing.T) {
	files := map[string]string{
		"blocks.csv": "id,population\n1,10\n",
		"matrix.csv": ",1,2\n1,0,1\n2,1,0\n",
	}
	_, err := LoadCity(context.Background(), writeCity(t, files), Sources{Blocks: "blocks.csv", Matrix: "matrix.csv"})
	require.Error(t, err)
	assert.True(t, eris.Is(err, provision.ErrDataConsistency))
}

func TestLoadCity_Errors(t *testing.T) {
	opener := writeCity(t, cityFiles)

	_, err := LoadCity(context.Background(), opener, Sources{Blocks: "blocks.csv"})
	assert.ErrorContains(t, err, "blocks and matrix sources are required")

	_, err = LoadCity(context.Background(), opener, Sources{
		Blocks:     "blocks.csv",
		Matrix:     "matrix.csv",
		Facilities: map[string]string{"schools": "missing.csv"},
	})
	assert.Error(t, err)

	_, err = LoadCity(context.Background(), opener, Sources{
		Blocks:        "blocks.csv",
		Matrix:        "matrix.csv",
		FacilitiesAll: "schools.csv",
	})
	assert.ErrorContains(t, err, `no "service" column`)
}

func TestParseFacilityFlags(t *testing.T) {
	got, err := ParseFacilityFlags([]string{"Schools=data/schools.csv", "cinemas=https://example.com/c.zip"})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"schools": "data/schools.csv", "cinemas": "https://example.com/c.zip"}, got)

	_, err = ParseFacilityFlags([]string{"schools"})
	assert.Error(t, err)
	_, err = ParseFacilityFlags([]string{"a=x", "A=y"})
	assert.ErrorContains(t, err, "given twice")
}
