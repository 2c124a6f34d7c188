package fetcher

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadCSV_Basic(t *testing.T) {
	input := "id,population\n1,100\n2,250\n"
	rows, err := ReadCSV(context.Background(), strings.NewReader(input), CSVOptions{})
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"id", "population"}, {"1", "100"}, {"2", "250"}}, rows)
}

func TestReadCSV_Options(t *testing.T) {
	input := "# blocks\nid; population\n\n 1 ; 100 \n;\n"
	rows, err := ReadCSV(context.Background(), strings.NewReader(input), CSVOptions{
		Delimiter: ';',
		Comment:   '#',
		TrimSpace: true,
		SkipBlank: true,
	})
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"id", "population"}, {"1", "100"}}, rows)
}

func TestReadCSV_VariableWidth(t *testing.T) {
	rows, err := ReadCSV(context.Background(), strings.NewReader("a,b,c\n1\n"), CSVOptions{})
	require.NoError(t, err)
	assert.Len(t, rows[1], 1)
}

func TestReadCSV_ParseError(t *testing.T) {
	_, err := ReadCSV(context.Background(), strings.NewReader("a,b\n\"unterminated,1\n"), CSVOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "csv: read row")
}

func TestStreamCSV_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rowCh, errCh := StreamCSV(ctx, strings.NewReader("a\nb\nc\n"), CSVOptions{})
	for range rowCh {
	}
	err := <-errCh
	require.Error(t, err)
	assert.Contains(t, err.Error(), "context cancelled")
}

func TestReadCSV_Charset(t *testing.T) {
	// "Школа" in windows-1251.
	input := "service\n\xd8\xea\xee\xeb\xe0\n"
	rows, err := ReadCSV(context.Background(), strings.NewReader(input), CSVOptions{Charset: "windows-1251"})
	require.NoError(t, err)
	assert.Equal(t, "Школа", rows[1][0])

	rows, err = ReadCSV(context.Background(), strings.NewReader("a\n1\n"), CSVOptions{Charset: "UTF-8"})
	require.NoError(t, err)
	assert.Len(t, rows, 2)

	_, err = ReadCSV(context.Background(), strings.NewReader("a\n"), CSVOptions{Charset: "klingon"})
	assert.ErrorContains(t, err, "unsupported charset")
}
