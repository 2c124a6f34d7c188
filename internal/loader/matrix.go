package loader

import (
	"strconv"

	"github.com/rotisserie/eris"

	"github.com/sells-group/provision-cli/internal/provision"
)

// ParseMatrix reads a square accessibility matrix. The first row holds the
// column block IDs after a corner cell; every following row starts with its
// block ID followed by the travel costs.
func ParseMatrix(rows [][]string) (*provision.AccessibilityMatrix, error) {
	if len(rows) == 0 {
		return nil, eris.New("loader: matrix table is empty")
	}

	head := rows[0]
	if len(head) < 2 {
		return nil, eris.New("loader: matrix header has no block columns")
	}
	colIDs := make([]int, len(head)-1)
	for i, raw := range head[1:] {
		id, err := parseID(raw)
		if err != nil {
			return nil, cellError(err, "matrix", 1, strconv.Itoa(i+2), raw)
		}
		colIDs[i] = id
	}

	rowIDs := make([]int, 0, len(rows)-1)
	costs := make([][]float64, 0, len(rows)-1)
	for n, row := range rows[1:] {
		line := n + 2
		if len(row) != len(head) {
			return nil, eris.Wrapf(provision.ErrDataConsistency, "loader: matrix row %d has %d cells, header has %d", line, len(row), len(head))
		}

		id, err := parseID(row[0])
		if err != nil {
			return nil, cellError(err, "matrix", line, "id", row[0])
		}
		rowIDs = append(rowIDs, id)

		vals := make([]float64, len(row)-1)
		for j, raw := range row[1:] {
			v, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				return nil, cellError(err, "matrix", line, strconv.Itoa(colIDs[j]), raw)
			}
			vals[j] = v
		}
		costs = append(costs, vals)
	}

	return provision.NewLabeledMatrix(rowIDs, colIDs, costs)
}
