package provision

import (
	"math"

	"github.com/rotisserie/eris"
)

// AccessibilityMatrix holds precomputed travel costs between every pair of
// blocks. Rows and columns share one ordered list of block IDs.
type AccessibilityMatrix struct {
	ids   []int
	index map[int]int
	costs [][]float64
}

// NewAccessibilityMatrix validates a square cost matrix whose rows and columns
// are both labelled by ids. Costs must be finite and non-negative.
func NewAccessibilityMatrix(ids []int, costs [][]float64) (*AccessibilityMatrix, error) {
	if len(costs) != len(ids) {
		return nil, eris.Wrapf(ErrDataConsistency, "provision: matrix has %d rows for %d ids", len(costs), len(ids))
	}

	index := make(map[int]int, len(ids))
	for i, id := range ids {
		if _, dup := index[id]; dup {
			return nil, eris.Wrapf(ErrDataConsistency, "provision: duplicate block %d in matrix", id)
		}
		index[id] = i
	}

	rows := make([][]float64, len(costs))
	for i, row := range costs {
		if len(row) != len(ids) {
			return nil, eris.Wrapf(ErrDataConsistency, "provision: matrix row %d has %d columns, want %d", ids[i], len(row), len(ids))
		}
		for j, v := range row {
			if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
				return nil, eris.Wrapf(ErrDataConsistency, "provision: invalid cost %v from block %d to block %d", v, ids[i], ids[j])
			}
		}
		rows[i] = append([]float64(nil), row...)
	}

	return &AccessibilityMatrix{
		ids:   append([]int(nil), ids...),
		index: index,
		costs: rows,
	}, nil
}

// NewLabeledMatrix builds a matrix from separately labelled rows and columns,
// as read from a table. Row and column labels must match in the same order.
func NewLabeledMatrix(rowIDs, colIDs []int, costs [][]float64) (*AccessibilityMatrix, error) {
	if len(rowIDs) != len(colIDs) {
		return nil, eris.Wrapf(ErrDataConsistency, "provision: matrix must be NxN, got %dx%d", len(rowIDs), len(colIDs))
	}
	for i := range rowIDs {
		if rowIDs[i] != colIDs[i] {
			return nil, eris.Wrapf(ErrDataConsistency, "provision: matrix row label %d does not match column label %d at position %d", rowIDs[i], colIDs[i], i)
		}
	}
	return NewAccessibilityMatrix(rowIDs, costs)
}

// IDs returns the block IDs in matrix order.
func (m *AccessibilityMatrix) IDs() []int {
	return append([]int(nil), m.ids...)
}

// Len returns the number of blocks in the matrix.
func (m *AccessibilityMatrix) Len() int { return len(m.ids) }

// Has reports whether the block appears in the matrix.
func (m *AccessibilityMatrix) Has(id int) bool {
	_, ok := m.index[id]
	return ok
}

// Cost returns the travel cost from one block to another.
func (m *AccessibilityMatrix) Cost(from, to int) (float64, bool) {
	i, ok := m.index[from]
	if !ok {
		return 0, false
	}
	j, ok := m.index[to]
	if !ok {
		return 0, false
	}
	return m.costs[i][j], true
}
