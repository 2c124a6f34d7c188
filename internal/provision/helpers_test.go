package provision

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// uniformMatrix builds a matrix over ids where every off-diagonal cost is c.
func uniformMatrix(t *testing.T, ids []int, c float64) *AccessibilityMatrix {
	t.Helper()
	costs := make([][]float64, len(ids))
	for i := range ids {
		costs[i] = make([]float64, len(ids))
		for j := range ids {
			if i != j {
				costs[i][j] = c
			}
		}
	}
	m, err := NewAccessibilityMatrix(ids, costs)
	require.NoError(t, err)
	return m
}

// costMatrix builds a matrix from explicit pairwise costs; unlisted pairs cost 10.
func costMatrix(t *testing.T, ids []int, pairs map[[2]int]float64) *AccessibilityMatrix {
	t.Helper()
	pos := make(map[int]int, len(ids))
	for i, id := range ids {
		pos[id] = i
	}
	costs := make([][]float64, len(ids))
	for i := range ids {
		costs[i] = make([]float64, len(ids))
		for j := range ids {
			if i != j {
				costs[i][j] = 10
			}
		}
	}
	for p, c := range pairs {
		costs[pos[p[0]]][pos[p[1]]] = c
		costs[pos[p[1]]][pos[p[0]]] = c
	}
	m, err := NewAccessibilityMatrix(ids, costs)
	require.NoError(t, err)
	return m
}

func living(id int, pop float64) Block {
	return Block{ID: id, Population: pop, IsLiving: true}
}

func nonLiving(id int) Block {
	return Block{ID: id}
}

func buildAndProvide(t *testing.T, in GraphInput, standard float64, opts ...EngineOption) *ServiceGraph {
	t.Helper()
	g, err := BuildGraph(in, "schools")
	require.NoError(t, err)
	e, err := NewEngine(standard, opts...)
	require.NoError(t, err)
	require.NoError(t, e.Provide(g))
	return g
}

func mustNode(t *testing.T, g *ServiceGraph, id int) *Node {
	t.Helper()
	n, ok := g.Node(id)
	require.True(t, ok, "node %d missing", id)
	return n
}

func ptr(v float64) *float64 { return &v }
