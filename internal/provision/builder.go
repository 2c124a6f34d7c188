package provision

import (
	"math"
	"sort"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// BuildGraph turns tabular inputs into the service graph for one service type.
//
// Overrides are applied first so the seeded counters reflect them. Each
// facility block present in the matrix becomes a facility node linked to every
// living block of the matrix, weighted by travel cost rounded to 0.1.
func BuildGraph(in GraphInput, service string) (*ServiceGraph, error) {
	blocks, err := indexBlocks(in.Blocks)
	if err != nil {
		return nil, err
	}
	if err := checkMatrixBlocks(in.Matrix, blocks); err != nil {
		return nil, err
	}

	capacities, err := applyOverrides(service, blocks, in.Capacities, in.Overrides)
	if err != nil {
		return nil, err
	}

	var living []int
	for _, id := range in.Matrix.ids {
		if blocks[id].IsLiving {
			living = append(living, id)
		}
	}

	facilities := make([]int, 0, len(capacities))
	for id := range capacities {
		facilities = append(facilities, id)
	}
	sort.Ints(facilities)

	g := NewServiceGraph(service)
	var skipped int
	for _, f := range facilities {
		if !in.Matrix.Has(f) {
			skipped++
			continue
		}
		g.Seed(blocks[f])
		g.MarkFacility(f, capacities[f])

		for _, b := range living {
			if b == f {
				continue
			}
			cost, _ := in.Matrix.Cost(f, b)
			g.AddEdge(f, b, roundWeight(cost))
			if n := g.nodes[b]; !n.seeded {
				g.Seed(blocks[b])
			}
		}
	}

	if skipped > 0 {
		zap.L().Debug("provision: skipped facilities outside the accessibility matrix",
			zap.String("service", service),
			zap.Int("skipped", skipped),
		)
	}
	zap.L().Debug("provision: graph built",
		zap.String("service", service),
		zap.Int("nodes", g.Len()),
		zap.Int("edges", g.EdgeCount()),
		zap.Int("facilities", len(g.Facilities())),
	)

	return g, nil
}

// applyOverrides folds what-if overrides into the block index (population) and
// a copy of the capacity table. Every overridden block gains a capacity entry,
// zero unless a delta for service is given, so it is treated as a facility of
// service. Unknown blocks only gain the capacity entry.
func applyOverrides(service string, blocks map[int]Block, base map[int]float64, overrides []Override) (map[int]float64, error) {
	caps := make(map[int]float64, len(base)+len(overrides))
	for id, c := range base {
		if !finite(c) || c < 0 {
			return nil, eris.Wrapf(ErrDataConsistency, "provision: block %d has invalid %s capacity %v", id, service, c)
		}
		caps[id] = c
	}

	for _, o := range overrides {
		if _, ok := caps[o.BlockID]; !ok {
			caps[o.BlockID] = 0
		}
		if delta, ok := o.Capacity[service]; ok {
			if !finite(delta) {
				return nil, eris.Wrapf(ErrDataConsistency, "provision: override for block %d has invalid capacity delta %v", o.BlockID, delta)
			}
			caps[o.BlockID] = math.Max(caps[o.BlockID]+delta, 0)
		}

		if o.Population == nil {
			continue
		}
		pop := *o.Population
		if !finite(pop) || pop < 0 {
			return nil, eris.Wrapf(ErrDataConsistency, "provision: override for block %d has invalid population %v", o.BlockID, pop)
		}
		if b, ok := blocks[o.BlockID]; ok {
			b.Population = pop
			blocks[o.BlockID] = b
		}
	}

	return caps, nil
}

func roundWeight(v float64) float64 {
	return math.Round(v*10) / 10
}
