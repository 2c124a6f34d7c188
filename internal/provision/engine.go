package provision

import (
	"math"

	"github.com/rotisserie/eris"
)

// DefaultEpsilon is the tolerance used when comparing a load with the
// remaining capacity.
const DefaultEpsilon = 1e-9

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithNeighborOrder sets the order in which a facility's neighbours are served.
func WithNeighborOrder(o NeighborOrder) EngineOption {
	return func(e *Engine) { e.order = o }
}

// WithEpsilon sets the load/capacity comparison tolerance.
func WithEpsilon(eps float64) EngineOption {
	return func(e *Engine) {
		if eps >= 0 && finite(eps) {
			e.epsilon = eps
		}
	}
}

// Engine allocates facility capacity to population for one service type.
type Engine struct {
	standard float64
	order    NeighborOrder
	epsilon  float64
}

// NewEngine creates an Engine for a demand standard expressed as capacity
// units per 1000 residents.
func NewEngine(standard float64, opts ...EngineOption) (*Engine, error) {
	if !finite(standard) || standard <= 0 {
		return nil, eris.Wrapf(ErrConfiguration, "provision: standard must be positive, got %v", standard)
	}
	e := &Engine{standard: standard, order: OrderByCost, epsilon: DefaultEpsilon}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Standard returns the per-1000 demand standard.
func (e *Engine) Standard() float64 { return e.standard }

// Order returns the neighbour order used during the spill.
func (e *Engine) Order() NeighborOrder { return e.order }

// Provide runs one allocation pass over g, mutating it in place.
//
// Facilities are visited in ascending block ID. Each first serves its own
// block, then offers what is left to its neighbours until the capacity runs
// out. Capacity is a single running value per facility and is written back to
// the node once the facility is done. The graph is left untouched when it fails
// validation.
func (e *Engine) Provide(g *ServiceGraph) error {
	if g == nil {
		return eris.Wrap(ErrStructural, "provision: nil graph")
	}
	if err := g.Validate(); err != nil {
		return err
	}

	for _, id := range g.Facilities() {
		f := g.nodes[id]
		capacity := f.Capacity

		if e.wantsService(f) {
			capacity = e.serve(f, id, capacity)
		}

		for _, nid := range g.Neighbors(id, e.order) {
			if capacity <= 0 {
				break
			}
			n := g.nodes[nid]
			if n.IsService || !e.wantsService(n) {
				continue
			}
			capacity = e.serve(n, id, capacity)
		}

		f.Capacity = capacity
	}
	return nil
}

func (e *Engine) wantsService(n *Node) bool {
	return n.IsLiving && n.Population > 0 && n.Provision < 100
}

// serve spends capacity on the unmet demand of n and returns what is left.
func (e *Engine) serve(n *Node, facility int, capacity float64) float64 {
	load := n.Unprovided / 1000 * e.standard

	switch {
	case load <= capacity+e.epsilon:
		capacity = math.Max(capacity-load, 0)
		n.Provided += n.Unprovided
		n.Unprovided = 0
		n.Provision = 100
		n.ServingID = facility

	case capacity > 0:
		served := capacity * 1000 / e.standard
		capacity = 0
		n.Provided += served
		n.Unprovided -= served
		n.Provision = percentServed(n)
		n.ServingID = facility
	}

	return capacity
}

func percentServed(n *Node) float64 {
	if n.Population <= 0 {
		return 0
	}
	return math.Min(math.Max(n.Provided*100/n.Population, 0), 100)
}
