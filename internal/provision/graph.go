package provision

import (
	"math"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
)

// NeighborOrder decides which neighbours of a facility are offered capacity
// first during the spill.
type NeighborOrder int

const (
	// OrderByCost visits neighbours by ascending travel cost, ties by block ID.
	OrderByCost NeighborOrder = iota
	// OrderByID visits neighbours by ascending block ID.
	OrderByID
)

// ParseNeighborOrder maps "cost" or "id" to a NeighborOrder.
func ParseNeighborOrder(s string) (NeighborOrder, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "cost":
		return OrderByCost, nil
	case "id":
		return OrderByID, nil
	default:
		return 0, eris.Wrapf(ErrConfiguration, "provision: unknown neighbor order %q", s)
	}
}

func (o NeighborOrder) String() string {
	if o == OrderByID {
		return "id"
	}
	return "cost"
}

// Node is the per-block state of a service graph.
type Node struct {
	ID              int
	Population      float64
	IsLiving        bool
	IsService       bool
	Capacity        float64 // remaining
	InitialCapacity float64
	Provision       float64 // percent of population served, 0..100
	Provided        float64
	Unprovided      float64
	ServingID       int // facility credited with serving this block, 0 = none

	seeded bool
}

// Spent returns the capacity this facility has handed out so far.
func (n *Node) Spent() float64 {
	return n.InitialCapacity - n.Capacity
}

// ServiceGraph is the weighted, undirected graph of one service type. It is
// owned by a single caller and is not safe for concurrent use.
type ServiceGraph struct {
	service string
	nodes   map[int]*Node
	adj     map[int]map[int]float64
}

// NewServiceGraph returns an empty graph for service.
func NewServiceGraph(service string) *ServiceGraph {
	return &ServiceGraph{
		service: service,
		nodes:   make(map[int]*Node),
		adj:     make(map[int]map[int]float64),
	}
}

// Service returns the service type the graph was built for.
func (g *ServiceGraph) Service() string { return g.service }

// Len returns the number of nodes.
func (g *ServiceGraph) Len() int { return len(g.nodes) }

// EdgeCount returns the number of undirected edges.
func (g *ServiceGraph) EdgeCount() int {
	n := 0
	for _, nbrs := range g.adj {
		n += len(nbrs)
	}
	return n / 2
}

// Node returns the node for a block.
func (g *ServiceGraph) Node(id int) (*Node, bool) {
	n, ok := g.nodes[id]
	return n, ok
}

// NodeIDs returns every node ID in ascending order.
func (g *ServiceGraph) NodeIDs() []int {
	ids := make([]int, 0, len(g.nodes))
	for id := range g.nodes {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// Facilities returns the IDs of facility nodes in ascending order.
func (g *ServiceGraph) Facilities() []int {
	var ids []int
	for id, n := range g.nodes {
		if n.IsService {
			ids = append(ids, id)
		}
	}
	sort.Ints(ids)
	return ids
}

// AddNode returns the node for id, creating an unseeded one if needed.
func (g *ServiceGraph) AddNode(id int) *Node {
	if n, ok := g.nodes[id]; ok {
		return n
	}
	n := &Node{ID: id}
	g.nodes[id] = n
	return n
}

// AddEdge adds or updates the undirected edge a-b. Self loops are ignored
// beyond registering the node.
func (g *ServiceGraph) AddEdge(a, b int, weight float64) {
	g.AddNode(a)
	g.AddNode(b)
	if a == b {
		return
	}
	g.link(a, b, weight)
	g.link(b, a, weight)
}

func (g *ServiceGraph) link(from, to int, weight float64) {
	nbrs, ok := g.adj[from]
	if !ok {
		nbrs = make(map[int]float64)
		g.adj[from] = nbrs
	}
	nbrs[to] = weight
}

// Weight returns the weight of edge a-b.
func (g *ServiceGraph) Weight(a, b int) (float64, bool) {
	w, ok := g.adj[a][b]
	return w, ok
}

// Neighbors returns the neighbours of id in the requested order.
func (g *ServiceGraph) Neighbors(id int, order NeighborOrder) []int {
	nbrs := g.adj[id]
	ids := make([]int, 0, len(nbrs))
	for n := range nbrs {
		ids = append(ids, n)
	}
	sort.Slice(ids, func(i, j int) bool {
		if order == OrderByCost {
			wi, wj := nbrs[ids[i]], nbrs[ids[j]]
			if wi != wj {
				return wi < wj
			}
		}
		return ids[i] < ids[j]
	})
	return ids
}

// Seed sets the population attributes of a block's node and zeroes its
// provision counters. Facility status and capacity are left untouched.
func (g *ServiceGraph) Seed(b Block) *Node {
	n := g.AddNode(b.ID)
	n.Population = b.Population
	n.IsLiving = b.IsLiving
	n.Provision = 0
	n.Provided = 0
	n.ServingID = 0
	n.Unprovided = 0
	if b.IsLiving {
		n.Unprovided = b.Population
	}
	n.seeded = true
	return n
}

// MarkFacility flags a node as hosting a facility with the given capacity.
func (g *ServiceGraph) MarkFacility(id int, capacity float64) *Node {
	n := g.AddNode(id)
	n.IsService = true
	n.Capacity = capacity
	n.InitialCapacity = capacity
	return n
}

// Validate checks that every node carries the state the engine reads.
func (g *ServiceGraph) Validate() error {
	for _, id := range g.NodeIDs() {
		n := g.nodes[id]
		if !n.seeded {
			return eris.Wrapf(ErrStructural, "provision: node %d has no population attributes", id)
		}
		if !finite(n.Population) || !finite(n.Provided) || !finite(n.Unprovided) || !finite(n.Provision) {
			return eris.Wrapf(ErrStructural, "provision: node %d has non-finite counters", id)
		}
		if n.IsService && (!finite(n.Capacity) || n.Capacity < 0) {
			return eris.Wrapf(ErrStructural, "provision: facility %d has invalid capacity %v", id, n.Capacity)
		}
	}
	for id, nbrs := range g.adj {
		for nid := range nbrs {
			if _, ok := g.nodes[nid]; !ok {
				return eris.Wrapf(ErrStructural, "provision: edge %d-%d points at a missing node", id, nid)
			}
		}
	}
	return nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
