package provision

import (
	"math"
	"sort"

	"github.com/rotisserie/eris"
)

// Block is the atomic spatial unit of the city and the unit of demand.
type Block struct {
	ID         int     `json:"id"`
	Population float64 `json:"population"`
	IsLiving   bool    `json:"is_living"`
	Geometry   []byte  `json:"-"` // EWKB, never interpreted here
}

// Facility is one service facility already joined to the block that hosts it.
type Facility struct {
	BlockID  int     `json:"block_id"`
	Capacity float64 `json:"capacity"`
}

// Override adjusts a block for a what-if scenario. Population, when set,
// replaces the block's population. Capacity holds per-service deltas added to
// the block's aggregated capacity.
type Override struct {
	BlockID    int                `json:"block_id" yaml:"block_id"`
	Population *float64           `json:"population,omitempty" yaml:"population,omitempty"`
	Capacity   map[string]float64 `json:"capacity,omitempty" yaml:"capacity,omitempty"`
}

// AggregateCapacities sums facility capacities per hosting block.
func AggregateCapacities(facilities []Facility) map[int]float64 {
	out := make(map[int]float64, len(facilities))
	for _, f := range facilities {
		out[f.BlockID] += f.Capacity
	}
	return out
}

// GraphInput is everything BuildGraph needs for one service type.
type GraphInput struct {
	Blocks     []Block
	Capacities map[int]float64
	Matrix     *AccessibilityMatrix
	Overrides  []Override
}

// CityModel ties the block table, the accessibility matrix and the facility
// tables of every service type together. It is immutable once built.
type CityModel struct {
	blocks   []Block
	matrix   *AccessibilityMatrix
	services map[string]map[int]float64
}

// NewCityModel validates the inputs and returns a model. Every block in the
// matrix must exist in the block table and every facility must sit on a known
// block.
func NewCityModel(blocks []Block, matrix *AccessibilityMatrix, services map[string][]Facility) (*CityModel, error) {
	known, err := indexBlocks(blocks)
	if err != nil {
		return nil, err
	}
	if err := checkMatrixBlocks(matrix, known); err != nil {
		return nil, err
	}

	caps := make(map[string]map[int]float64, len(services))
	for service, facilities := range services {
		for _, f := range facilities {
			if _, ok := known[f.BlockID]; !ok {
				return nil, eris.Wrapf(ErrDataConsistency, "provision: %s facility references unknown block %d", service, f.BlockID)
			}
			if math.IsNaN(f.Capacity) || math.IsInf(f.Capacity, 0) || f.Capacity < 0 {
				return nil, eris.Wrapf(ErrDataConsistency, "provision: %s facility on block %d has invalid capacity %v", service, f.BlockID, f.Capacity)
			}
		}
		caps[service] = AggregateCapacities(facilities)
	}

	return &CityModel{
		blocks:   append([]Block(nil), blocks...),
		matrix:   matrix,
		services: caps,
	}, nil
}

// Blocks returns the block table in input order.
func (c *CityModel) Blocks() []Block {
	return append([]Block(nil), c.blocks...)
}

// Matrix returns the accessibility matrix.
func (c *CityModel) Matrix() *AccessibilityMatrix { return c.matrix }

// ServiceTypes returns the service types that have a facility table.
func (c *CityModel) ServiceTypes() []string {
	names := make([]string, 0, len(c.services))
	for k := range c.services {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Capacities returns a copy of the aggregated capacity per block for service.
// Unknown services yield an empty map.
func (c *CityModel) Capacities(service string) map[int]float64 {
	src := c.services[service]
	out := make(map[int]float64, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}

// Input assembles the graph input for one service type.
func (c *CityModel) Input(service string, overrides []Override) GraphInput {
	return GraphInput{
		Blocks:     c.Blocks(),
		Capacities: c.Capacities(service),
		Matrix:     c.matrix,
		Overrides:  overrides,
	}
}

func indexBlocks(blocks []Block) (map[int]Block, error) {
	out := make(map[int]Block, len(blocks))
	for _, b := range blocks {
		if _, dup := out[b.ID]; dup {
			return nil, eris.Wrapf(ErrDataConsistency, "provision: duplicate block id %d", b.ID)
		}
		if math.IsNaN(b.Population) || math.IsInf(b.Population, 0) || b.Population < 0 {
			return nil, eris.Wrapf(ErrDataConsistency, "provision: block %d has invalid population %v", b.ID, b.Population)
		}
		out[b.ID] = b
	}
	return out, nil
}

func checkMatrixBlocks(matrix *AccessibilityMatrix, known map[int]Block) error {
	if matrix == nil {
		return eris.Wrap(ErrDataConsistency, "provision: accessibility matrix is required")
	}
	for _, id := range matrix.ids {
		if _, ok := known[id]; !ok {
			return eris.Wrapf(ErrDataConsistency, "provision: block %d is in the accessibility matrix but not in the block table", id)
		}
	}
	return nil
}
