package provision

// Result is the projected provision of one block for one service type.
// Integer fields are truncated from the engine's float accumulators.
type Result struct {
	BlockID              int `json:"block_id"`
	Provision            int `json:"provision"`
	ServingID            int `json:"serving_id"`
	PopulationProvided   int `json:"population_provided"`
	PopulationUnprovided int `json:"population_unprovided"`
	Population           int `json:"population"`
}

// Table is the per-block result of one service type, in block-table order.
type Table struct {
	Service string   `json:"service"`
	Rows    []Result `json:"rows"`
}

// Project folds a finished graph back into one row per input block. Blocks
// that are not living or not in the graph get an all-zero row. Project only
// reads the graph.
func Project(blocks []Block, g *ServiceGraph) Table {
	t := Table{Rows: make([]Result, 0, len(blocks))}
	if g != nil {
		t.Service = g.service
	}

	for _, b := range blocks {
		r := Result{BlockID: b.ID}
		if g != nil {
			if n, ok := g.nodes[b.ID]; ok && n.seeded && n.IsLiving {
				r.Provision = int(n.Provision)
				r.ServingID = n.ServingID
				r.PopulationProvided = int(n.Provided)
				r.PopulationUnprovided = int(n.Unprovided)
				r.Population = int(n.Population)
			}
		}
		t.Rows = append(t.Rows, r)
	}
	return t
}

// Summary holds diagnostic counts for one service graph.
type Summary struct {
	Service              string  `json:"service"`
	TotalBlocks          int     `json:"total_blocks"`
	LivingBlocks         int     `json:"living_blocks"`
	FacilityBlocks       int     `json:"facility_blocks"`
	ServedBlocks         int     `json:"served_blocks"`
	MalformedBlocks      int     `json:"malformed_blocks"`
	TotalPopulation      float64 `json:"total_population"`
	ProvidedPopulation   float64 `json:"provided_population"`
	UnprovidedPopulation float64 `json:"unprovided_population"`
	InitialCapacity      float64 `json:"initial_capacity"`
	RemainingCapacity    float64 `json:"remaining_capacity"`
}

// Summarize counts the blocks of g by kind. Nodes without population
// attributes are reported as malformed and otherwise ignored.
func Summarize(g *ServiceGraph) Summary {
	var s Summary
	if g == nil {
		return s
	}
	s.Service = g.service

	for _, n := range g.nodes {
		s.TotalBlocks++
		if !n.seeded {
			s.MalformedBlocks++
			continue
		}
		if n.IsService {
			s.FacilityBlocks++
			s.InitialCapacity += n.InitialCapacity
			s.RemainingCapacity += n.Capacity
		}
		if !n.IsLiving {
			continue
		}
		s.LivingBlocks++
		if n.ServingID != 0 {
			s.ServedBlocks++
		}
		s.TotalPopulation += n.Population
		s.ProvidedPopulation += n.Provided
		s.UnprovidedPopulation += n.Unprovided
	}
	return s
}

// ProvisionRate returns the share of living population served, in percent.
func (s Summary) ProvisionRate() float64 {
	if s.TotalPopulation <= 0 {
		return 0
	}
	return s.ProvidedPopulation * 100 / s.TotalPopulation
}
