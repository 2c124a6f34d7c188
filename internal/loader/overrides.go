package loader

import (
	"math"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/provision-cli/internal/provision"
)

// scenarioFile is the document form of an override file:
//
//	name: new school in district 4
//	overrides:
//	  - block_id: 12
//	    population: 850
//	    capacity:
//	      schools: 300
type scenarioFile struct {
	Name      string               `yaml:"name"`
	Overrides []provision.Override `yaml:"overrides"`
}

// ParseOverrides decodes what-if overrides from YAML (or JSON, which YAML
// accepts). Both a bare list and a document with an overrides key are read.
func ParseOverrides(data []byte) ([]provision.Override, error) {
	var doc scenarioFile
	docErr := yaml.Unmarshal(data, &doc)

	overrides := doc.Overrides
	if docErr != nil {
		var list []provision.Override
		if err := yaml.Unmarshal(data, &list); err != nil {
			return nil, eris.Wrap(docErr, "loader: parse overrides")
		}
		overrides = list
	}

	for i := range overrides {
		o := &overrides[i]
		if o.Population != nil && (math.IsNaN(*o.Population) || math.IsInf(*o.Population, 0) || *o.Population < 0) {
			return nil, eris.Errorf("loader: override %d (block %d): population must be a non-negative number", i+1, o.BlockID)
		}
		for svc, delta := range o.Capacity {
			if math.IsNaN(delta) || math.IsInf(delta, 0) {
				return nil, eris.Errorf("loader: override %d (block %d): invalid %s capacity delta", i+1, o.BlockID, svc)
			}
		}
		o.Capacity = normalizeCapacity(o.Capacity)
	}
	return overrides, nil
}

// normalizeCapacity lower-cases service keys the way facility tables are
// keyed. Deltas for keys that differ only in case are summed.
func normalizeCapacity(in map[string]float64) map[string]float64 {
	if in == nil {
		return nil
	}
	out := make(map[string]float64, len(in))
	for svc, delta := range in {
		out[strings.ToLower(strings.TrimSpace(svc))] += delta
	}
	return out
}

// LoadOverrides reads and parses an override file.
func LoadOverrides(path string) ([]provision.Override, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "loader: read overrides %s", path)
	}
	return ParseOverrides(data)
}
