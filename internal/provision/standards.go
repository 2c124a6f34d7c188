package provision

import (
	"math"
	"sort"

	"github.com/rotisserie/eris"
)

// Standards maps a service type to its demand standard: capacity units required
// per 1000 residents.
type Standards map[string]float64

// DefaultStandards returns the built-in per-1000 standards.
func DefaultStandards() Standards {
	return Standards{
		"kindergartens":      61,
		"schools":            120,
		"universities":       13,
		"hospitals":          9,
		"policlinics":        27,
		"theaters":           5,
		"cinemas":            10,
		"cafes":              72,
		"bakeries":           72,
		"fastfoods":          72,
		"music_school":       8,
		"sportgrounds":       15,
		"swimming_pools":     50,
		"conveniences":       90,
		"recreational_areas": 5000,
		"pharmacies":         50,
		"playgrounds":        550,
		"supermarkets":       992,
	}
}

// Lookup returns the standard registered for service.
func (s Standards) Lookup(service string) (float64, error) {
	v, ok := s[service]
	if !ok {
		return 0, eris.Wrapf(ErrConfiguration, "provision: no standard registered for service %q", service)
	}
	if v <= 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, eris.Wrapf(ErrConfiguration, "provision: standard for service %q must be positive, got %v", service, v)
	}
	return v, nil
}

// Merge returns a copy of s with the entries of other added or replaced.
func (s Standards) Merge(other map[string]float64) Standards {
	out := make(Standards, len(s)+len(other))
	for k, v := range s {
		out[k] = v
	}
	for k, v := range other {
		out[k] = v
	}
	return out
}

// Services returns the registered service types in ascending order.
func (s Standards) Services() []string {
	names := make([]string, 0, len(s))
	for k := range s {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
