// Package provision computes how well city blocks are served by a category of
// public service. Facility capacity is spent on the facility's own block first
// and then spilled to neighbouring blocks of an accessibility graph until it
// runs out.
package provision

import "github.com/rotisserie/eris"

// Sentinel errors. Callers match them with eris.Is; every returned error wraps
// exactly one of these with context.
var (
	// ErrDataConsistency is returned when inputs contradict each other, e.g. an
	// accessibility matrix that references a block missing from the block table.
	ErrDataConsistency = eris.New("data consistency")

	// ErrStructural is returned when a graph node lacks the state the engine
	// needs. It points at a graph construction bug rather than bad input.
	ErrStructural = eris.New("structural")

	// ErrConfiguration is returned for unknown service types and unusable
	// per-capita standards.
	ErrConfiguration = eris.New("configuration")
)
