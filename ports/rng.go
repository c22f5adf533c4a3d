package ports

import "math/rand/v2"

// RNGPort provides seeded random number generation for deterministic simulation.
type RNGPort interface {
	// Stream creates a deterministic random source for a named operation and
	// replicate index. The same (name, seed, replicate) triple always yields
	// an identical stream, independent of worker scheduling, so simulation
	// output never depends on the degree of parallelism.
	Stream(name string, seed uint64, replicate uint64) rand.Source
}
