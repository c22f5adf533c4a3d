package rng

import (
	"hash/fnv"
	"math/rand/v2"

	"mixsim/ports"
)

// PCGStreams derives independent deterministic PCG streams from a base seed.
// The stream name is hashed into the first PCG word so that differently named
// operations never share a stream even under the same seed; the replicate
// index selects the second word.
type PCGStreams struct{}

var _ ports.RNGPort = PCGStreams{}

// NewPCGStreams creates a PCG-backed RNG port.
func NewPCGStreams() PCGStreams { return PCGStreams{} }

// Stream implements ports.RNGPort.
func (PCGStreams) Stream(name string, seed uint64, replicate uint64) rand.Source {
	h := fnv.New64a()
	h.Write([]byte(name))
	return rand.NewPCG(seed^h.Sum64(), replicate)
}
