package audio

import (
	"context"
	"math/rand"
)

// SyntheticSource is a deterministic BlockSource for tests and
// non-hardware simulation: it generates seeded pseudo-random samples
// instead of reading from a sound device.
type SyntheticSource struct {
	blockBytes int
	rng        *rand.Rand
	restarts   int
}

// NewSyntheticSource constructs a source yielding blockBytes-byte buffers
// of 32-bit LE samples, using seed for reproducible noise.
func NewSyntheticSource(blockBytes int, seed int64) *SyntheticSource {
	return &SyntheticSource{blockBytes: blockBytes, rng: rand.New(rand.NewSource(seed))}
}

// ReadBlock returns one buffer of pseudo-random 32-bit LE samples.
func (s *SyntheticSource) ReadBlock(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	buf := make([]byte, s.blockBytes)
	s.rng.Read(buf)
	return buf, nil
}

// Restart counts restarts for test assertions; synthetic sources never
// actually fail.
func (s *SyntheticSource) Restart(ctx context.Context) error {
	s.restarts++
	return nil
}

// Restarts reports how many times Restart was called.
func (s *SyntheticSource) Restarts() int {
	return s.restarts
}
