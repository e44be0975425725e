package hwclock

import (
	"sync/atomic"
	"time"
)

// SyntheticCounter simulates a free-running hardware counter by scaling
// wall-clock elapsed time to ticks at a configured nominal frequency. Used
// on non-Linux platforms and in tests, where no real capture hardware is
// present.
type SyntheticCounter struct {
	nominalFreq uint64
	start       time.Time
	offset      atomic.Int64 // ticks, for deterministic test advancement
}

// NewSyntheticCounter constructs a counter ticking at nominalFreq Hz,
// starting from zero at the moment of construction.
func NewSyntheticCounter(nominalFreq uint32) *SyntheticCounter {
	return &SyntheticCounter{nominalFreq: uint64(nominalFreq), start: time.Now()}
}

// Now returns the elapsed wall-clock time since construction, in ticks,
// truncated to 32 bits the same way a real free-running counter wraps.
func (c *SyntheticCounter) Now() uint32 {
	elapsed := time.Since(c.start)
	// Whole seconds and the sub-second remainder are scaled separately so
	// the product cannot overflow 64 bits on a long-running process.
	secs := uint64(elapsed / time.Second)
	rem := uint64(elapsed % time.Second)
	ticks := secs*c.nominalFreq + rem*c.nominalFreq/uint64(time.Second)
	return uint32(ticks) + uint32(c.offset.Load())
}

// Advance offsets the counter by delta ticks, for deterministic tests that
// cannot rely on wall-clock scheduling jitter.
func (c *SyntheticCounter) Advance(delta int64) {
	c.offset.Add(delta)
}
