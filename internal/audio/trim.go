package audio

import "sync"

// HFClockTrim range mirrors the firmware's AUDIO_HFCLKAUDIO_FREQ_REG_MIN/MAX:
// the legal range of the audio-master oscillator's frequency-trim field.
const (
	hfClockTrimMin uint16 = 36834
	hfClockTrimMax uint16 = 42874
)

// HFClockTrim is a software model of the audio-master oscillator's
// frequency-trim register, clamped to the hardware's legal range exactly
// as audio_sync_update clamps hfclkaudio_increment before applying it.
type HFClockTrim struct {
	mu    sync.Mutex
	value uint16
}

// NewHFClockTrim constructs a register at the midpoint of its legal range.
func NewHFClockTrim() *HFClockTrim {
	return &HFClockTrim{value: hfClockTrimMin + (hfClockTrimMax-hfClockTrimMin)/2}
}

// Get returns the register's current value.
func (t *HFClockTrim) Get() uint16 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.value
}

// Set clamps increment to the register's legal range given its current
// value, applies it, and returns the actually-applied signed increment.
func (t *HFClockTrim) Set(increment int16) int16 {
	t.mu.Lock()
	defer t.mu.Unlock()

	maxInc := int32(hfClockTrimMax) - int32(t.value)
	minInc := int32(hfClockTrimMin) - int32(t.value)

	applied := int32(increment)
	if applied > maxInc {
		applied = maxInc
	} else if applied < minInc {
		applied = minInc
	}

	t.value = uint16(int32(t.value) + applied)
	return int16(applied)
}
