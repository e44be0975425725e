package ctrl

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/northbeacon/fleetsync/internal/kalman"
	"github.com/northbeacon/fleetsync/internal/qfix"
)

func TestUpdate_ZeroErrorGivesZeroStep(t *testing.T) {
	c := New(Config{KTheta: 0.01, KF: 4000, MaxStep: 8})
	state := kalman.State{Theta: qfix.FromInt(1000), F: 0}
	got := c.Update(qfix.FromInt(1000), state)
	assert.Equal(t, int16(0), got)
}

func TestUpdate_SaturatesPositive(t *testing.T) {
	c := New(Config{KTheta: 1.0, KF: 0, MaxStep: 8})
	state := kalman.State{Theta: qfix.FromInt(0), F: 0}
	got := c.Update(qfix.FromInt(1_000_000), state)
	assert.Equal(t, int16(8), got)
}

func TestUpdate_SaturatesNegative(t *testing.T) {
	c := New(Config{KTheta: 1.0, KF: 0, MaxStep: 8})
	state := kalman.State{Theta: qfix.FromInt(1_000_000), F: 0}
	got := c.Update(qfix.FromInt(0), state)
	assert.Equal(t, int16(-8), got)
}

func TestUpdate_FrequencyErrorContributes(t *testing.T) {
	c := New(Config{KTheta: 0, KF: 4, MaxStep: 100})
	state := kalman.State{Theta: qfix.FromInt(0), F: -2.0}
	got := c.Update(qfix.FromInt(0), state)
	// fErr = -F = 2.0, u = KF*fErr = 8
	assert.Equal(t, int16(8), got)
}

func TestRoundToInt16_RoundsAwayFromZero(t *testing.T) {
	assert.Equal(t, int16(1), roundToInt16(0.5))
	assert.Equal(t, int16(-1), roundToInt16(-0.5))
	assert.Equal(t, int16(2), roundToInt16(1.5))
	assert.Equal(t, int16(-2), roundToInt16(-1.5))
	assert.Equal(t, int16(0), roundToInt16(0.0))
}
