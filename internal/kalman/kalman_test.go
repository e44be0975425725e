package kalman

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/northbeacon/fleetsync/internal/qfix"
)

func testConfig() Config {
	return Config{
		NominalFreq:        16_000_000,
		KU:                 1.0,
		QTheta:             0.0,
		QF:                 256.0,
		R:                  390625.0,
		P0:                 1e6,
		OutlierThreshold:   6.0,
		OutlierResyncCount: 4,
	}
}

func TestNew_StartsInReset(t *testing.T) {
	e := New(testConfig())
	s := e.State()
	assert.Equal(t, StatusReset, s.Status)
	assert.Equal(t, qfix.Q(0), s.Theta)
	assert.Equal(t, float64(0), s.F)
}

func TestObserve_FirstObservationInitializesFromReset(t *testing.T) {
	e := New(testConfig())
	local := qfix.FromInt(1000)
	central := qfix.FromInt(900)

	e.Observe(local, central, 0)

	s := e.State()
	assert.Equal(t, StatusConverging, s.Status)
	assert.Equal(t, local-central, s.Theta)
	assert.Equal(t, float64(0), s.F)
}

// TestObserve_SteadyStateConverges feeds a long run of noise-free
// observations with a constant true phase offset and checks the estimator
// converges to it and reaches Converged status.
func TestObserve_SteadyStateConverges(t *testing.T) {
	e := New(testConfig())
	cfg := testConfig()

	const trueTheta = 500
	local := uint32(0)
	for i := 0; i < 2000; i++ {
		local += uint32(cfg.NominalFreq / 1000) // 1ms steps
		central := local - trueTheta
		e.Observe(qfix.FromInt(local), qfix.FromInt(central), 0)
	}

	s := e.State()
	require.Equal(t, StatusConverged, s.Status)
	gotTheta := qfix.ToFloat(s.Theta)
	assert.InDelta(t, trueTheta, gotTheta, 1.0)
	assert.InDelta(t, 0, s.F, 1e-6)
}

// TestObserve_OutlierDoesNotUpdateState injects a single observation whose
// innovation is 100*sqrt(r), far past outlier_threshold, and checks theta/f
// are unchanged (the prediction is retained, but no correction applied).
func TestObserve_OutlierDoesNotUpdateState(t *testing.T) {
	e := New(testConfig())
	cfg := testConfig()

	local := uint32(0)
	local += uint32(cfg.NominalFreq / 1000)
	e.Observe(qfix.FromInt(local), qfix.FromInt(local-500), 0)

	before := e.State()

	r := cfg.R * float64(cfg.NominalFreq) * float64(cfg.NominalFreq)
	outlierOffset := int64(100 * math.Sqrt(r))

	local += uint32(cfg.NominalFreq / 1000)
	badCentral := uint32(int64(local) - 500 - outlierOffset)
	e.Observe(qfix.FromInt(local), qfix.FromInt(badCentral), 0)

	after := e.State()
	assert.Equal(t, before.Theta, after.Theta)
	assert.Equal(t, before.F, after.F)
}

// TestObserve_ConsecutiveOutliersForceReset checks that OutlierResyncCount
// consecutive outliers reset the estimator, and the next observation
// reinitializes theta directly from the new measurement.
func TestObserve_ConsecutiveOutliersForceReset(t *testing.T) {
	e := New(testConfig())
	cfg := testConfig()

	local := uint32(0)
	local += uint32(cfg.NominalFreq / 1000)
	e.Observe(qfix.FromInt(local), qfix.FromInt(local-500), 0)

	r := cfg.R * float64(cfg.NominalFreq) * float64(cfg.NominalFreq)
	outlierOffset := int64(100 * math.Sqrt(r))

	for i := 0; i < cfg.OutlierResyncCount; i++ {
		local += uint32(cfg.NominalFreq / 1000)
		badCentral := uint32(int64(local) - 500 - outlierOffset)
		e.Observe(qfix.FromInt(local), qfix.FromInt(badCentral), 0)
	}

	assert.Equal(t, StatusReset, e.State().Status)

	local += uint32(cfg.NominalFreq / 1000)
	newCentral := local - 9999
	e.Observe(qfix.FromInt(local), qfix.FromInt(newCentral), 0)

	s := e.State()
	assert.Equal(t, StatusConverging, s.Status)
	assert.Equal(t, qfix.FromInt(local)-qfix.FromInt(newCentral), s.Theta)
}

func TestPredict_IsPureFunctionOfState(t *testing.T) {
	e := New(testConfig())
	e.Observe(qfix.FromInt(1000), qfix.FromInt(900), 0)

	before := e.State()
	p1 := e.Predict(qfix.FromInt(2000))
	p2 := e.Predict(qfix.FromInt(2000))
	after := e.State()

	assert.Equal(t, p1, p2)
	assert.Equal(t, before, after)
}
