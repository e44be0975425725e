// Package kalman implements the two-state frequency/phase estimator: a
// Kalman filter fusing local-timer vs. central-timer observations into a
// phase offset (theta) and fractional frequency error (f) estimate.
//
// Ported field-for-field from the recovered firmware's freq_est.c, which
// hand-rolls the 2x2 symmetric covariance propagation rather than using a
// general linear-algebra library; this keeps the exact recurrence spec.md
// §4.3 pins down instead of obscuring it behind a matrix abstraction sized
// for much larger problems.
package kalman

import (
	"math"

	"github.com/northbeacon/fleetsync/internal/qfix"
)

// Status is the estimator's convergence state.
type Status int

const (
	// Reset: no valid estimate; the next observation reinitializes theta.
	StatusReset Status = iota
	// Converging: at least one observation has been absorbed, but no
	// measurement correction has completed yet.
	StatusConverging
	// Converged: at least one full predict+correct cycle has completed.
	StatusConverged
)

func (s Status) String() string {
	switch s {
	case StatusReset:
		return "Reset"
	case StatusConverging:
		return "Converging"
	case StatusConverged:
		return "Converged"
	default:
		return "Unknown"
	}
}

// Config holds the estimator's tuning parameters, all expressed in the
// units spec.md §4.3 documents.
type Config struct {
	// NominalFreq is the nominal tick frequency (ticks/sec), used to scale
	// QF and R into tick units.
	NominalFreq uint32
	// KU is the control-input gain: how one controller-step trim changes
	// f. Scaled internally into Q32.32 units by <<32.
	KU float64
	// QTheta is the phase process variance (tuning).
	QTheta float64
	// QF is the frequency-ratio process variance, in 1/sec^2 before
	// conversion to tick units.
	QF float64
	// R is the phase measurement variance, in sec^2 before conversion to
	// tick units.
	R float64
	// P0 is the initial diagonal uncertainty.
	P0 float64
	// OutlierThreshold is the Mahalanobis-like distance on the innovation
	// that marks an observation as an outlier.
	OutlierThreshold float64
	// OutlierResyncCount is the number of consecutive outliers that force
	// a full reset.
	OutlierResyncCount int
}

// State is the estimator's externally-visible state, matching spec.md's
// FreqEstState.
type State struct {
	Status   Status
	Theta    qfix.Q // phase offset, local minus central, Q32.32 ticks
	F        float64
	LastTime qfix.Q
	P        [2][2]float64
}

// Estimator is the two-state Kalman filter. It is not safe for concurrent
// use; callers (SyncTimer) serialize access per spec.md §5.
type Estimator struct {
	cfg Config
	// ku is KU scaled into Q32.32 units (<<32), matching the firmware's
	// e->k_u = config->k_u * (float)(UINT64_C(1) << 32).
	ku float64
	// qf and r are QF/R after conversion from seconds to tick units.
	qf float64
	r  float64

	state          State
	outlierStreak  int
}

// New constructs an Estimator in the Reset state.
func New(cfg Config) *Estimator {
	nominal2 := float64(cfg.NominalFreq) * float64(cfg.NominalFreq)
	e := &Estimator{
		cfg: cfg,
		ku:  cfg.KU * float64(uint64(1)<<32),
		qf:  cfg.QF / nominal2,
		r:   cfg.R * nominal2,
	}
	e.state.Status = StatusReset
	e.state.P[0][0] = cfg.P0
	e.state.P[1][1] = cfg.P0
	return e
}

// State returns a copy of the estimator's current state.
func (e *Estimator) State() State {
	return e.state
}

// Predict returns theta + (t - last_time)*f: an estimate of the phase
// offset at tick t, extrapolated from the last observation. It is a pure
// function of state and does not mutate the estimator.
func (e *Estimator) Predict(t qfix.Q) qfix.Q {
	dt := float64(qfix.DiffSigned(e.state.LastTime, t))
	return qfix.AddSignedFloat(e.state.Theta, dt*e.state.F)
}

// Observe feeds one {local_ts, central_ts} pair plus the previously applied
// controller increment into the filter, per spec.md §4.3.
func (e *Estimator) Observe(localTime, centralTime qfix.Q, uPrev int16) {
	z := localTime - centralTime

	if e.state.Status == StatusReset {
		e.state.Theta = z
		e.state.F = 0
		e.state.LastTime = localTime
		e.state.Status = StatusConverging
		e.outlierStreak = 0
		return
	}

	dt := float64(qfix.DiffSigned(e.state.LastTime, localTime))
	e.state.LastTime = localTime

	scaledInput := float64(uPrev) * e.ku

	// Predict.
	e.state.Theta = qfix.AddSignedFloat(e.state.Theta, dt*(e.state.F+scaledInput))
	e.state.F += scaledInput

	p := e.state.P
	dtP11 := dt * p[1][1]
	p[0][0] += dt * (dt*e.cfg.QTheta + p[0][1] + p[1][0] + dtP11)
	p[0][1] += dtP11
	p[1][0] += dtP11
	p[1][1] += dt * dt * e.qf

	// Innovation and outlier test against the predicted covariance.
	innovation := float64(qfix.DiffSigned(e.state.Theta, z))
	sigma := math.Sqrt(p[0][0] + e.r)
	if sigma > 0 && math.Abs(innovation)/sigma > e.cfg.OutlierThreshold {
		e.outlierStreak++
		if e.outlierStreak >= e.cfg.OutlierResyncCount {
			e.reset()
			return
		}
		// Keep the prediction, skip the correction step.
		e.state.P = p
		return
	}
	e.outlierStreak = 0

	p00r := p[0][0] + e.r
	k0 := p[0][0] / p00r
	k1 := p[1][0] / p00r

	e.state.Theta = qfix.AddSignedFloat(e.state.Theta, k0*innovation)
	e.state.F += k1 * innovation

	// Order matters: every new entry below is computed from the
	// pre-correction (predicted) p values captured above.
	var corrected [2][2]float64
	corrected[1][1] = p[1][1] - p[0][1]*p[1][0]/p00r
	corrected[0][1] = e.r * p[0][1] / p00r
	corrected[0][0] = e.r * k0
	corrected[1][0] = e.r * k1
	e.state.P = corrected

	if e.state.Status == StatusConverging {
		e.state.Status = StatusConverged
	}
}

func (e *Estimator) reset() {
	e.state = State{Status: StatusReset}
	e.state.P[0][0] = e.cfg.P0
	e.state.P[1][1] = e.cfg.P0
	e.outlierStreak = 0
}
