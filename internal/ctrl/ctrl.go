// Package ctrl implements the frequency controller: a proportional law on
// phase error and frequency error that produces a saturated per-block
// sample-clock trim step.
//
// Ported from the recovered firmware's freq_ctlr.c. The controller has no
// integral term of its own; the estimator's f state already accumulates the
// effect of past control steps, which is what gives the loop its PI-like
// character despite the control law itself being pure proportional.
package ctrl

import (
	"github.com/northbeacon/fleetsync/internal/kalman"
	"github.com/northbeacon/fleetsync/internal/qfix"
)

// Config holds the controller's gains and step limit.
type Config struct {
	// KTheta is the phase-error gain.
	KTheta float64
	// KF is the frequency-error gain.
	KF float64
	// MaxStep bounds |u| for a single update.
	MaxStep uint16
}

// Controller is the stateless proportional frequency controller.
type Controller struct {
	cfg Config
}

// New constructs a Controller from cfg.
func New(cfg Config) *Controller {
	return &Controller{cfg: cfg}
}

// Update computes the next control step given a target phase and the
// estimator's current state. The returned value is the signed increment to
// apply to the audio-master oscillator's frequency-trim register, saturated
// to ±cfg.MaxStep.
func (c *Controller) Update(targetTheta qfix.Q, state kalman.State) int16 {
	thetaErr := float64(qfix.DiffSigned(state.Theta, targetTheta))
	fErr := -state.F
	u := c.cfg.KTheta*thetaErr + c.cfg.KF*fErr

	max := float64(c.cfg.MaxStep)
	switch {
	case u > max:
		return int16(c.cfg.MaxStep)
	case u < -max:
		return -int16(c.cfg.MaxStep)
	default:
		return roundToInt16(u)
	}
}

// roundToInt16 rounds away from zero, matching the firmware's
// round_f_to_i16 (f + 0.5*sign(f)) rather than banker's rounding.
func roundToInt16(f float64) int16 {
	if f > 0 {
		return int16(f + 0.5)
	}
	return int16(f - 0.5)
}
