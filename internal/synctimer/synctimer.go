// Package synctimer owns the local/central timestamp pairing scheme and
// feeds paired observations into a frequency estimator, exposing a pure
// local-to-central timestamp conversion.
//
// Grounded on the recovered firmware's sync_timer.c (sync_timer_recv_adv,
// sync_timer_correct_time) generalized from a single hardware singleton to
// an injectable component, and on spec.md §4.1/§4.2's off-by-one
// sync_seq/sync_time pairing scheme.
package synctimer

import (
	"github.com/northbeacon/fleetsync/internal/kalman"
	"github.com/northbeacon/fleetsync/internal/qfix"
	"github.com/northbeacon/fleetsync/internal/wire"
)

// SyncTimer wraps a frequency estimator with the observe/predict contract
// used by the audio block pipeline and the beacon-reception path.
type SyncTimer struct {
	est *kalman.Estimator
}

// New constructs a SyncTimer around a freshly-initialized estimator.
func New(cfg kalman.Config) *SyncTimer {
	return &SyncTimer{est: kalman.New(cfg)}
}

// Observe feeds one local/central timestamp pair, plus the controller step
// applied since the previous observation, into the estimator.
func (s *SyncTimer) Observe(localTime, centralTime qfix.Q, uPrev int16) {
	s.est.Observe(localTime, centralTime, uPrev)
}

// Predict returns theta + (t - last_time)*f: an offset that converts a
// local timestamp into the central timebase. Pure function of state.
func (s *SyncTimer) Predict(t qfix.Q) qfix.Q {
	return s.est.Predict(t)
}

// Correct returns t adjusted into the central timebase: t + Predict(t).
func (s *SyncTimer) Correct(t qfix.Q) qfix.Q {
	return t + s.Predict(t)
}

// State returns the estimator's current state, for diagnostics and for the
// audio pipeline's target-theta bootstrap (§4.5).
func (s *SyncTimer) State() kalman.State {
	return s.est.State()
}

// CommandSink receives Start/Stop dispatch from the beacon-reception path.
// It is a pair of callbacks rather than an interface, so synctimer need not
// import recorder; fleetaudio fills it with a Recorder's Start and Stop
// methods. A nil callback is skipped.
type CommandSink struct {
	Start func(t uint32)
	Stop  func()
}

// AdvReceiver implements the per-reception contract of spec.md §4.2: it
// pairs consecutive beacon sync_seq/sync_time values into one observation,
// and dispatches Start/Stop commands to a CommandSink on cmd_seq change.
//
// Not safe for concurrent use; the caller (the single BLE-reception
// callback context) must serialize receptions.
type AdvReceiver struct {
	timer *SyncTimer
	sink  CommandSink

	haveState    bool
	prevSyncSeq  uint8
	prevCapture  qfix.Q
	lastCmdSeq   uint16
	haveLastCmdSeq bool
}

// NewAdvReceiver constructs an AdvReceiver delivering paired observations
// to timer and command dispatch to sink.
func NewAdvReceiver(timer *SyncTimer, sink CommandSink) *AdvReceiver {
	return &AdvReceiver{timer: timer, sink: sink}
}

// Receive processes one successfully-decoded beacon payload captured at
// localCapture (the local hardware counter latched at the same instant as
// the central's sync_time, per spec.md §4.2).
func (r *AdvReceiver) Receive(payload wire.BeaconPayload, localCapture qfix.Q) {
	if r.haveState && payload.SyncSeq == r.prevSyncSeq+1 {
		r.timer.Observe(r.prevCapture, qfix.FromInt(payload.SyncTime), 0)
	}

	r.prevCapture = localCapture
	r.prevSyncSeq = payload.SyncSeq
	r.haveState = true

	if r.haveLastCmdSeq && payload.CmdSeq == r.lastCmdSeq {
		return
	}
	r.lastCmdSeq = payload.CmdSeq
	r.haveLastCmdSeq = true

	switch payload.Cmd.ID {
	case wire.CmdStart:
		if r.sink.Start != nil {
			r.sink.Start(payload.Cmd.StartTime)
		}
	case wire.CmdStop:
		if r.sink.Stop != nil {
			r.sink.Stop()
		}
	case wire.CmdNone:
	}
}
