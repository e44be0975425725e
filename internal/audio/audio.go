// Package audio implements the per-block capture/estimate/control/convert/
// deliver pipeline: it drains fixed-size PCM blocks from hardware, drives
// the frequency estimator and controller off a paired block-time snapshot,
// repacks 32-bit samples down to 24-bit, and hands the result to the
// recorder.
//
// Grounded on the recovered firmware's audio.c (audio_thread_run,
// audio_sync_update, audio_egu_handler, audio_buffer_32_to_24), generalized
// from a single hardware singleton into an injectable pipeline, and on the
// teacher's audio.go for the sound-device interface shape.
package audio

import (
	"context"
	"fmt"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/northbeacon/fleetsync/internal/ctrl"
	"github.com/northbeacon/fleetsync/internal/kalman"
	"github.com/northbeacon/fleetsync/internal/qfix"
	"github.com/northbeacon/fleetsync/internal/recorder"
	"github.com/northbeacon/fleetsync/internal/synctimer"
)

// BlockTimeSnapshot is the {i2s_time, ref_time} pair queued at each PCM
// buffer boundary by the hardware capture route.
type BlockTimeSnapshot struct {
	I2STime qfix.Q
	RefTime uint32
}

// BlockSource is the hardware PCM source: it blocks until the next
// fixed-size buffer is ready, or returns an error the caller treats as a
// transient underrun/overrun (prepare+restart, then continue).
type BlockSource interface {
	// ReadBlock blocks until a buffer of raw 32-bit LE samples is ready.
	ReadBlock(ctx context.Context) ([]byte, error)
	// Restart is called after a transient read error, before the next
	// ReadBlock call.
	Restart(ctx context.Context) error
}

// TrimRegister is the audio-master oscillator's frequency-trim field: an
// integer register clamped to an implementation-defined legal range.
type TrimRegister interface {
	Get() uint16
	// Set clamps increment to the register's legal range before applying
	// it, and returns the actually-applied signed increment.
	Set(increment int16) int16
}

// Config holds the pipeline's static parameters, all derived once at
// startup the way audio_init computes sample_period/block_duration from
// the configured sample rate and block size.
type Config struct {
	NominalFreq   uint32
	SamplePeriod  qfix.Q // ticks per sample, Q32.32
	BlockDuration qfix.Q // ticks per block, Q32.32
	BytesPerFrame uint32
	// ClockRecoveryEnabled mirrors AUDIO_SYNC_ENABLED: when false, blocks
	// are timestamped by reading the hardware counter and converting it
	// with SyncTimer.Correct; the estimator is not fed and the controller
	// does not run.
	ClockRecoveryEnabled bool
}

// Pipeline is the per-block audio processing loop of spec.md §4.5. Not safe
// for concurrent use beyond the single owning audio-thread goroutine that
// calls RunBlock/Run.
type Pipeline struct {
	cfg       Config
	sync      *synctimer.SyncTimer
	ctrl      *ctrl.Controller
	recorder  *recorder.Recorder
	source    BlockSource
	blockTime <-chan BlockTimeSnapshot
	trim      TrimRegister
	// now is consulted only when cfg.ClockRecoveryEnabled is false: it
	// reads the raw local counter directly, without a block-time snapshot.
	now func() uint32

	mu             sync.Mutex
	targetTheta    qfix.Q
	targetThetaSet bool
	lastIncrement  int16
}

// NewPipeline constructs a Pipeline. blockTime must be a fixed-capacity
// channel fed by the hardware buffer-boundary capture route; a dropped send
// on that channel (buffer full) is an overrun the producer must log, not
// something Pipeline observes directly. now is used only when
// cfg.ClockRecoveryEnabled is false.
func NewPipeline(cfg Config, st *synctimer.SyncTimer, c *ctrl.Controller, rec *recorder.Recorder, source BlockSource, blockTime <-chan BlockTimeSnapshot, trim TrimRegister, now func() uint32) *Pipeline {
	return &Pipeline{
		cfg:       cfg,
		sync:      st,
		ctrl:      c,
		recorder:  rec,
		source:    source,
		now:       now,
		blockTime: blockTime,
		trim:      trim,
	}
}

// Run drains blocks until ctx is done or a fatal error occurs (a missed
// block-time snapshot, per spec.md §7's "fatal to the current session").
func (p *Pipeline) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return nil
		}
		if err := p.RunBlock(ctx); err != nil {
			return err
		}
	}
}

// RunBlock processes exactly one PCM block: read, sync, convert, deliver.
// Exported for direct testing without a full Run loop.
func (p *Pipeline) RunBlock(ctx context.Context) error {
	buf, err := p.source.ReadBlock(ctx)
	if err != nil {
		log.Error("audio: read failed, restarting peripheral", "err", err)
		if rerr := p.source.Restart(ctx); rerr != nil {
			return fmt.Errorf("audio: failed to restart after read error: %w", rerr)
		}
		return nil
	}

	var blockStartTime uint32
	startTimeValid := false

	if p.cfg.ClockRecoveryEnabled {
		snapshot, ok := p.nextSnapshot()
		if !ok {
			return fmt.Errorf("audio: block-time snapshot missing, session cannot continue")
		}
		blockStartTime = p.syncUpdate(snapshot)
		startTimeValid = true
	} else {
		local := qfix.FromInt(p.now())
		blockStartTime = qfix.Whole(p.sync.Correct(local))
		startTimeValid = true
	}

	if !startTimeValid {
		return nil
	}

	packed := convert32To24(buf)

	block := recorder.AudioBlock{
		Buf:           packed,
		Len:           uint32(len(packed)),
		StartTime:     blockStartTime,
		Duration:      qfix.Whole(p.cfg.BlockDuration),
		BytesPerFrame: p.cfg.BytesPerFrame,
	}

	if err := p.recorder.Buffer(block); err != nil {
		log.Error("audio: recorder buffer failed", "err", err)
	}
	return nil
}

func (p *Pipeline) nextSnapshot() (BlockTimeSnapshot, bool) {
	select {
	case s := <-p.blockTime:
		return s, true
	default:
		return BlockTimeSnapshot{}, false
	}
}

// syncUpdate mirrors audio_sync_update: convert the local reference
// timestamp into the central timebase, feed the estimator, latch
// target_theta on the first convergence, compute the block's central-time
// start, recompute the controller trim, and apply it.
func (p *Pipeline) syncUpdate(snapshot BlockTimeSnapshot) uint32 {
	p.mu.Lock()
	defer p.mu.Unlock()

	refTime := qfix.FromInt(snapshot.RefTime)
	refCentral := p.sync.Correct(refTime)

	stateBefore := p.sync.State()
	p.sync.Observe(snapshot.I2STime, refCentral, p.lastIncrement)
	stateAfter := p.sync.State()

	if stateBefore.Status == kalman.StatusReset && stateAfter.Status != kalman.StatusReset {
		theta := stateAfter.Theta
		rounded := roundToMultiple(theta, p.cfg.SamplePeriod)
		p.targetTheta = rounded
		p.targetThetaSet = true
		log.Info("audio: phase target latched", "target_theta", rounded)
	}

	blockStartTime := qfix.Whole(snapshot.I2STime - p.targetTheta)

	u := p.ctrl.Update(p.targetTheta, stateAfter)
	applied := p.trim.Set(u)
	p.lastIncrement = applied

	return blockStartTime
}

// convert32To24 drops the least-significant byte of each 32-bit LE sample,
// packing the buffer down to 3/4 of its original length in place semantics
// (a fresh buffer is returned; Go slices make true in-place packing no
// safer than a copy here).
func convert32To24(buf []byte) []byte {
	n := len(buf) / 4
	out := make([]byte, n*3)
	for i := 0; i < n; i++ {
		copy(out[i*3:i*3+3], buf[i*4+1:i*4+4])
	}
	return out
}

func roundToMultiple(v, multiple qfix.Q) qfix.Q {
	if multiple == 0 {
		return v
	}
	half := multiple / 2
	return ((v + half) / multiple) * multiple
}
