// Package recorder implements the frame-exact RIFF/WAVE recording state
// machine: Start/Stop commands split an in-flight PCM block at a
// frame-aligned offset and roll recording across file boundaries.
//
// Ported from the recovered firmware's record.c/record.h, generalized from
// a single global singleton to an injectable component. Files are always
// named REC_NNNN.wav and opened with wav.Create.
package recorder

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/northbeacon/fleetsync/internal/wav"
)

// State is the recorder's state machine position.
type State int

const (
	StateStopped State = iota
	StateWaitingStart
	StateWaitingCut
	StateRunning
)

func (s State) String() string {
	switch s {
	case StateStopped:
		return "Stopped"
	case StateWaitingStart:
		return "WaitingStart"
	case StateWaitingCut:
		return "WaitingCut"
	case StateRunning:
		return "Running"
	default:
		return "Unknown"
	}
}

// AudioBlock is one PCM buffer delivered by the audio pipeline, timestamped
// in the central timebase.
type AudioBlock struct {
	Buf           []byte
	Len           uint32
	StartTime     uint32
	Duration      uint32
	BytesPerFrame uint32
}

var fileNameRE = regexp.MustCompile(`^REC_(\d+)\.wav$`)

// Recorder is the recording state machine. Safe for concurrent use; every
// transition and the open file handle are guarded by a single mutex.
type Recorder struct {
	dir    string
	format wav.Format

	mu         sync.Mutex
	state      State
	startTime  uint32
	file       *wav.Writer
	nextIndex  uint32
}

// New constructs a Recorder writing REC_NNNN.wav files under dir. It scans
// dir at construction to determine the next free file index, per spec:
// index is max(existing index)+1, or 0 if none exist.
func New(dir string, format wav.Format) (*Recorder, error) {
	next, err := nextFileIndex(dir)
	if err != nil {
		log.Warn("recorder: failed to scan existing files, starting at index 0", "dir", dir, "err", err)
		next = 0
	}
	return &Recorder{dir: dir, format: format, state: StateStopped, nextIndex: next}, nil
}

func nextFileIndex(dir string) (uint32, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, err
	}
	var next uint32
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		m := fileNameRE.FindStringSubmatch(entry.Name())
		if m == nil {
			continue
		}
		n, err := strconv.ParseUint(m[1], 10, 32)
		if err != nil {
			continue
		}
		if uint32(n)+1 > next {
			next = uint32(n) + 1
		}
	}
	return next, nil
}

// State returns the recorder's current state, for diagnostics.
func (r *Recorder) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Start requests recording to begin at central time t. Per spec.md §4.6:
// from Stopped or WaitingStart it moves to WaitingStart{t}; from WaitingCut
// or Running it moves to WaitingCut{t} (the in-flight file will be cut at
// t on the next matching block).
func (r *Recorder) Start(t uint32) {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch r.state {
	case StateStopped, StateWaitingStart:
		r.state = StateWaitingStart
	case StateWaitingCut, StateRunning:
		r.state = StateWaitingCut
	}
	r.startTime = t
	log.Info("recorder: start requested", "t", t, "state", r.state)
}

// Stop requests recording to end. Any open file is closed with its WAVE
// header patched to the true data size.
func (r *Recorder) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch r.state {
	case StateWaitingCut, StateRunning:
		if r.file != nil {
			if err := r.file.Close(); err != nil {
				log.Error("recorder: error closing file on stop", "err", err)
			}
			r.file = nil
		}
	}
	r.state = StateStopped
	log.Info("recorder: stopped")
}

// Buffer delivers one audio block to the recorder. It returns an error only
// when a filesystem operation failed; the recorder has already transitioned
// to Stopped in that case.
func (r *Recorder) Buffer(block AudioBlock) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var oldFile, newFile bool
	var splitOffset uint32

	switch r.state {
	case StateStopped:
		return nil
	case StateWaitingCut:
		oldFile = true
		fallthrough
	case StateWaitingStart:
		wait := r.startTime - block.StartTime
		if wait <= block.Duration {
			newFile = true
			splitOffset = roundDivClosest(wait*block.Len/block.BytesPerFrame, block.Duration) * block.BytesPerFrame
		} else {
			newFile = false
			splitOffset = block.Len
		}
	case StateRunning:
		oldFile = true
		newFile = false
		splitOffset = block.Len
	}

	if oldFile {
		if r.file == nil {
			return r.fail(errors.New("recorder: internal error: old-file write with no open file"))
		}
		if _, err := r.file.Write(block.Buf[:splitOffset]); err != nil {
			return r.fail(fmt.Errorf("recorder: write failed: %w", err))
		}
	}

	if newFile {
		if oldFile && r.file != nil {
			if err := r.file.Close(); err != nil {
				log.Warn("recorder: error closing previous file", "err", err)
			}
			r.file = nil
		}

		name := filepath.Join(r.dir, fmt.Sprintf("REC_%04d.wav", r.nextIndex))
		f, err := wav.Create(name, r.format)
		if err != nil {
			return r.fail(fmt.Errorf("recorder: failed to create %s: %w", name, err))
		}
		r.nextIndex++

		if _, err := f.Write(block.Buf[splitOffset:block.Len]); err != nil {
			f.CloseNoUpdate()
			return r.fail(fmt.Errorf("recorder: write failed: %w", err))
		}

		r.file = f
		r.state = StateRunning
	}

	return nil
}

// fail closes the current file (without patching its header, since the
// failure may be the write itself) and transitions to Stopped.
func (r *Recorder) fail(err error) error {
	log.Error("recorder: filesystem error, stopping", "err", err)
	if r.file != nil {
		r.file.CloseNoUpdate()
		r.file = nil
	}
	r.state = StateStopped
	return err
}

func roundDivClosest(num, den uint32) uint32 {
	if den == 0 {
		return 0
	}
	return (num + den/2) / den
}
