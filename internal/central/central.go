// Package central implements the central node's beacon-assembly pipeline:
// a packet-end timestamp feed, a bounded command queue fed by the operator
// console, and a single-slot work item that re-encodes and republishes the
// periodic-advertising payload.
//
// Grounded on the recovered firmware's central/app/src/sync.c
// (sync_ipc_recv, sync_adv_update_handler, sync_cmd_start/stop), adapted
// from Zephyr's k_msgq/k_work primitives to channels and a single update
// goroutine.
package central

import (
	"sync"
	"sync/atomic"

	"github.com/charmbracelet/log"

	"github.com/northbeacon/fleetsync/internal/wire"
)

// startDelayTicksFactor mirrors SYNC_START_DELAY: the Start lead time is
// this many seconds' worth of ticks at the nominal tick rate, long enough
// for audio nodes to reliably receive the command before it takes effect.
const startDelayTicksFactor = 2

// PacketEvent is one {seq, time} message from the packet-end capture
// interrupt, carried across the inter-core transport.
type PacketEvent struct {
	Seq  uint8
	Time uint32
}

// CommandQueue is a bounded, non-blocking, multi-producer single-consumer
// FIFO of pending commands, matching the firmware's two-deep k_msgq.
type CommandQueue struct {
	ch chan wire.Cmd
}

// NewCommandQueue constructs a queue with the given capacity (2 in the
// firmware).
func NewCommandQueue(capacity int) *CommandQueue {
	return &CommandQueue{ch: make(chan wire.Cmd, capacity)}
}

// TryEnqueue attempts to enqueue cmd without blocking. It reports whether
// the command was accepted; a full queue drops the command, same as the
// firmware's K_NO_WAIT k_msgq_put.
func (q *CommandQueue) TryEnqueue(cmd wire.Cmd) bool {
	select {
	case q.ch <- cmd:
		return true
	default:
		return false
	}
}

// tryDequeue attempts to take the next pending command, reporting whether
// one was available.
func (q *CommandQueue) tryDequeue() (wire.Cmd, bool) {
	select {
	case cmd := <-q.ch:
		return cmd, true
	default:
		return wire.Cmd{}, false
	}
}

// AdvUpdater publishes a re-encoded beacon payload to the periodic
// advertising data set. Implementations must not block the caller for long;
// the real implementation hands off to a work-queue-like goroutine.
type AdvUpdater interface {
	SetAdvData(payload []byte) error
}

// BeaconAssembler is the central-side pipeline of spec.md §4.1: it receives
// packet-end timestamps, latches them alongside at most one pending
// command, and republishes the beacon payload via a single coalescing work
// item (never from the packet-end interrupt path itself).
type BeaconAssembler struct {
	cmdQueue *CommandQueue
	updater  AdvUpdater

	lastPktTime atomic.Uint32

	mu         sync.Mutex
	firstSeq   bool
	prevSeq    uint8
	cmdSeq     uint16

	work chan struct{}
	stop chan struct{}

	pending struct {
		mu      sync.Mutex
		payload wire.BeaconPayload
		valid   bool
	}
}

// NewBeaconAssembler constructs a BeaconAssembler publishing through
// updater and drawing commands from cmdQueue. Call Run in its own goroutine
// to start the coalescing work-item consumer.
func NewBeaconAssembler(cmdQueue *CommandQueue, updater AdvUpdater) *BeaconAssembler {
	return &BeaconAssembler{
		cmdQueue: cmdQueue,
		updater:  updater,
		firstSeq: true,
		work:     make(chan struct{}, 1),
		stop:     make(chan struct{}),
	}
}

// LastPacketTime returns the most recently observed packet-end timestamp,
// safe to call concurrently from the operator console when computing a
// Start command's target time.
func (b *BeaconAssembler) LastPacketTime() uint32 {
	return b.lastPktTime.Load()
}

// ScheduleStart builds a Start command whose start_time is nominalFreq *
// startDelayTicksFactor ticks after the last observed packet time, matching
// sync_cmd_start's two-second lead time.
func (b *BeaconAssembler) ScheduleStart(nominalFreq uint32) wire.Cmd {
	return wire.Cmd{
		ID:        wire.CmdStart,
		StartTime: b.lastPktTime.Load() + startDelayTicksFactor*nominalFreq,
	}
}

// OnPacketEvent processes one packet-end timestamp: it is the bottom half
// of the packet-end capture interrupt, and must never block.
func (b *BeaconAssembler) OnPacketEvent(ev PacketEvent) {
	b.mu.Lock()
	if !b.firstSeq && ev.Seq != b.prevSeq+1 {
		log.Warn("central: packet seq mismatch", "got", ev.Seq, "want", b.prevSeq+1)
	}
	b.prevSeq = ev.Seq
	b.firstSeq = false
	b.mu.Unlock()

	b.lastPktTime.Store(ev.Time)

	payload := wire.BeaconPayload{
		SyncSeq:  ev.Seq,
		SyncTime: ev.Time,
	}

	if cmd, ok := b.cmdQueue.tryDequeue(); ok {
		b.mu.Lock()
		b.cmdSeq++
		payload.CmdSeq = b.cmdSeq
		b.mu.Unlock()
		payload.Cmd = cmd
	} else {
		payload.Cmd = wire.Cmd{ID: wire.CmdNone}
	}

	b.pending.mu.Lock()
	b.pending.payload = payload
	b.pending.valid = true
	b.pending.mu.Unlock()

	select {
	case b.work <- struct{}{}:
	default:
		// A publish is already queued; it will pick up this payload too,
		// since work items coalesce on the single pending slot.
	}
}

// Run drives the single-item work queue: each signal re-encodes and
// publishes the latest pending payload, coalescing bursts the same way the
// firmware's shared k_work item does. Run blocks until Close is called.
func (b *BeaconAssembler) Run() {
	for {
		select {
		case <-b.stop:
			return
		case <-b.work:
			b.pending.mu.Lock()
			payload := b.pending.payload
			valid := b.pending.valid
			b.pending.valid = false
			b.pending.mu.Unlock()

			if !valid {
				continue
			}
			if err := b.updater.SetAdvData(wire.Encode(payload)); err != nil {
				log.Error("central: failed to set advertising data", "err", err)
			}
		}
	}
}

// Close stops Run.
func (b *BeaconAssembler) Close() {
	close(b.stop)
}
