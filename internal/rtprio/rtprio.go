//go:build linux

// Package rtprio gives the calling goroutine's OS thread a best-effort
// realtime scheduling priority, standing in for the firmware's audio
// processing running at the highest cooperative-scheduler priority in
// Zephyr. A block-processing goroutine that gets descheduled mid-block for
// tens of milliseconds will underrun its output buffer regardless of how
// good the clock-recovery math is.
//
// Grounded on the teacher's ptt.go use of golang.org/x/sys/unix for direct
// syscall access (there via ioctl; here via sched_setscheduler).
package rtprio

import (
	"fmt"
	"runtime"

	"golang.org/x/sys/unix"
)

// Raise locks the calling goroutine to its current OS thread and attempts
// to switch that thread to SCHED_FIFO at priority. Failure (most commonly
// a missing CAP_SYS_NICE) is reported but non-fatal: callers should log and
// continue at the default scheduling policy.
//
// The goroutine must not call runtime.UnlockOSThread itself; the elevated
// priority applies only to the thread it is pinned to.
func Raise(priority int) error {
	runtime.LockOSThread()

	param := &unix.SchedParam{Priority: int32(priority)}
	if err := unix.SchedSetscheduler(0, unix.SCHED_FIFO, param); err != nil {
		return fmt.Errorf("rtprio: sched_setscheduler: %w", err)
	}
	return nil
}

// MaxFIFOPriority reports the highest SCHED_FIFO priority the kernel
// allows, for callers that want to pick a priority relative to the ceiling
// rather than a hardcoded number.
func MaxFIFOPriority() (int, error) {
	p, err := unix.SchedGetPriorityMax(unix.SCHED_FIFO)
	if err != nil {
		return 0, fmt.Errorf("rtprio: sched_get_priority_max: %w", err)
	}
	return p, nil
}
