// Package storage watches for removable storage becoming available or
// going away, so a recording node can gate capture on a card being present
// and flush cleanly when it is pulled.
//
// Grounded on the teacher's cm108.go USB device discovery (libudev
// enumerate-by-subsystem, here the "block" subsystem instead of "sound"/
// "hidraw") rewritten against the pure-Go jochenvg/go-udev binding instead
// of cgo.
package storage

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/jochenvg/go-udev"
)

// Event reports a removable block device appearing or disappearing.
type Event struct {
	DevNode string
	Present bool
}

// Watcher emits Event values for udev "block" subsystem add/remove actions
// on devices tagged removable.
type Watcher struct {
	u       *udev.Udev
	events  chan Event
	cancel  context.CancelFunc
}

// NewWatcher enumerates currently present removable block devices, then
// starts monitoring for further changes.
func NewWatcher(ctx context.Context) (*Watcher, error) {
	u := udev.Udev{}
	w := &Watcher{u: &u, events: make(chan Event, 8)}

	runCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel

	if err := w.scanExisting(); err != nil {
		cancel()
		return nil, err
	}

	mon := u.NewMonitorFromNetlink("udev")
	if err := mon.FilterAddMatchSubsystem("block"); err != nil {
		cancel()
		return nil, fmt.Errorf("storage: filter subsystem: %w", err)
	}
	deviceCh, errCh, err := mon.DeviceChan(runCtx)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("storage: device channel: %w", err)
	}

	go w.run(runCtx, deviceCh, errCh)
	return w, nil
}

func (w *Watcher) scanExisting() error {
	e := w.u.NewEnumerate()
	if err := e.AddMatchSubsystem("block"); err != nil {
		return fmt.Errorf("storage: enumerate match: %w", err)
	}
	if err := e.AddMatchIsInitialized(); err != nil {
		return fmt.Errorf("storage: enumerate match: %w", err)
	}
	devices, err := e.Devices()
	if err != nil {
		return fmt.Errorf("storage: enumerate scan: %w", err)
	}
	for _, d := range devices {
		if !isRemovable(d) {
			continue
		}
		node := d.Devnode()
		if node == "" {
			continue
		}
		select {
		case w.events <- Event{DevNode: node, Present: true}:
		default:
		}
	}
	return nil
}

func (w *Watcher) run(ctx context.Context, deviceCh <-chan *udev.Device, errCh <-chan error) {
	defer close(w.events)
	for {
		select {
		case <-ctx.Done():
			return
		case err, ok := <-errCh:
			if !ok {
				return
			}
			log.Error("storage: monitor error", "err", err)
		case d, ok := <-deviceCh:
			if !ok {
				return
			}
			if !isRemovable(d) {
				continue
			}
			node := d.Devnode()
			if node == "" {
				continue
			}
			present := d.Action() != "remove"
			select {
			case w.events <- Event{DevNode: node, Present: present}:
			case <-ctx.Done():
				return
			}
		}
	}
}

// Events returns the channel of storage presence changes. It is closed
// when the Watcher's context is done.
func (w *Watcher) Events() <-chan Event {
	return w.events
}

// Close stops monitoring.
func (w *Watcher) Close() error {
	w.cancel()
	return nil
}

func isRemovable(d *udev.Device) bool {
	return d.SysAttrValue("removable") == "1"
}
