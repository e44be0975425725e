//go:build linux

package hwclock

import (
	"fmt"
	"time"

	"github.com/warthog618/go-gpiocdev"
)

// GPIOCapture watches a GPIO line for edges via the Linux gpiocdev uAPI and
// fires a Registry channel on each edge, replacing the firmware's DPPI
// routing (radio packet-end / I2S boundary -> timer capture) for a Linux
// host where the equivalent signal is wired to a GPIO pin.
//
// The timestamp reported by the kernel is a CLOCK_MONOTONIC nanosecond
// value, not a real 16 MHz counter read; GPIOCapture converts it to ticks
// against its own epoch so the result is consistent with a SyntheticCounter
// sharing the same nominal frequency.
type GPIOCapture struct {
	line        *gpiocdev.Line
	nominalFreq uint64
	epoch       time.Time
	registry    *Registry
	channel     Channel
}

// NewGPIOCapture requests offset on chipName as an input with edge
// detection, and wires it to fire channel on registry for every edge.
func NewGPIOCapture(registry *Registry, channel Channel, chipName string, offset int, nominalFreq uint32) (*GPIOCapture, error) {
	g := &GPIOCapture{
		nominalFreq: uint64(nominalFreq),
		epoch:       time.Now(),
		registry:    registry,
		channel:     channel,
	}

	line, err := gpiocdev.RequestLine(chipName, offset,
		gpiocdev.WithBothEdges,
		gpiocdev.WithEventHandler(g.onEvent),
	)
	if err != nil {
		return nil, fmt.Errorf("hwclock: request line %s:%d: %w", chipName, offset, err)
	}
	g.line = line
	return g, nil
}

func (g *GPIOCapture) onEvent(evt gpiocdev.LineEvent) {
	elapsed := time.Duration(evt.Timestamp) - time.Duration(g.epoch.UnixNano())
	ticks := uint64(elapsed) * g.nominalFreq / uint64(time.Second)
	if err := g.registry.Deliver(g.channel, uint32(ticks)); err != nil {
		return
	}
}

// Close releases the requested GPIO line.
func (g *GPIOCapture) Close() error {
	return g.line.Close()
}
