package transport

import "context"

// Loopback is an in-memory Transport for single-process simulation and
// tests: every Send is delivered to every other Loopback sharing the same
// hub, with no network involved.
type Loopback struct {
	hub *loopbackHub
	in  chan []byte
}

type loopbackHub struct {
	members []*Loopback
}

// NewLoopbackHub creates a hub that NewLoopback peers attach to.
func NewLoopbackHub() *loopbackHub {
	return &loopbackHub{}
}

// NewLoopback attaches a new peer to hub.
func NewLoopback(hub *loopbackHub) *Loopback {
	l := &Loopback{hub: hub, in: make(chan []byte, 16)}
	hub.members = append(hub.members, l)
	return l
}

// Send delivers payload to every other peer on the hub.
func (l *Loopback) Send(payload []byte) error {
	cp := append([]byte(nil), payload...)
	for _, peer := range l.hub.members {
		if peer == l {
			continue
		}
		select {
		case peer.in <- cp:
		default:
			// Slow receiver drops the datagram, same as a real radio link.
		}
	}
	return nil
}

// Recv blocks until a payload arrives or ctx is done.
func (l *Loopback) Recv(ctx context.Context) ([]byte, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case buf := <-l.in:
		return buf, nil
	}
}

// Close is a no-op; Loopback holds no OS resources.
func (l *Loopback) Close() error {
	return nil
}
