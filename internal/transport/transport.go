// Package transport carries opaque beacon payload bytes between the
// central node and audio nodes. The periodic-advertising radio stack
// itself is out of scope (spec.md §1); this package models only the
// minimal send/receive contract a BLE periodic-advertising set would
// provide, so the rest of the system is agnostic to the concrete carrier.
//
// Grounded on spec.md §1's transport framing and the teacher's
// kissnet.go/dns_sd.go (network-facing components built directly on
// net.Conn-family primitives rather than a higher-level messaging library).
package transport

import (
	"context"
	"fmt"
	"net"
	"time"
)

// Transport sends and receives opaque beacon payload bytes.
type Transport interface {
	// Send broadcasts payload to all receivers.
	Send(payload []byte) error
	// Recv blocks until the next payload arrives or ctx is done.
	Recv(ctx context.Context) ([]byte, error)
	Close() error
}

// maxPayload bounds a single beacon payload; the wire format's largest
// valid encoding is 12 bytes, but this is sized generously for a
// manufacturer-specific advertising data element.
const maxPayload = 255

// UDPMulticast is a Transport over UDP multicast, standing in for the
// periodic-advertising broadcast: every receiver on the multicast group
// gets every Send.
type UDPMulticast struct {
	conn      *net.UDPConn
	groupAddr *net.UDPAddr
}

// DialUDPMulticast joins group (e.g. "239.192.1.1:17200") for both sending
// and receiving.
func DialUDPMulticast(group string, iface *net.Interface) (*UDPMulticast, error) {
	addr, err := net.ResolveUDPAddr("udp4", group)
	if err != nil {
		return nil, fmt.Errorf("transport: resolve %s: %w", group, err)
	}
	conn, err := net.ListenMulticastUDP("udp4", iface, addr)
	if err != nil {
		return nil, fmt.Errorf("transport: listen multicast %s: %w", group, err)
	}
	conn.SetReadBuffer(maxPayload * 64)
	return &UDPMulticast{conn: conn, groupAddr: addr}, nil
}

// Send writes payload to the multicast group.
func (u *UDPMulticast) Send(payload []byte) error {
	_, err := u.conn.WriteToUDP(payload, u.groupAddr)
	if err != nil {
		return fmt.Errorf("transport: send: %w", err)
	}
	return nil
}

// Recv blocks until the next datagram arrives.
func (u *UDPMulticast) Recv(ctx context.Context) ([]byte, error) {
	type result struct {
		buf []byte
		err error
	}
	done := make(chan result, 1)
	go func() {
		buf := make([]byte, maxPayload)
		n, _, err := u.conn.ReadFromUDP(buf)
		if err != nil {
			done <- result{nil, fmt.Errorf("transport: recv: %w", err)}
			return
		}
		done <- result{buf[:n], nil}
	}()

	select {
	case <-ctx.Done():
		u.conn.SetReadDeadline(time.Now())
		return nil, ctx.Err()
	case r := <-done:
		return r.buf, r.err
	}
}

// Close releases the underlying socket.
func (u *UDPMulticast) Close() error {
	return u.conn.Close()
}
