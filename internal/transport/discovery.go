package transport

import (
	"context"
	"fmt"

	"github.com/brutella/dnssd"
)

// serviceType is the mDNS service type a central node advertises so audio
// nodes can find the multicast group and port to join, mirroring the
// teacher's dns_sd.go use of a fixed service type for peer discovery.
const serviceType = "_fleetsync._udp"

// Announcer advertises a central node's beacon multicast endpoint over
// mDNS/DNS-SD so audio nodes on the same link can discover it without a
// hardcoded address.
type Announcer struct {
	responder dnssd.Responder
	cancel    context.CancelFunc
}

// Announce advertises name on port, carrying group in a TXT record so
// discoverers know which multicast group to join.
func Announce(ctx context.Context, name string, port int, group string) (*Announcer, error) {
	cfg := dnssd.Config{
		Name: name,
		Type: serviceType,
		Port: port,
		Text: map[string]string{"group": group},
	}
	service, err := dnssd.NewService(cfg)
	if err != nil {
		return nil, fmt.Errorf("transport: new service: %w", err)
	}

	responder, err := dnssd.NewResponder()
	if err != nil {
		return nil, fmt.Errorf("transport: new responder: %w", err)
	}
	if _, err := responder.Add(service); err != nil {
		return nil, fmt.Errorf("transport: add service: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	a := &Announcer{responder: responder, cancel: cancel}
	go func() {
		if err := responder.Respond(runCtx); err != nil && runCtx.Err() == nil {
			fmt.Printf("transport: responder stopped: %v\n", err)
		}
	}()
	return a, nil
}

// Close stops advertising.
func (a *Announcer) Close() error {
	a.cancel()
	return nil
}

// Discover finds the first central node's multicast group advertised under
// serviceType, blocking until one is found or ctx is done.
func Discover(ctx context.Context) (group string, err error) {
	found := make(chan string, 1)
	addFn := func(e dnssd.BrowseEntry) {
		if g, ok := e.Text["group"]; ok {
			select {
			case found <- g:
			default:
			}
		}
	}
	rmvFn := func(dnssd.BrowseEntry) {}

	browseCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		_ = dnssd.LookupType(browseCtx, serviceType, addFn, rmvFn)
	}()

	select {
	case g := <-found:
		return g, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}
