package central

import "github.com/northbeacon/fleetsync/internal/transport"

// TransportUpdater adapts a transport.Transport into an AdvUpdater: setting
// the advertising data becomes broadcasting the re-encoded payload to every
// audio node listening on the shared link.
type TransportUpdater struct {
	t transport.Transport
}

// NewTransportUpdater wraps t for use as a BeaconAssembler's AdvUpdater.
func NewTransportUpdater(t transport.Transport) *TransportUpdater {
	return &TransportUpdater{t: t}
}

// SetAdvData broadcasts payload as the next beacon.
func (u *TransportUpdater) SetAdvData(payload []byte) error {
	return u.t.Send(payload)
}
