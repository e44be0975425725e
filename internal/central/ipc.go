package central

import (
	"encoding/binary"
	"fmt"
	"net"
	"os"

	"github.com/charmbracelet/log"
)

// ipcMsgLen is the fixed wire size of one inter-core message: a 1-byte
// sequence number followed by a 4-byte little-endian tick count.
const ipcMsgLen = 5

// IPCLink carries PacketEvent messages from the radio-adjacent process to
// the application process over a Unix domain socket, standing in for the
// firmware's single named inter-core endpoint between the two cores.
type IPCLink struct {
	listener net.Listener
	path     string
}

// ListenIPC creates (or replaces) the named Unix socket at path and begins
// accepting connections from the packet-end producer.
func ListenIPC(path string) (*IPCLink, error) {
	_ = os.Remove(path)
	ln, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("central: listen ipc %s: %w", path, err)
	}
	return &IPCLink{listener: ln, path: path}, nil
}

// Serve accepts connections and forwards every decoded PacketEvent to
// assembler.OnPacketEvent, until the listener is closed.
func (l *IPCLink) Serve(assembler *BeaconAssembler) {
	for {
		conn, err := l.listener.Accept()
		if err != nil {
			return
		}
		go l.handle(conn, assembler)
	}
}

func (l *IPCLink) handle(conn net.Conn, assembler *BeaconAssembler) {
	defer conn.Close()
	buf := make([]byte, ipcMsgLen)
	for {
		if _, err := readFull(conn, buf); err != nil {
			return
		}
		ev := PacketEvent{
			Seq:  buf[0],
			Time: binary.LittleEndian.Uint32(buf[1:5]),
		}
		assembler.OnPacketEvent(ev)
	}
}

func readFull(conn net.Conn, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := conn.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// Close removes the socket and stops accepting connections.
func (l *IPCLink) Close() error {
	err := l.listener.Close()
	_ = os.Remove(l.path)
	return err
}

// IPCSender is a connection to a central node's IPC socket, for the
// packet-end capture producer to send PacketEvent messages across.
type IPCSender struct {
	conn net.Conn
}

// DialIPC opens a connection to the IPC socket at path.
func DialIPC(path string) (*IPCSender, error) {
	conn, err := net.Dial("unix", path)
	if err != nil {
		return nil, fmt.Errorf("central: dial ipc %s: %w", path, err)
	}
	return &IPCSender{conn: conn}, nil
}

// Send writes ev to the link. It must never block the capture interrupt
// path for long; callers are expected to run this from a dedicated
// goroutine reading off a buffered channel, not from the interrupt itself.
func (s *IPCSender) Send(ev PacketEvent) error {
	var buf [ipcMsgLen]byte
	buf[0] = ev.Seq
	binary.LittleEndian.PutUint32(buf[1:5], ev.Time)
	if _, err := s.conn.Write(buf[:]); err != nil {
		log.Error("central: ipc send failed", "err", err)
		return fmt.Errorf("central: ipc send: %w", err)
	}
	return nil
}

// Close closes the underlying connection.
func (s *IPCSender) Close() error {
	return s.conn.Close()
}
