package central

import (
	"bufio"
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/northbeacon/fleetsync/internal/wire"
)

// Console is the operator-facing text interface: a line-oriented TCP
// server accepting START [time], STOP, and STATUS, standing in for the
// firmware's UI/shell front end to the command mailbox.
type Console struct {
	listener    net.Listener
	assembler   *BeaconAssembler
	cmdQueue    *CommandQueue
	nominalFreq uint32
}

// ListenConsole starts a Console on addr (e.g. ":17201"). nominalFreq is the
// radio-adjacent tick rate used to compute a bare "START" command's delay.
func ListenConsole(addr string, assembler *BeaconAssembler, cmdQueue *CommandQueue, nominalFreq uint32) (*Console, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("central: listen console %s: %w", addr, err)
	}
	return &Console{listener: ln, assembler: assembler, cmdQueue: cmdQueue, nominalFreq: nominalFreq}, nil
}

// Serve accepts connections until the listener is closed.
func (c *Console) Serve() {
	for {
		conn, err := c.listener.Accept()
		if err != nil {
			return
		}
		go c.handle(conn)
	}
}

// Close stops accepting new connections.
func (c *Console) Close() error {
	return c.listener.Close()
}

func (c *Console) handle(conn net.Conn) {
	defer conn.Close()
	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		reply := c.dispatch(line)
		if _, err := fmt.Fprintln(conn, reply); err != nil {
			return
		}
	}
}

func (c *Console) dispatch(line string) string {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return "ERR empty command"
	}

	switch strings.ToUpper(fields[0]) {
	case "START":
		var cmd wire.Cmd
		if len(fields) >= 2 {
			t, err := strconv.ParseUint(fields[1], 10, 32)
			if err != nil {
				return "ERR bad start time"
			}
			cmd = wire.Cmd{ID: wire.CmdStart, StartTime: uint32(t)}
		} else {
			cmd = c.assembler.ScheduleStart(c.nominalFreq)
		}
		if !c.cmdQueue.TryEnqueue(cmd) {
			log.Warn("central: console command dropped, queue full")
			return "ERR queue full"
		}
		return fmt.Sprintf("OK start_time=%d", cmd.StartTime)

	case "STOP":
		cmd := wire.Cmd{ID: wire.CmdStop}
		if !c.cmdQueue.TryEnqueue(cmd) {
			log.Warn("central: console command dropped, queue full")
			return "ERR queue full"
		}
		return "OK"

	case "STATUS":
		return fmt.Sprintf("OK last_packet_time=%d", c.assembler.LastPacketTime())

	default:
		return "ERR unknown command"
	}
}
