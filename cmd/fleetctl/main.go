// Command fleetctl is the operator's command-line client for a
// fleetsync central node's TCP console: one-shot START/STOP/STATUS
// commands, or an interactive raw-terminal session.
package main

import (
	"bufio"
	"fmt"
	"net"
	"os"
	"strings"

	"github.com/pkg/term"
	"github.com/spf13/pflag"
)

func main() {
	var addr = pflag.StringP("addr", "a", "localhost:17201", "Central node operator console address.")
	var interactive = pflag.BoolP("interactive", "i", false, "Open an interactive raw-terminal session.")
	var help = pflag.BoolP("help", "h", false, "Display help text.")

	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, "fleetctl - operator client for a fleetsync central node.\n\n")
		fmt.Fprintf(os.Stderr, "Usage: fleetctl [options] [START [time] | STOP | STATUS]\n\n")
		pflag.PrintDefaults()
	}
	pflag.Parse()

	if *help {
		pflag.Usage()
		os.Exit(0)
	}

	conn, err := net.Dial("tcp", *addr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "fleetctl: connect %s: %s\n", *addr, err)
		os.Exit(1)
	}
	defer conn.Close()

	if *interactive {
		if err := runInteractive("/dev/tty", conn); err != nil {
			fmt.Fprintf(os.Stderr, "fleetctl: %s\n", err)
			os.Exit(1)
		}
		return
	}

	if len(pflag.Args()) == 0 {
		pflag.Usage()
		os.Exit(1)
	}

	cmd := strings.Join(pflag.Args(), " ")
	reply, err := sendCommand(conn, cmd)
	if err != nil {
		fmt.Fprintf(os.Stderr, "fleetctl: %s\n", err)
		os.Exit(1)
	}
	fmt.Println(reply)
}

// sendCommand writes one line to conn and reads back the single-line
// reply.
func sendCommand(conn net.Conn, cmd string) (string, error) {
	if _, err := fmt.Fprintln(conn, cmd); err != nil {
		return "", fmt.Errorf("send: %w", err)
	}
	reply, err := bufio.NewReader(conn).ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("read reply: %w", err)
	}
	return strings.TrimRight(reply, "\r\n"), nil
}

// runInteractive puts ttyPath into raw mode, echoing keystrokes and sending
// a command to conn on each Enter, matching the teacher's serial_port.go use
// of pkg/term.RawMode for direct character I/O with a connected device.
// ttyPath is a parameter (rather than a hardcoded "/dev/tty") so tests can
// point it at a pty slave instead of the process's real controlling
// terminal.
func runInteractive(ttyPath string, conn net.Conn) error {
	tty, err := term.Open(ttyPath, term.RawMode)
	if err != nil {
		return fmt.Errorf("open tty: %w", err)
	}
	defer tty.Restore()
	defer tty.Close()

	fmt.Fprint(os.Stdout, "fleetctl interactive session. Ctrl-D to exit.\r\n")

	connReader := bufio.NewReader(conn)
	var line []byte
	buf := make([]byte, 1)
	for {
		n, err := tty.Read(buf)
		if err != nil || n == 0 {
			return nil
		}
		b := buf[0]
		switch b {
		case '\r', '\n':
			fmt.Fprint(os.Stdout, "\r\n")
			if len(line) == 0 {
				continue
			}
			if _, err := fmt.Fprintln(conn, string(line)); err != nil {
				return fmt.Errorf("send: %w", err)
			}
			reply, err := connReader.ReadString('\n')
			if err != nil {
				return fmt.Errorf("read reply: %w", err)
			}
			fmt.Fprintf(os.Stdout, "%s\r\n", strings.TrimRight(reply, "\r\n"))
			line = line[:0]
		case 0x04: // Ctrl-D
			return nil
		case 0x7f, 0x08: // backspace/delete
			if len(line) > 0 {
				line = line[:len(line)-1]
				fmt.Fprint(os.Stdout, "\b \b")
			}
		default:
			line = append(line, b)
			os.Stdout.Write(buf)
		}
	}
}
