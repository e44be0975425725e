package main

import (
	"bufio"
	"bytes"
	"fmt"
	"net"
	"os"
	"testing"
	"time"

	"github.com/creack/pty"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func bytesContains(haystack []byte, needle string) bool {
	return bytes.Contains(haystack, []byte(needle))
}

// fakeConsole is a minimal stand-in for a central node's operator console:
// it replies "OK echo=<line>" to whatever single line it reads.
func fakeConsole(t *testing.T, ln net.Listener) {
	t.Helper()
	conn, err := ln.Accept()
	if err != nil {
		return
	}
	defer conn.Close()
	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		fmt.Fprintf(conn, "OK echo=%s\n", scanner.Text())
	}
}

func TestSendCommand_OneShot(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	go fakeConsole(t, ln)

	conn, err := net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	reply, err := sendCommand(conn, "STATUS")
	require.NoError(t, err)
	assert.Equal(t, "OK echo=STATUS", reply)
}

// TestRunInteractive_SendsLineOnEnter drives runInteractive over a real pty
// pair: keystrokes are written to the pty master, as a terminal driver
// would deliver them, and runInteractive reads from the slave side.
func TestRunInteractive_SendsLineOnEnter(t *testing.T) {
	ptmx, pts, err := pty.Open()
	require.NoError(t, err)
	defer ptmx.Close()
	defer pts.Close()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	go fakeConsole(t, ln)

	conn, err := net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	// runInteractive echoes keystrokes and replies to os.Stdout; point that
	// at the pty slave so the test can observe it through the master side,
	// the same way a shell attaches a child's stdout to its controlling tty.
	origStdout := os.Stdout
	os.Stdout = pts
	defer func() { os.Stdout = origStdout }()

	done := make(chan error, 1)
	go func() {
		done <- runInteractive(pts.Name(), conn)
	}()

	time.Sleep(50 * time.Millisecond)
	_, err = ptmx.Write([]byte("STOP\r"))
	require.NoError(t, err)

	var collected []byte
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		ptmx.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
		buf := make([]byte, 256)
		n, err := ptmx.Read(buf)
		if n > 0 {
			collected = append(collected, buf[:n]...)
		}
		if bytesContains(collected, "OK echo=STOP") {
			break
		}
		if err != nil && n == 0 {
			continue
		}
	}
	assert.Contains(t, string(collected), "OK echo=STOP")

	_, err = ptmx.Write([]byte{0x04}) // Ctrl-D
	require.NoError(t, err)

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("runInteractive did not exit after Ctrl-D")
	}
}
