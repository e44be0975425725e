package central

import (
	"bufio"
	"fmt"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/northbeacon/fleetsync/internal/wire"
)

func TestConsole_DispatchStartWithExplicitTime(t *testing.T) {
	q := NewCommandQueue(2)
	assembler := NewBeaconAssembler(q, &fakeUpdater{})
	c := &Console{assembler: assembler, cmdQueue: q, nominalFreq: 16_000_000}

	reply := c.dispatch("START 12345")
	assert.Equal(t, "OK start_time=12345", reply)

	cmd, ok := q.tryDequeue()
	require.True(t, ok)
	assert.Equal(t, wire.CmdStart, cmd.ID)
	assert.Equal(t, uint32(12345), cmd.StartTime)
}

func TestConsole_DispatchBareStartUsesScheduleStart(t *testing.T) {
	q := NewCommandQueue(2)
	assembler := NewBeaconAssembler(q, &fakeUpdater{})
	assembler.OnPacketEvent(PacketEvent{Seq: 1, Time: 1000})
	c := &Console{assembler: assembler, cmdQueue: q, nominalFreq: 16_000_000}

	reply := c.dispatch("START")
	assert.Equal(t, fmt.Sprintf("OK start_time=%d", 1000+2*16_000_000), reply)
}

func TestConsole_DispatchStop(t *testing.T) {
	q := NewCommandQueue(2)
	assembler := NewBeaconAssembler(q, &fakeUpdater{})
	c := &Console{assembler: assembler, cmdQueue: q, nominalFreq: 16_000_000}

	reply := c.dispatch("STOP")
	assert.Equal(t, "OK", reply)

	cmd, ok := q.tryDequeue()
	require.True(t, ok)
	assert.Equal(t, wire.CmdStop, cmd.ID)
}

func TestConsole_DispatchStatus(t *testing.T) {
	q := NewCommandQueue(2)
	assembler := NewBeaconAssembler(q, &fakeUpdater{})
	assembler.OnPacketEvent(PacketEvent{Seq: 1, Time: 42})
	c := &Console{assembler: assembler, cmdQueue: q, nominalFreq: 16_000_000}

	assert.Equal(t, "OK last_packet_time=42", c.dispatch("STATUS"))
}

func TestConsole_DispatchUnknownCommand(t *testing.T) {
	q := NewCommandQueue(2)
	assembler := NewBeaconAssembler(q, &fakeUpdater{})
	c := &Console{assembler: assembler, cmdQueue: q, nominalFreq: 16_000_000}

	assert.Equal(t, "ERR unknown command", c.dispatch("FROB"))
}

func TestConsole_DispatchQueueFull(t *testing.T) {
	q := NewCommandQueue(1)
	assembler := NewBeaconAssembler(q, &fakeUpdater{})
	c := &Console{assembler: assembler, cmdQueue: q, nominalFreq: 16_000_000}

	require.Equal(t, "OK", c.dispatch("STOP"))
	assert.Equal(t, "ERR queue full", c.dispatch("STOP"))
}

func TestConsole_ServeOverTCP(t *testing.T) {
	q := NewCommandQueue(2)
	assembler := NewBeaconAssembler(q, &fakeUpdater{})
	c, err := ListenConsole("127.0.0.1:0", assembler, q, 16_000_000)
	require.NoError(t, err)
	go c.Serve()
	defer c.Close()

	conn, err := net.Dial("tcp", c.listener.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	fmt.Fprintln(conn, "STOP")
	reply, err := bufio.NewReader(conn).ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "OK\n", reply)
}
