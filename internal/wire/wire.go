// Package wire implements the beacon payload wire format: a packed header
// plus an optional command, carried inside a manufacturer-specific element
// on the periodic-advertising transport.
//
//	offset  size  field
//	0       1     sync_seq     (u8,  +1 per beacon, wraps)
//	1       4     sync_time    (u32 LE, local-central ticks at radio end)
//	5       2     cmd_seq      (u16 LE, +1 per non-None command)
//	7       1     cmd_id       (0=None, 1=Start, 2=Stop)
//	8       4     cmd_start_t  (u32 LE, present only when cmd_id=Start)
//
// Valid total lengths are 5 (header only, legacy), 8 (cmd_id None/Stop, the
// header plus cmd_seq and cmd_id), and 12 (cmd_id Start, adding
// cmd_start_t). Any other length, or an unknown cmd_id, is rejected.
//
// (The offsets/sizes above sum to 8 and 12 bytes respectively; that is also
// exactly what the worked passthrough example produces: seq=0x42,
// time=0x0001_0000 with an empty command encodes as the 8-byte sequence
// 42 00 00 01 00 00 00 00.)
package wire

import (
	"encoding/binary"
	"fmt"
)

// CmdID is the on-wire tag for the command carried by a beacon. It is kept
// as an explicit byte rather than a Go enum laid over the wire bytes, so
// that encode/decode never depends on Go's in-memory layout of iota
// constants.
type CmdID uint8

const (
	CmdNone  CmdID = 0
	CmdStart CmdID = 1
	CmdStop  CmdID = 2
)

func (id CmdID) String() string {
	switch id {
	case CmdNone:
		return "None"
	case CmdStart:
		return "Start"
	case CmdStop:
		return "Stop"
	default:
		return fmt.Sprintf("CmdID(%d)", uint8(id))
	}
}

// Cmd is the tagged union carried by a beacon: either no command, a Start
// at a future central-domain timestamp, or a Stop.
type Cmd struct {
	ID        CmdID
	StartTime uint32 // valid only when ID == CmdStart
}

// BeaconPayload is one decoded periodic-advertising beacon.
type BeaconPayload struct {
	SyncSeq  uint8
	SyncTime uint32
	CmdSeq   uint16
	Cmd      Cmd
}

const (
	lenHeaderOnly = 5
	lenNoStartCmd = 8
	lenStartCmd   = 12
)

// Encode packs p into its wire representation: 8 bytes for CmdNone/CmdStop,
// 12 bytes for CmdStart. Use EncodeHeaderOnly for the legacy 5-byte form,
// which carries no command information at all.
func Encode(p BeaconPayload) []byte {
	switch p.Cmd.ID {
	case CmdStart:
		buf := make([]byte, lenStartCmd)
		encodeHeader(buf, p)
		buf[7] = byte(CmdStart)
		binary.LittleEndian.PutUint32(buf[8:12], p.Cmd.StartTime)
		return buf
	case CmdNone, CmdStop:
		buf := make([]byte, lenNoStartCmd)
		encodeHeader(buf, p)
		buf[7] = byte(p.Cmd.ID)
		return buf
	default:
		// Unreachable by construction: every Cmd in this codebase is built
		// with one of the three known IDs above.
		panic(fmt.Sprintf("wire: encode: impossible cmd id %d", p.Cmd.ID))
	}
}

// EncodeHeaderOnly packs the legacy 5-byte header-only form, carrying only
// sync_seq and sync_time and no command information at all.
func EncodeHeaderOnly(syncSeq uint8, syncTime uint32) []byte {
	buf := make([]byte, lenHeaderOnly)
	buf[0] = syncSeq
	binary.LittleEndian.PutUint32(buf[1:5], syncTime)
	return buf
}

func encodeHeader(buf []byte, p BeaconPayload) {
	buf[0] = p.SyncSeq
	binary.LittleEndian.PutUint32(buf[1:5], p.SyncTime)
	binary.LittleEndian.PutUint16(buf[5:7], p.CmdSeq)
}

// Decode unpacks a wire payload. It returns an error for any length outside
// {5, 8, 12} or an unrecognized cmd_id; it never panics on attacker- or
// noise-supplied input.
func Decode(b []byte) (BeaconPayload, error) {
	switch len(b) {
	case lenHeaderOnly:
		return BeaconPayload{
			SyncSeq:  b[0],
			SyncTime: binary.LittleEndian.Uint32(b[1:5]),
			Cmd:      Cmd{ID: CmdNone},
		}, nil
	case lenNoStartCmd:
		p := BeaconPayload{
			SyncSeq:  b[0],
			SyncTime: binary.LittleEndian.Uint32(b[1:5]),
			CmdSeq:   binary.LittleEndian.Uint16(b[5:7]),
		}
		switch CmdID(b[7]) {
		case CmdNone:
			p.Cmd = Cmd{ID: CmdNone}
		case CmdStop:
			p.Cmd = Cmd{ID: CmdStop}
		default:
			return BeaconPayload{}, fmt.Errorf("wire: decode: unknown cmd id %d for %d-byte payload", b[7], lenNoStartCmd)
		}
		return p, nil
	case lenStartCmd:
		if CmdID(b[7]) != CmdStart {
			return BeaconPayload{}, fmt.Errorf("wire: decode: cmd id %d is not Start but payload has %d bytes", b[7], lenStartCmd)
		}
		return BeaconPayload{
			SyncSeq:  b[0],
			SyncTime: binary.LittleEndian.Uint32(b[1:5]),
			CmdSeq:   binary.LittleEndian.Uint16(b[5:7]),
			Cmd: Cmd{
				ID:        CmdStart,
				StartTime: binary.LittleEndian.Uint32(b[8:12]),
			},
		}, nil
	default:
		return BeaconPayload{}, fmt.Errorf("wire: decode: invalid payload length %d", len(b))
	}
}
