// Package protocol implements the reference wire protocol of mini-rpc.
//
// Every message is a frame: a fixed 13-byte header followed by a body. The body
// starts with a meta block (protobuf wire format, see meta.go), followed by the
// payload and then the binary attachment.
//
// Frame format:
//
//	0      3  4  5          9          13
//	┌──────┬──┬──┬──────────┬──────────┬──────────────┬───────────┬────────────┐
//	│magic │v │mt│ metaLen  │ bodyLen  │ meta         │ payload   │ attachment │
//	│ mrp  │02│  │ uint32   │ uint32   │ metaLen bytes│           │            │
//	└──────┴──┴──┴──────────┴──────────┴──────────────┴───────────┴────────────┘
//	                                   └──────────── bodyLen bytes ───────────┘
package protocol

import (
	"encoding/binary"
	"fmt"
	"io"
)

const (
	MagicNumber byte = 0x6d // 'm'
	MagicByte2  byte = 0x72 // 'r'
	MagicByte3  byte = 0x70 // 'p'
	Version     byte = 0x02
	HeaderSize  int  = 13 // 3 (magic) + 1 (version) + 1 (msgType) + 4 (metaLen) + 4 (bodyLen)

	// MaxBodySize bounds a single frame so a corrupt length cannot make the
	// reader allocate gigabytes.
	MaxBodySize uint32 = 64 << 20
)

// MsgType distinguishes the frames on a connection.
type MsgType byte

const (
	MsgTypeRequest   MsgType = 0 // Client → Server RPC request
	MsgTypeResponse  MsgType = 1 // Server → Client RPC response
	MsgTypeHeartbeat MsgType = 2 // KeepAlive probe (no body)
	MsgTypePush      MsgType = 3 // Server → Client unsolicited call
)

// Frame is one decoded frame. Meta and Data share the body buffer.
type Frame struct {
	MsgType MsgType
	Meta    []byte
	Data    []byte // payload followed by the binary attachment
}

// Bytes serializes f into a single buffer ready to be written.
func (f *Frame) Bytes() []byte {
	bodyLen := len(f.Meta) + len(f.Data)
	buf := make([]byte, HeaderSize+bodyLen)
	buf[0], buf[1], buf[2] = MagicNumber, MagicByte2, MagicByte3
	buf[3] = Version
	buf[4] = byte(f.MsgType)
	binary.BigEndian.PutUint32(buf[5:9], uint32(len(f.Meta)))
	binary.BigEndian.PutUint32(buf[9:13], uint32(bodyLen))
	copy(buf[HeaderSize:], f.Meta)
	copy(buf[HeaderSize+len(f.Meta):], f.Data)
	return buf
}

// WriteFrame writes f to w in one Write call.
// The caller must serialize writers that share w.
func WriteFrame(w io.Writer, f *Frame) error {
	_, err := w.Write(f.Bytes())
	return err
}

// ReadFrame reads exactly one frame from r.
func ReadFrame(r io.Reader) (*Frame, error) {
	header := make([]byte, HeaderSize)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, err
	}

	if header[0] != MagicNumber || header[1] != MagicByte2 || header[2] != MagicByte3 {
		return nil, fmt.Errorf("invalid magic number: %x", header[0:3])
	}
	if header[3] != Version {
		return nil, fmt.Errorf("unsupported version: %d", header[3])
	}
	msgType := MsgType(header[4])
	if msgType > MsgTypePush {
		return nil, fmt.Errorf("unsupported message type: %d", header[4])
	}

	metaLen := binary.BigEndian.Uint32(header[5:9])
	bodyLen := binary.BigEndian.Uint32(header[9:13])
	if bodyLen > MaxBodySize {
		return nil, fmt.Errorf("frame body too large: %d", bodyLen)
	}
	if metaLen > bodyLen {
		return nil, fmt.Errorf("meta length %d exceeds body length %d", metaLen, bodyLen)
	}

	body := make([]byte, bodyLen)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, err
	}
	return &Frame{
		MsgType: msgType,
		Meta:    body[:metaLen],
		Data:    body[metaLen:],
	}, nil
}
