// Package wire implements the Hyperspace wire protocol: the fixed-layout
// message header shared by every TCP request/response and UDP keepalive
// datagram, and the typed payload codec used for everything after it.
package wire

import (
	"encoding/binary"
	"fmt"
)

// ProtocolID identifies the Hyperspace wire protocol in the header, guarding
// against a stray connection from an unrelated service landing on the same
// port.
const ProtocolID uint16 = 0x4870 // "Hp"

// HeaderSize is the encoded size in bytes of Header.
const HeaderSize = 24

// Command identifies the operation a request carries.
type Command uint16

const (
	CmdKeepAlive Command = iota + 1
	CmdHandshake
	CmdOpen
	CmdClose
	CmdMkdir
	CmdUnlink
	CmdAttrSet
	CmdAttrGet
	CmdAttrExists
	CmdAttrDel
	CmdAttrList
	CmdReaddir
	CmdExists
	CmdLock
	CmdRelease
	CmdStatus
)

func (c Command) String() string {
	switch c {
	case CmdKeepAlive:
		return "keepalive"
	case CmdHandshake:
		return "handshake"
	case CmdOpen:
		return "open"
	case CmdClose:
		return "close"
	case CmdMkdir:
		return "mkdir"
	case CmdUnlink:
		return "unlink"
	case CmdAttrSet:
		return "attr-set"
	case CmdAttrGet:
		return "attr-get"
	case CmdAttrExists:
		return "attr-exists"
	case CmdAttrDel:
		return "attr-del"
	case CmdAttrList:
		return "attr-list"
	case CmdReaddir:
		return "readdir"
	case CmdExists:
		return "exists"
	case CmdLock:
		return "lock"
	case CmdRelease:
		return "release"
	case CmdStatus:
		return "status"
	default:
		return "unknown"
	}
}

// Flags is the header's flags word. Only FlagResponse is defined today; the
// remaining bits are reserved for future protocol revisions.
type Flags uint32

const FlagResponse Flags = 1 << 0

// Header is the fixed-layout prefix of every Hyperspace message, on the
// wire or off it. It is hand-encoded rather than run through the XDR codec
// because the body's length is not known until the header has already been
// parsed.
type Header struct {
	ProtocolID   uint16
	Command      Command
	TotalLength  uint32 // header + body
	HeaderLength uint32 // always HeaderSize, carried for forward compatibility
	MessageID    uint32
	ThreadGroup  uint32
	Flags        Flags
}

// Encode writes h in little-endian wire format into a HeaderSize buffer.
func (h Header) Encode() []byte {
	buf := make([]byte, HeaderSize)
	binary.LittleEndian.PutUint16(buf[0:2], h.ProtocolID)
	binary.LittleEndian.PutUint16(buf[2:4], uint16(h.Command))
	binary.LittleEndian.PutUint32(buf[4:8], h.TotalLength)
	binary.LittleEndian.PutUint32(buf[8:12], h.HeaderLength)
	binary.LittleEndian.PutUint32(buf[12:16], h.MessageID)
	binary.LittleEndian.PutUint32(buf[16:20], h.ThreadGroup)
	binary.LittleEndian.PutUint32(buf[20:24], uint32(h.Flags))
	return buf
}

// DecodeHeader parses a HeaderSize-byte buffer into a Header. It does not
// validate ProtocolID; callers that need to reject foreign traffic check
// that themselves.
func DecodeHeader(buf []byte) (Header, error) {
	if len(buf) < HeaderSize {
		return Header{}, fmt.Errorf("wire: short header: got %d bytes, want %d", len(buf), HeaderSize)
	}
	return Header{
		ProtocolID:   binary.LittleEndian.Uint16(buf[0:2]),
		Command:      Command(binary.LittleEndian.Uint16(buf[2:4])),
		TotalLength:  binary.LittleEndian.Uint32(buf[4:8]),
		HeaderLength: binary.LittleEndian.Uint32(buf[8:12]),
		MessageID:    binary.LittleEndian.Uint32(buf[12:16]),
		ThreadGroup:  binary.LittleEndian.Uint32(buf[16:20]),
		Flags:        Flags(binary.LittleEndian.Uint32(buf[20:24])),
	}, nil
}
