package ulog

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"time"
)

// HeaderLen is the size of the file header.
const HeaderLen = 16

// MessageHeaderLen is the size of the per-message header (u16 size, u8 type).
const MessageHeaderLen = 3

// Message types.
const (
	TypeFormat          byte = 'F'
	TypeInfo            byte = 'I'
	TypeInfoMultiple    byte = 'M'
	TypeParameter       byte = 'P'
	TypeFlagBits        byte = 'B'
	TypeAddLoggedMsg    byte = 'A'
	TypeRemoveLoggedMsg byte = 'R'
	TypeData            byte = 'D'
	TypeLogging         byte = 'L'
	TypeSync            byte = 'S'
	TypeDropout         byte = 'O'
)

// magic is the first seven bytes of every ULog file.
var magic = [7]byte{'U', 'L', 'o', 'g', 0x01, 0x12, 0x35}

var (
	// ErrBadMagic is returned for data that does not start with the ULog magic.
	ErrBadMagic = errors.New("ulog: bad file magic")

	// ErrShortHeader is returned when fewer than HeaderLen bytes are available.
	ErrShortHeader = errors.New("ulog: short file header")
)

// Header is the decoded file header.
type Header struct {
	Version   uint8
	Timestamp uint64 // microseconds
}

// ParseHeader decodes the file header at the start of b.
func ParseHeader(b []byte) (Header, error) {
	if len(b) < HeaderLen {
		return Header{}, ErrShortHeader
	}
	if !bytes.Equal(b[:len(magic)], magic[:]) {
		return Header{}, ErrBadMagic
	}
	return Header{
		Version:   b[7],
		Timestamp: binary.LittleEndian.Uint64(b[8:16]),
	}, nil
}

// AppendHeader appends the encoded file header to dst.
func AppendHeader(dst []byte, h Header) []byte {
	dst = append(dst, magic[:]...)
	dst = append(dst, h.Version)
	return binary.LittleEndian.AppendUint64(dst, h.Timestamp)
}

// MessageLen returns the total length of the message starting at b, header
// included. ok is false when b is too short to hold a message header.
func MessageLen(b []byte) (n int, ok bool) {
	if len(b) < MessageHeaderLen {
		return 0, false
	}
	return int(binary.LittleEndian.Uint16(b)) + MessageHeaderLen, true
}

// AppendMessage appends a message with the given type and payload to dst.
func AppendMessage(dst []byte, typ byte, payload []byte) ([]byte, error) {
	if len(payload) > 0xFFFF {
		return dst, fmt.Errorf("ulog: payload of %d bytes exceeds message limit", len(payload))
	}
	dst = binary.LittleEndian.AppendUint16(dst, uint16(len(payload)))
	dst = append(dst, typ)
	return append(dst, payload...), nil
}

// MaxDropoutDrops caps the drop count encoded into a dropout message.
const MaxDropoutDrops = 25

// DropoutMessage returns a dropout message for drops lost chunks. The true
// gap is unknown, so the duration is drops*10ms, capped at MaxDropoutDrops.
func DropoutMessage(drops int) []byte {
	if drops > MaxDropoutDrops {
		drops = MaxDropoutDrops
	}
	d := time.Duration(drops) * 10 * time.Millisecond
	payload := binary.LittleEndian.AppendUint16(nil, uint16(d.Milliseconds()))
	msg, _ := AppendMessage(nil, TypeDropout, payload)
	return msg
}
