// Package slip implements the byte-stuffed SLIP-style framing used by TIO
// over serial transports: a 0xC0 delimiter bounds each frame, 0xDB escapes
// literal 0xC0/0xDB bytes inside it, and a little-endian CRC32 is carried
// as the last four bytes of the logical (pre-stuffing) message.
package slip

import (
	"errors"
	"hash/crc32"
)

const (
	END     = 0xC0
	ESC     = 0xDB
	ESCEND  = 0xDC
	ESCESC  = 0xDD
	MaxLen  = 2048
	crcSize = 4
)

// ErrShortFrame is returned when a decoded frame is too small to carry a
// trailing CRC32.
var ErrShortFrame = errors.New("slip: frame too short to carry a checksum")

// ErrBadEscape is returned when an escape byte is followed by anything
// other than ESCEND or ESCESC.
var ErrBadEscape = errors.New("slip: escape byte not followed by a valid escape code")

// ErrChecksum is returned when the trailing CRC32 does not match the
// unstuffed payload.
var ErrChecksum = errors.New("slip: CRC32 mismatch")

// Encode appends a CRC32 trailer to msg, byte-stuffs the result, and wraps
// it in a leading and trailing END delimiter. The returned slice is a new
// frame ready to write to a serial transport.
func Encode(msg []byte) []byte {
	checksum := crc32.ChecksumIEEE(msg)
	buf := make([]byte, 0, len(msg)+2+crcSize/2)
	buf = append(buf, END)
	for _, b := range msg {
		buf = appendStuffed(buf, b)
	}
	buf = appendStuffed(buf, byte(checksum))
	buf = appendStuffed(buf, byte(checksum>>8))
	buf = appendStuffed(buf, byte(checksum>>16))
	buf = appendStuffed(buf, byte(checksum>>24))
	buf = append(buf, END)
	return buf
}

func appendStuffed(buf []byte, b byte) []byte {
	switch b {
	case END:
		return append(buf, ESC, ESCEND)
	case ESC:
		return append(buf, ESC, ESCESC)
	default:
		return append(buf, b)
	}
}

// Decode unstuffs a single frame's body (delimiters already stripped by the
// caller) and verifies its trailing CRC32, returning the logical message
// with the checksum removed.
func Decode(frame []byte) ([]byte, error) {
	msg := make([]byte, 0, len(frame))
	escNext := false
	for _, b := range frame {
		if escNext {
			escNext = false
			switch b {
			case ESCEND:
				msg = append(msg, END)
			case ESCESC:
				msg = append(msg, ESC)
			default:
				return nil, ErrBadEscape
			}
			continue
		}
		switch b {
		case ESC:
			escNext = true
		case END:
			// Already framed by the delimiter; tolerate a stray one.
		default:
			msg = append(msg, b)
		}
	}
	if escNext {
		return nil, ErrBadEscape
	}
	if len(msg) < crcSize {
		return nil, ErrShortFrame
	}
	payload := msg[:len(msg)-crcSize]
	trailer := msg[len(msg)-crcSize:]
	want := uint32(trailer[0]) | uint32(trailer[1])<<8 | uint32(trailer[2])<<16 | uint32(trailer[3])<<24
	if crc32.ChecksumIEEE(payload) != want {
		return nil, ErrChecksum
	}
	return payload, nil
}
