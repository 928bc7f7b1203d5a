package proto

import (
	"encoding/binary"
	"fmt"
)

const (
	MagicByte0 byte = 0x50
	MagicByte1 byte = 0x50

	HeaderSize     = 12
	ChecksumSize   = 2
	MaxPayloadSize = 64 * 1024

	// DefaultPort is the TCP port terminals listen on.
	DefaultPort = 4370
)

// EncodeCommand builds a complete frame for the given command. It has no
// side effects and returns an error only when the payload does not fit.
func EncodeCommand(cmd Command, sessionID, replyID uint16, payload []byte) ([]byte, error) {
	if len(payload) > MaxPayloadSize {
		return nil, fmt.Errorf("proto: payload of %d bytes exceeds maximum of %d", len(payload), MaxPayloadSize)
	}

	out := make([]byte, HeaderSize+len(payload)+ChecksumSize)
	out[0] = MagicByte0
	out[1] = MagicByte1
	binary.LittleEndian.PutUint16(out[2:], uint16(cmd))
	binary.LittleEndian.PutUint16(out[4:], sessionID)
	binary.LittleEndian.PutUint16(out[6:], replyID)
	binary.LittleEndian.PutUint32(out[8:], uint32(len(payload)))
	copy(out[HeaderSize:], payload)

	sum := Checksum(out[:HeaderSize+len(payload)])
	binary.LittleEndian.PutUint16(out[HeaderSize+len(payload):], sum)

	return out, nil
}

func (f Frame) Marshal() ([]byte, error) {
	return EncodeCommand(f.Command, f.SessionID, f.ReplyID, f.Payload)
}

// Checksum is the inverted 16-bit one's-complement sum over data, read as
// little endian words. An odd trailing byte counts as the low byte of a
// final word.
func Checksum(data []byte) uint16 {
	var sum uint32
	n := len(data) &^ 1
	for i := 0; i < n; i += 2 {
		sum += uint32(binary.LittleEndian.Uint16(data[i:]))
	}
	if len(data)%2 == 1 {
		sum += uint32(data[len(data)-1])
	}
	for sum > 0xFFFF {
		sum = (sum & 0xFFFF) + (sum >> 16)
	}
	return ^uint16(sum)
}

func MarshalNewConnect() ([]byte, error) {
	return EncodeCommand(CmdConnect, 0, 0, nil)
}

// MarshalPageRequest encodes the payload of a user or attendance page
// request.
func MarshalPageRequest(page uint32) []byte {
	out := make([]byte, 4)
	binary.LittleEndian.PutUint32(out, page)
	return out
}

// MarshalOptionRequest encodes the payload of an option read, e.g.
// "~SerialNumber".
func MarshalOptionRequest(name string) []byte {
	out := make([]byte, len(name)+1)
	copy(out, name)
	return out
}
