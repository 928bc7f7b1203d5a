package proto

import (
	"bytes"
	"encoding/binary"
	"strings"
)

// FreeSizes is the counter block returned for CmdGetFreeSizes.
type FreeSizes struct {
	Users          int
	Fingers        int
	Records        int
	FingerCapacity int
	UserCapacity   int
	RecordCapacity int
}

const freeSizesLen = 20 * 4

func ParseFreeSizes(payload []byte) (*FreeSizes, error) {
	if len(payload) < freeSizesLen {
		return nil, NewMalformedFrameError(ReasonBadPayload, "free sizes payload has %d bytes, want %d", len(payload), freeSizesLen)
	}
	field := func(i int) int {
		return int(binary.LittleEndian.Uint32(payload[i*4:]))
	}
	return &FreeSizes{
		Users:          field(4),
		Fingers:        field(6),
		Records:        field(8),
		FingerCapacity: field(14),
		UserCapacity:   field(15),
		RecordCapacity: field(16),
	}, nil
}

func MarshalFreeSizes(fs FreeSizes) []byte {
	out := make([]byte, freeSizesLen)
	put := func(i, v int) {
		binary.LittleEndian.PutUint32(out[i*4:], uint32(v))
	}
	put(4, fs.Users)
	put(6, fs.Fingers)
	put(8, fs.Records)
	put(14, fs.FingerCapacity)
	put(15, fs.UserCapacity)
	put(16, fs.RecordCapacity)
	return out
}

// ParseOption extracts the value of a "~Name=value\x00" option reply.
func ParseOption(payload []byte) (string, error) {
	s := cString(payload)
	i := strings.IndexByte(s, '=')
	if i < 0 {
		return "", NewMalformedFrameError(ReasonBadPayload, "option reply %q has no value", s)
	}
	return strings.TrimSpace(s[i+1:]), nil
}

func MarshalOption(name, value string) []byte {
	var buf bytes.Buffer
	buf.WriteString(name)
	buf.WriteByte('=')
	buf.WriteString(value)
	buf.WriteByte(0)
	return buf.Bytes()
}

// ParseString reads a NUL terminated string payload such as the firmware
// version.
func ParseString(payload []byte) string {
	return strings.TrimSpace(cString(payload))
}

func ParseTime(payload []byte) (uint32, error) {
	if len(payload) < 4 {
		return 0, NewMalformedFrameError(ReasonBadPayload, "time payload has %d bytes, want 4", len(payload))
	}
	return binary.LittleEndian.Uint32(payload), nil
}

func ParsePageRequest(payload []byte) (uint32, error) {
	if len(payload) < 4 {
		return 0, NewMalformedFrameError(ReasonBadPayload, "page request has %d bytes, want 4", len(payload))
	}
	return binary.LittleEndian.Uint32(payload), nil
}
