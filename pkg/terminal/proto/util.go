package proto

import (
	"encoding/binary"
	"time"
)

// EncodeTime packs a wall-clock time the way terminals store it: seconds
// since 2000-01-01 on a calendar of twelve 31-day months.
func EncodeTime(t time.Time) uint32 {
	days := uint32((t.Year()%100)*12*31 + (int(t.Month())-1)*31 + t.Day() - 1)
	return days*24*60*60 + uint32((t.Hour()*60+t.Minute())*60+t.Second())
}

// DecodeTime reverses EncodeTime. Values that name an impossible calendar
// date (e.g. 31 February) are rejected.
func DecodeTime(v uint32) (time.Time, error) {
	second := int(v % 60)
	v /= 60
	minute := int(v % 60)
	v /= 60
	hour := int(v % 24)
	v /= 24
	day := int(v%31) + 1
	v /= 31
	month := time.Month(v%12 + 1)
	v /= 12
	year := int(v) + 2000

	t := time.Date(year, month, day, hour, minute, second, 0, time.UTC)
	if t.Day() != day || t.Month() != month {
		return time.Time{}, NewMalformedFrameError(ReasonBadPayload, "invalid device date %04d-%02d-%02d", year, month, day)
	}
	return t, nil
}

// MakeCommKey derives the auth payload for a terminal protected by a
// numeric comm key. The session id is the one assigned on connect.
func MakeCommKey(key uint32, sessionID uint16, ticks uint8) []byte {
	var k uint32
	for i := 0; i < 32; i++ {
		if key&(1<<uint(i)) != 0 {
			k = k<<1 | 1
		} else {
			k <<= 1
		}
	}
	k += uint32(sessionID)

	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], k)
	b[0] ^= 'Z'
	b[1] ^= 'K'
	b[2] ^= 'S'
	b[3] ^= 'O'

	// swap the two 16-bit halves
	b[0], b[1], b[2], b[3] = b[2], b[3], b[0], b[1]

	return []byte{b[0] ^ ticks, b[1] ^ ticks, ticks, b[3] ^ ticks}
}
