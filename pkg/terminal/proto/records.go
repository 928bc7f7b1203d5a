package proto

import (
	"bytes"
	"encoding/binary"
)

const (
	UserRecordSize  = 72
	PunchRecordSize = 40
)

// DecodeUserRecord parses one fixed-width user record.
func DecodeUserRecord(rec []byte) (User, error) {
	if len(rec) != UserRecordSize {
		return User{}, NewMalformedFrameError(ReasonRecordLength, "user record has %d bytes, want %d", len(rec), UserRecordSize)
	}

	return User{
		UID:        binary.LittleEndian.Uint16(rec[0:]),
		Privilege:  rec[2],
		Password:   cString(rec[3:11]),
		Name:       cString(rec[11:35]),
		CardNumber: binary.LittleEndian.Uint32(rec[35:]),
		GroupID:    cString(rec[40:47]),
		UserID:     cString(rec[48:72]),
	}, nil
}

func EncodeUserRecord(u User) []byte {
	rec := make([]byte, UserRecordSize)
	binary.LittleEndian.PutUint16(rec[0:], u.UID)
	rec[2] = u.Privilege
	copy(rec[3:11], u.Password)
	copy(rec[11:35], u.Name)
	binary.LittleEndian.PutUint32(rec[35:], u.CardNumber)
	copy(rec[40:47], u.GroupID)
	copy(rec[48:72], u.UserID)
	return rec
}

// DecodePunchRecord parses one fixed-width attendance record.
func DecodePunchRecord(rec []byte) (Punch, error) {
	if len(rec) != PunchRecordSize {
		return Punch{}, NewMalformedFrameError(ReasonRecordLength, "punch record has %d bytes, want %d", len(rec), PunchRecordSize)
	}

	ts, err := DecodeTime(binary.LittleEndian.Uint32(rec[27:]))
	if err != nil {
		return Punch{}, err
	}

	return Punch{
		UID:          binary.LittleEndian.Uint16(rec[0:]),
		UserID:       cString(rec[2:26]),
		VerifyMethod: VerifyMethod(rec[26]),
		Timestamp:    ts,
		Status:       PunchStatus(rec[31]),
	}, nil
}

func EncodePunchRecord(p Punch) []byte {
	rec := make([]byte, PunchRecordSize)
	binary.LittleEndian.PutUint16(rec[0:], p.UID)
	copy(rec[2:26], p.UserID)
	rec[26] = byte(p.VerifyMethod)
	binary.LittleEndian.PutUint32(rec[27:], EncodeTime(p.Timestamp))
	rec[31] = byte(p.Status)
	return rec
}

func EncodeUserPage(users []User) []byte {
	var buf bytes.Buffer
	for _, u := range users {
		appendRecord(&buf, EncodeUserRecord(u))
	}
	return buf.Bytes()
}

func EncodePunchPage(punches []Punch) []byte {
	var buf bytes.Buffer
	for _, p := range punches {
		appendRecord(&buf, EncodePunchRecord(p))
	}
	return buf.Bytes()
}

// AppendRawRecord appends an arbitrary record to a page. It exists so test
// terminals can produce corrupt pages.
func AppendRawRecord(page, rec []byte) []byte {
	var buf bytes.Buffer
	buf.Write(page)
	appendRecord(&buf, rec)
	return buf.Bytes()
}

func appendRecord(buf *bytes.Buffer, rec []byte) {
	var n [2]byte
	binary.LittleEndian.PutUint16(n[:], uint16(len(rec)))
	buf.Write(n[:])
	buf.Write(rec)
}

func cString(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(b)
}
