package proto

import "time"

// Command is the 16-bit command (or reply) code carried in every frame.
type Command uint16

const (
	CmdInvalid       Command = 0
	CmdUserPageRRQ   Command = 9
	CmdOptionsRRQ    Command = 11
	CmdAttLogPageRRQ Command = 13
	CmdGetFreeSizes  Command = 50
	CmdGetTime       Command = 201
	CmdConnect       Command = 1000
	CmdExit          Command = 1001
	CmdEnableDevice  Command = 1002
	CmdDisableDevice Command = 1003
	CmdGetVersion    Command = 1100
	CmdAuth          Command = 1102
	CmdData          Command = 1501
	CmdAckOK         Command = 2000
	CmdAckError      Command = 2001
	CmdAckData       Command = 2002
	CmdAckUnauth     Command = 2005
)

var commandNames = map[Command]string{
	CmdUserPageRRQ:   "USER_PAGE_RRQ",
	CmdOptionsRRQ:    "OPTIONS_RRQ",
	CmdAttLogPageRRQ: "ATTLOG_PAGE_RRQ",
	CmdGetFreeSizes:  "GET_FREE_SIZES",
	CmdGetTime:       "GET_TIME",
	CmdConnect:       "CONNECT",
	CmdExit:          "EXIT",
	CmdEnableDevice:  "ENABLE_DEVICE",
	CmdDisableDevice: "DISABLE_DEVICE",
	CmdGetVersion:    "GET_VERSION",
	CmdAuth:          "AUTH",
	CmdData:          "DATA",
	CmdAckOK:         "ACK_OK",
	CmdAckError:      "ACK_ERROR",
	CmdAckData:       "ACK_DATA",
	CmdAckUnauth:     "ACK_UNAUTH",
}

func (cmd Command) String() string {
	name, ok := commandNames[cmd]
	if !ok {
		return "UNKNOWN"
	}
	return name
}

// IsReply reports whether the code is one the terminal sends back.
func (cmd Command) IsReply() bool {
	switch cmd {
	case CmdData, CmdAckOK, CmdAckError, CmdAckData, CmdAckUnauth:
		return true
	}
	return false
}

// Frame is one decoded protocol message.
type Frame struct {
	Command   Command
	SessionID uint16
	ReplyID   uint16
	Payload   []byte
}

type VerifyMethod uint8

const (
	VerifyPassword    VerifyMethod = 0
	VerifyFingerprint VerifyMethod = 1
	VerifyCard        VerifyMethod = 2
	VerifyCardAlt     VerifyMethod = 4
	VerifyFace        VerifyMethod = 15
)

func (v VerifyMethod) String() string {
	switch v {
	case VerifyPassword:
		return "password"
	case VerifyFingerprint:
		return "fingerprint"
	case VerifyCard, VerifyCardAlt:
		return "card"
	case VerifyFace:
		return "face"
	}
	return "other"
}

// PunchStatus is the punch state selected on the terminal keypad.
type PunchStatus uint8

const (
	PunchCheckIn     PunchStatus = 0
	PunchCheckOut    PunchStatus = 1
	PunchBreakOut    PunchStatus = 2
	PunchBreakIn     PunchStatus = 3
	PunchOvertimeIn  PunchStatus = 4
	PunchOvertimeOut PunchStatus = 5
)

func (s PunchStatus) String() string {
	names := []string{
		"check-in",
		"check-out",
		"break-out",
		"break-in",
		"overtime-in",
		"overtime-out"}

	if int(s) >= len(names) {
		return "other"
	}
	return names[s]
}

// User is one enrolled user as stored on the terminal.
type User struct {
	UID        uint16
	Privilege  uint8
	Password   string
	Name       string
	CardNumber uint32
	GroupID    string
	UserID     string
}

// Punch is one attendance record as reported by the terminal. Timestamp is
// the terminal's wall clock with no zone information attached; it is
// carried in time.UTC only as a container.
type Punch struct {
	UID          uint16
	UserID       string
	Timestamp    time.Time
	VerifyMethod VerifyMethod
	Status       PunchStatus
}
