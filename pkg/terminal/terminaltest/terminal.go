// Package terminaltest provides an in-process attendance terminal that
// speaks the wire protocol over net.Pipe, and a dialer that connects to it.
package terminaltest

import (
	"encoding/binary"
	"net"
	"sync"
	"time"

	"github.com/nsyszr/punchclock/pkg/terminal/proto"
)

// Terminal is a fake attendance terminal. Configure the exported fields
// before the first dial.
type Terminal struct {
	Users        []proto.User
	Punches      []proto.Punch
	SerialNumber string
	Platform     string
	Firmware     string
	// ClockOffset is added to the host UTC clock to produce the device
	// wall clock.
	ClockOffset time.Duration
	// PageSize is the number of records per page, 2 when zero.
	PageSize int
	CommKey  int

	// CorruptPunches lists indices of punch records sent one byte short.
	CorruptPunches []int
	// Drop swallows the next n requests of a command without answering.
	Drop map[proto.Command]int
	// Stale precedes the next n replies of a command with a frame carrying
	// an outdated reply number.
	Stale map[proto.Command]int
	// Corrupt flips the checksum of the next n replies of a command.
	Corrupt map[proto.Command]int
	// Reject answers every request of a command with ack-error.
	Reject map[proto.Command]bool

	// StallCommand requests at page StallFromPage or later are never
	// answered. Each swallowed request is signalled on Stalled if set.
	StallCommand  proto.Command
	StallFromPage uint32
	Stalled       chan struct{}

	mu          sync.Mutex
	commands    []proto.Command
	disabled    bool
	nextSession uint16
}

// Commands returns every command received so far, in order.
func (t *Terminal) Commands() []proto.Command {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]proto.Command(nil), t.commands...)
}

// Count returns how often a command was received.
func (t *Terminal) Count(cmd proto.Command) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for _, c := range t.commands {
		if c == cmd {
			n++
		}
	}
	return n
}

// Disabled reports whether the terminal is currently disabled.
func (t *Terminal) Disabled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.disabled
}

// Serve answers requests on conn until the peer exits or the connection
// fails.
func (t *Terminal) Serve(conn net.Conn) {
	defer conn.Close()

	t.mu.Lock()
	t.nextSession++
	sessionID := 0x4d00 + t.nextSession
	t.mu.Unlock()

	authed := t.CommKey == 0
	for {
		req, err := proto.ReadFrame(conn)
		if err != nil {
			return
		}

		t.mu.Lock()
		t.commands = append(t.commands, req.Command)
		dropped := consume(t.Drop, req.Command)
		t.mu.Unlock()

		if dropped || t.stalls(req) {
			continue
		}

		cmd, payload := t.handle(sessionID, &authed, req)

		t.mu.Lock()
		stale := consume(t.Stale, req.Command)
		corrupt := consume(t.Corrupt, req.Command)
		t.mu.Unlock()

		if stale {
			data, _ := proto.EncodeCommand(proto.CmdAckOK, sessionID, req.ReplyID-1, nil)
			if _, err := conn.Write(data); err != nil {
				return
			}
		}

		data, err := proto.EncodeCommand(cmd, sessionID, req.ReplyID, payload)
		if err != nil {
			return
		}
		if corrupt {
			data[len(data)-1] ^= 0xff
		}
		if _, err := conn.Write(data); err != nil {
			return
		}

		if req.Command == proto.CmdExit {
			return
		}
	}
}

func (t *Terminal) stalls(req *proto.Frame) bool {
	if t.StallCommand == proto.CmdInvalid || req.Command != t.StallCommand {
		return false
	}
	page, err := proto.ParsePageRequest(req.Payload)
	if err != nil || page < t.StallFromPage {
		return false
	}
	if t.Stalled != nil {
		select {
		case t.Stalled <- struct{}{}:
		default:
		}
	}
	return true
}

func (t *Terminal) handle(sessionID uint16, authed *bool, req *proto.Frame) (proto.Command, []byte) {
	if t.Reject[req.Command] {
		return proto.CmdAckError, nil
	}

	switch req.Command {
	case proto.CmdConnect:
		if *authed {
			return proto.CmdAckOK, nil
		}
		return proto.CmdAckUnauth, nil
	case proto.CmdAuth:
		want := proto.MakeCommKey(uint32(t.CommKey), sessionID, 50)
		if string(req.Payload) == string(want) {
			*authed = true
			return proto.CmdAckOK, nil
		}
		return proto.CmdAckUnauth, nil
	case proto.CmdExit:
		return proto.CmdAckOK, nil
	}

	if !*authed {
		return proto.CmdAckUnauth, nil
	}

	switch req.Command {
	case proto.CmdGetFreeSizes:
		return proto.CmdAckOK, proto.MarshalFreeSizes(proto.FreeSizes{
			Users:          len(t.Users),
			Records:        len(t.Punches),
			UserCapacity:   3000,
			RecordCapacity: 100000,
		})
	case proto.CmdOptionsRRQ:
		name := proto.ParseString(req.Payload)
		switch name {
		case "~SerialNumber":
			return proto.CmdAckOK, proto.MarshalOption(name, t.SerialNumber)
		case "~Platform":
			return proto.CmdAckOK, proto.MarshalOption(name, t.Platform)
		}
		return proto.CmdAckError, nil
	case proto.CmdGetVersion:
		return proto.CmdAckOK, append([]byte(t.Firmware), 0)
	case proto.CmdGetTime:
		out := make([]byte, 4)
		binary.LittleEndian.PutUint32(out, proto.EncodeTime(time.Now().UTC().Add(t.ClockOffset)))
		return proto.CmdAckOK, out
	case proto.CmdDisableDevice:
		t.setDisabled(true)
		return proto.CmdAckOK, nil
	case proto.CmdEnableDevice:
		t.setDisabled(false)
		return proto.CmdAckOK, nil
	case proto.CmdUserPageRRQ:
		return t.userPage(req.Payload)
	case proto.CmdAttLogPageRRQ:
		return t.punchPage(req.Payload)
	}

	return proto.CmdAckError, nil
}

func (t *Terminal) setDisabled(v bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.disabled = v
}

func (t *Terminal) pageBounds(payload []byte, total int) (int, int, bool, bool) {
	page, err := proto.ParsePageRequest(payload)
	if err != nil {
		return 0, 0, false, false
	}
	size := t.PageSize
	if size <= 0 {
		size = 2
	}
	from := int(page) * size
	if from > total {
		from = total
	}
	to := from + size
	if to > total {
		to = total
	}
	return from, to, to < total, true
}

func (t *Terminal) userPage(payload []byte) (proto.Command, []byte) {
	from, to, more, ok := t.pageBounds(payload, len(t.Users))
	if !ok {
		return proto.CmdAckError, nil
	}
	return pageReply(more), proto.EncodeUserPage(t.Users[from:to])
}

func (t *Terminal) punchPage(payload []byte) (proto.Command, []byte) {
	from, to, more, ok := t.pageBounds(payload, len(t.Punches))
	if !ok {
		return proto.CmdAckError, nil
	}

	page := make([]byte, 0)
	for i := from; i < to; i++ {
		rec := proto.EncodePunchRecord(t.Punches[i])
		if contains(t.CorruptPunches, i) {
			rec = rec[:len(rec)-1]
		}
		page = proto.AppendRawRecord(page, rec)
	}
	return pageReply(more), page
}

func pageReply(more bool) proto.Command {
	if more {
		return proto.CmdData
	}
	return proto.CmdAckOK
}

func consume(m map[proto.Command]int, cmd proto.Command) bool {
	if m[cmd] > 0 {
		m[cmd]--
		return true
	}
	return false
}

func contains(list []int, v int) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}
