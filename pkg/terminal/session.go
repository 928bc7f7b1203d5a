// Package terminal implements a client session with one biometric
// attendance terminal over its binary TCP protocol.
package terminal

import (
	"context"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/nsyszr/punchclock/pkg/metrics"
	"github.com/nsyszr/punchclock/pkg/model"
	"github.com/nsyszr/punchclock/pkg/terminal/proto"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateIdle
	StateAwaitingReply
	StateFaulted
)

func (state State) String() string {
	names := []string{
		"DISCONNECTED",
		"CONNECTING",
		"IDLE",
		"AWAITING_REPLY",
		"FAULTED"}

	if state < StateDisconnected || state > StateFaulted {
		return "UNKNOWN"
	}

	return names[state]
}

const (
	DefaultFetchTimeout = 5 * time.Second
	DefaultBulkTimeout  = 8 * time.Second
	DefaultExitTimeout  = 2 * time.Second
	DefaultMaxRetries   = 2

	maxRetriesCap = 2
	maxPages      = 1 << 16
	authTicks     = 50
)

// Options tunes the timing of a session. Zero values select the defaults.
type Options struct {
	FetchTimeout time.Duration
	BulkTimeout  time.Duration
	ExitTimeout  time.Duration
	// MaxRetries is the number of resends after a timed out round trip.
	// It is capped at 2. A negative value disables retries.
	MaxRetries int
}

func (o Options) withDefaults() Options {
	if o.FetchTimeout <= 0 {
		o.FetchTimeout = DefaultFetchTimeout
	}
	if o.BulkTimeout <= 0 {
		o.BulkTimeout = DefaultBulkTimeout
	}
	if o.ExitTimeout <= 0 {
		o.ExitTimeout = DefaultExitTimeout
	}
	switch {
	case o.MaxRetries == 0:
		o.MaxRetries = DefaultMaxRetries
	case o.MaxRetries < 0:
		o.MaxRetries = 0
	case o.MaxRetries > maxRetriesCap:
		o.MaxRetries = maxRetriesCap
	}
	return o
}

// Dialer opens the TCP connection to a terminal. *net.Dialer satisfies it.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// Stats are counters collected over the lifetime of a session.
type Stats struct {
	MalformedRecords int
	Retries          int
}

// Session is an exclusive conversation with one terminal. It is not safe
// for concurrent use except for State and Stats.
type Session struct {
	device model.Device
	opts   Options
	dialer Dialer
	log    *log.Entry

	mu    sync.Mutex
	state State
	conn  net.Conn
	// frames outlives round trips so a reply cut short by a timeout is
	// finished, and discarded as stale, by the next one.
	frames *proto.FrameReader
	// gen invalidates cancellation callbacks of finished round trips.
	gen   uint64
	stats Stats

	sessionID uint16
	replyID   uint16
}

// NewSession creates a disconnected session for the device. A nil dialer
// uses a plain *net.Dialer.
func NewSession(device model.Device, opts Options, dialer Dialer) *Session {
	if dialer == nil {
		dialer = &net.Dialer{}
	}
	if device.Port == 0 {
		device.Port = proto.DefaultPort
	}

	return &Session{
		device: device,
		opts:   opts.withDefaults(),
		dialer: dialer,
		state:  StateDisconnected,
		log: log.WithFields(log.Fields{
			"device_id": device.DeviceID,
			"address":   Address(device),
		}),
	}
}

// Address returns the host:port of the device.
func Address(device model.Device) string {
	port := device.Port
	if port == 0 {
		port = proto.DefaultPort
	}
	return net.JoinHostPort(device.Host, strconv.Itoa(port))
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

func (s *Session) setState(state State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
}

// Connect dials the terminal and performs the connect handshake. Dial and
// handshake together must finish within timeout.
func (s *Session) Connect(ctx context.Context, timeout time.Duration) error {
	const op = "connect"

	if st := s.State(); st != StateDisconnected {
		return newError(KindProtocolError, op, errors.Errorf("session is %s", st))
	}
	if timeout <= 0 {
		timeout = s.opts.FetchTimeout
	}

	s.setState(StateConnecting)
	deadline := time.Now().Add(timeout)

	dialCtx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	s.log.Debug("Dialing terminal")
	conn, err := s.dialer.DialContext(dialCtx, "tcp", Address(s.device))
	if err != nil {
		s.setState(StateDisconnected)
		kind := classifyDialError(err)
		if ctx.Err() != nil {
			kind = KindCancelled
		}
		return newError(kind, op, err)
	}

	s.mu.Lock()
	s.conn = conn
	s.frames = proto.NewFrameReader(conn)
	s.mu.Unlock()
	metrics.ActiveSessions.Inc()

	if err := s.handshake(ctx, deadline); err != nil {
		s.closeConn()
		return err
	}

	s.setState(StateIdle)
	s.log.WithField("session", s.sessionID).Debug("Terminal session established")

	return nil
}

func (s *Session) handshake(ctx context.Context, deadline time.Time) error {
	const op = "connect"

	remaining := time.Until(deadline)
	if remaining <= 0 {
		return newError(KindConnectionTimeout, op, errDeadline)
	}

	s.sessionID = 0
	s.replyID = 0
	rep, err := s.exchange(ctx, proto.CmdConnect, nil, remaining)
	if err != nil {
		return newError(handshakeErrorKind(ctx, err), op, err)
	}
	s.sessionID = rep.SessionID

	switch rep.Command {
	case proto.CmdAckOK:
		return nil
	case proto.CmdAckUnauth:
	default:
		return newError(KindProtocolError, op, errors.Errorf("unexpected connect reply %s", rep.Command))
	}

	if s.device.CommKey == 0 {
		return newError(KindAuthRejected, op, errors.New("terminal requires a comm key"))
	}

	remaining = time.Until(deadline)
	if remaining <= 0 {
		return newError(KindConnectionTimeout, op, errDeadline)
	}
	key := proto.MakeCommKey(uint32(s.device.CommKey), s.sessionID, authTicks)
	rep, err = s.exchange(ctx, proto.CmdAuth, key, remaining)
	if err != nil {
		return newError(handshakeErrorKind(ctx, err), op, err)
	}
	if rep.Command != proto.CmdAckOK {
		return newError(KindAuthRejected, op, errors.Errorf("terminal answered %s", rep.Command))
	}

	return nil
}

func handshakeErrorKind(ctx context.Context, err error) ErrorKind {
	switch {
	case ctx.Err() != nil:
		return KindCancelled
	case isTimeout(err):
		return KindConnectionTimeout
	}
	return classifyIOError(err)
}

// Disconnect ends the session. It is safe to call in any state and more
// than once. The exit command is skipped on a faulted socket. The returned
// error is informational only.
func (s *Session) Disconnect() error {
	s.mu.Lock()
	conn, state := s.conn, s.state
	s.mu.Unlock()

	if conn == nil {
		s.setState(StateDisconnected)
		return nil
	}

	if state != StateFaulted {
		if _, err := s.exchange(context.Background(), proto.CmdExit, nil, s.opts.ExitTimeout); err != nil {
			s.log.WithError(err).Debug("Terminal did not acknowledge exit")
		}
	}

	return s.closeConn()
}

func (s *Session) closeConn() error {
	s.mu.Lock()
	conn := s.conn
	s.conn = nil
	s.frames = nil
	s.state = StateDisconnected
	s.gen++
	s.mu.Unlock()

	if conn == nil {
		return nil
	}
	metrics.ActiveSessions.Dec()

	if err := conn.Close(); err != nil {
		return errors.Wrap(err, "failed to close terminal connection")
	}
	return nil
}
