package terminal

import (
	"context"
	"time"

	"github.com/nsyszr/punchclock/pkg/metrics"
	"github.com/nsyszr/punchclock/pkg/terminal/proto"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// aLongTimeAgo is a deadline in the past that unblocks pending I/O at once.
var aLongTimeAgo = time.Unix(1, 0)

// roundTrip sends a command and waits for its reply. Timeouts are resent
// up to MaxRetries times. Any other failure faults the session.
func (s *Session) roundTrip(ctx context.Context, op string, cmd proto.Command, payload []byte, timeout time.Duration) (*proto.Frame, error) {
	s.mu.Lock()
	connected := s.conn != nil && s.state != StateFaulted
	s.mu.Unlock()
	if !connected {
		return nil, newError(KindDeviceUnreachable, op, errNotConnected)
	}

	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, newError(KindCancelled, op, err)
		}

		s.setState(StateAwaitingReply)
		rep, err := s.exchange(ctx, cmd, payload, timeout)
		if err == nil {
			s.setState(StateIdle)
			if rep.Command == proto.CmdAckError {
				return nil, newError(KindProtocolError, op, errors.Errorf("terminal rejected %s", cmd))
			}
			return rep, nil
		}

		if ctx.Err() != nil {
			// The request may still be answered. Reply numbers let the
			// next round trip skip that answer.
			s.setState(StateIdle)
			return nil, newError(KindCancelled, op, ctx.Err())
		}

		if isTimeout(err) && attempt < s.opts.MaxRetries {
			s.mu.Lock()
			s.stats.Retries++
			s.mu.Unlock()
			metrics.CommandRetries.WithLabelValues(cmd.String()).Inc()
			s.log.WithFields(log.Fields{
				"command": cmd.String(),
				"attempt": attempt + 1,
			}).Warn("Terminal command timed out, retrying")
			continue
		}

		s.setState(StateFaulted)
		kind := classifyIOError(err)
		if kind == KindDeviceUnreachable && isTimeout(err) {
			err = errors.Wrapf(err, "no reply after %d attempts", attempt+1)
		}
		return nil, newError(kind, op, err)
	}
}

// exchange writes one request frame and reads frames until the reply with
// the matching reply number arrives. Frames answering earlier requests are
// discarded.
func (s *Session) exchange(ctx context.Context, cmd proto.Command, payload []byte, timeout time.Duration) (*proto.Frame, error) {
	s.replyID++
	replyID := s.replyID

	data, err := proto.EncodeCommand(cmd, s.sessionID, replyID, payload)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	conn, frames := s.conn, s.frames
	s.mu.Unlock()
	if conn == nil {
		return nil, errNotConnected
	}

	stop := s.armDeadline(ctx, timeout)
	defer stop()

	if _, err := conn.Write(data); err != nil {
		return nil, err
	}

	for {
		rep, err := frames.ReadFrame()
		if err != nil {
			return nil, err
		}
		if rep.ReplyID != replyID {
			s.log.WithFields(log.Fields{
				"command":  rep.Command.String(),
				"reply":    rep.ReplyID,
				"expected": replyID,
			}).Debug("Discarding stale terminal reply")
			continue
		}
		return rep, nil
	}
}

// armDeadline bounds the next exchange by timeout and interrupts it when
// ctx is cancelled. The returned func must be called once the exchange
// returns.
func (s *Session) armDeadline(ctx context.Context, timeout time.Duration) func() {
	s.mu.Lock()
	s.gen++
	gen := s.gen
	conn := s.conn
	s.mu.Unlock()

	if conn == nil {
		return func() {}
	}
	_ = conn.SetDeadline(time.Now().Add(timeout))

	stop := context.AfterFunc(ctx, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.gen == gen && s.conn != nil {
			_ = s.conn.SetDeadline(aLongTimeAgo)
		}
	})

	return func() {
		stop()
	}
}
