package terminal

import (
	"context"
	"fmt"
	"net"
	"os"
	"syscall"

	"github.com/nsyszr/punchclock/pkg/terminal/proto"
	"github.com/pkg/errors"
)

// ErrorKind classifies a session failure.
type ErrorKind string

const (
	KindConnectionTimeout ErrorKind = "CONNECTION_TIMEOUT"
	KindConnectionRefused ErrorKind = "CONNECTION_REFUSED"
	KindHostUnreachable   ErrorKind = "HOST_UNREACHABLE"
	KindAuthRejected      ErrorKind = "AUTH_REJECTED"
	KindProtocolError     ErrorKind = "PROTOCOL_ERROR"
	KindDeviceUnreachable ErrorKind = "DEVICE_UNREACHABLE"
	KindCancelled         ErrorKind = "CANCELLED"
)

// Error is returned by every Session operation.
type Error struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func newError(kind ErrorKind, op string, err error) error {
	return &Error{Kind: kind, Op: op, Err: err}
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("terminal: %s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("terminal: %s: %s: %s", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the kind of a session error or an empty kind if err does
// not originate from a session.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsKind reports whether err is a session error of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	return KindOf(err) == kind
}

var (
	errNotConnected = errors.New("session is not connected")
	errDeadline     = errors.New("handshake did not complete in time")
)

func isTimeout(err error) bool {
	if errors.Is(err, os.ErrDeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

func classifyDialError(err error) ErrorKind {
	switch {
	case errors.Is(err, context.Canceled):
		return KindCancelled
	case isTimeout(err):
		return KindConnectionTimeout
	case errors.Is(err, syscall.ECONNREFUSED):
		return KindConnectionRefused
	case errors.Is(err, syscall.EHOSTUNREACH), errors.Is(err, syscall.ENETUNREACH):
		return KindHostUnreachable
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return KindHostUnreachable
	}
	return KindDeviceUnreachable
}

// classifyIOError maps a failed round trip that will not be retried.
func classifyIOError(err error) ErrorKind {
	if proto.IsMalformedFrameError(err) {
		return KindProtocolError
	}
	return KindDeviceUnreachable
}
