package proto

import (
	"fmt"

	"github.com/pkg/errors"
)

type ErrorReason string

const (
	ReasonBadMagic       ErrorReason = "ERR_BAD_MAGIC"
	ReasonTruncated      ErrorReason = "ERR_TRUNCATED"
	ReasonLengthMismatch ErrorReason = "ERR_LENGTH_MISMATCH"
	ReasonChecksum       ErrorReason = "ERR_CHECKSUM"
	ReasonOversize       ErrorReason = "ERR_OVERSIZE"
	ReasonRecordLength   ErrorReason = "ERR_RECORD_LENGTH"
	ReasonBadPayload     ErrorReason = "ERR_BAD_PAYLOAD"
)

func (e ErrorReason) String() string {
	return string(e)
}

// MalformedFrameError is returned for every frame or record that fails
// validation. Checksum mismatches are reported with ReasonChecksum.
type MalformedFrameError struct {
	Reason  ErrorReason
	Message string
}

func NewMalformedFrameError(reason ErrorReason, format string, args ...interface{}) error {
	return &MalformedFrameError{
		Reason:  reason,
		Message: fmt.Sprintf(format, args...),
	}
}

func (e *MalformedFrameError) Error() string {
	return fmt.Sprintf("malformed frame: reason: %s: %s", e.Reason, e.Message)
}

func IsMalformedFrameError(err error) bool {
	var e *MalformedFrameError
	return errors.As(err, &e)
}

// IsChecksumError reports whether err is a malformed frame caused by a
// checksum mismatch.
func IsChecksumError(err error) bool {
	var e *MalformedFrameError
	return errors.As(err, &e) && e.Reason == ReasonChecksum
}
