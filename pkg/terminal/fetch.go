package terminal

import (
	"context"

	"github.com/nsyszr/punchclock/pkg/metrics"
	"github.com/nsyszr/punchclock/pkg/terminal/proto"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// WithExclusiveAccess disables the terminal keypad and sensor while fn
// runs so that no punch is recorded mid-download. The terminal is enabled
// again afterwards even if fn fails or ctx is cancelled, unless the
// connection has faulted.
func (s *Session) WithExclusiveAccess(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, err := s.roundTrip(ctx, "disable device", proto.CmdDisableDevice, nil, s.opts.FetchTimeout); err != nil {
		// The terminal may have executed the command even though its reply
		// was lost.
		s.enable(ctx)
		return err
	}

	err := fn(ctx)
	s.enable(ctx)

	return err
}

func (s *Session) enable(ctx context.Context) {
	if st := s.State(); st == StateFaulted || st == StateDisconnected {
		s.log.WithField("state", st.String()).Warn("Skipping enable device, terminal re-enables itself once the session drops")
		return
	}

	if _, err := s.roundTrip(context.WithoutCancel(ctx), "enable device", proto.CmdEnableDevice, nil, s.opts.FetchTimeout); err != nil {
		s.log.WithError(err).Error("Failed to enable terminal")
	}
}

// FetchUsers downloads the user table page by page.
func (s *Session) FetchUsers(ctx context.Context) ([]proto.User, error) {
	users := make([]proto.User, 0)

	err := s.fetchPages(ctx, "fetch users", proto.CmdUserPageRRQ, func(payload []byte) {
		page, errs := proto.DecodeUserPage(payload)
		s.skipMalformed("user", errs)
		users = append(users, page...)
	})
	if err != nil {
		return nil, err
	}

	return users, nil
}

// FetchAttendanceLogs downloads the attendance log page by page. Records
// are returned in device order.
func (s *Session) FetchAttendanceLogs(ctx context.Context) ([]proto.Punch, error) {
	punches := make([]proto.Punch, 0)

	err := s.fetchPages(ctx, "fetch attendance logs", proto.CmdAttLogPageRRQ, func(payload []byte) {
		page, errs := proto.DecodePunchPage(payload)
		s.skipMalformed("punch", errs)
		punches = append(punches, page...)
	})
	if err != nil {
		return nil, err
	}

	return punches, nil
}

func (s *Session) fetchPages(ctx context.Context, op string, cmd proto.Command, fn func(payload []byte)) error {
	for page := uint32(0); page < maxPages; page++ {
		if err := ctx.Err(); err != nil {
			return newError(KindCancelled, op, err)
		}

		rep, err := s.roundTrip(ctx, op, cmd, proto.MarshalPageRequest(page), s.opts.BulkTimeout)
		if err != nil {
			return err
		}

		switch rep.Command {
		case proto.CmdData:
			fn(rep.Payload)
		case proto.CmdAckOK, proto.CmdAckData:
			fn(rep.Payload)
			s.log.WithFields(log.Fields{"op": op, "pages": page + 1}).Debug("Download complete")
			return nil
		default:
			return s.fault(op, errors.Errorf("unexpected page reply %s", rep.Command))
		}
	}

	return s.fault(op, errors.Errorf("terminal sent more than %d pages", maxPages))
}

func (s *Session) skipMalformed(record string, errs []error) {
	if len(errs) == 0 {
		return
	}

	s.mu.Lock()
	s.stats.MalformedRecords += len(errs)
	s.mu.Unlock()
	metrics.MalformedRecords.Add(float64(len(errs)))

	for _, err := range errs {
		s.log.WithError(err).WithField("record", record).Warn("Skipping malformed record")
	}
}
