package terminal

import (
	"context"
	"time"

	"github.com/nsyszr/punchclock/pkg/terminal/proto"
	log "github.com/sirupsen/logrus"
)

const (
	optionSerialNumber = "~SerialNumber"
	optionPlatform     = "~Platform"
)

// DeviceInfo is a snapshot of terminal metadata.
type DeviceInfo struct {
	SerialNumber string        `json:"serialNumber"`
	Platform     string        `json:"platform"`
	Firmware     string        `json:"firmware"`
	UserCount    int           `json:"userCount"`
	UserCapacity int           `json:"userCapacity"`
	LogCount     int           `json:"logCount"`
	LogCapacity  int           `json:"logCapacity"`
	DeviceTime   time.Time     `json:"deviceTime"`
	ClockOffset  time.Duration `json:"clockOffset"`
	CapturedAt   time.Time     `json:"capturedAt"`
}

// FetchInfo reads counters, identity and clock of the terminal. The clock
// offset is the device clock minus the host clock at the midpoint of the
// time request.
func (s *Session) FetchInfo(ctx context.Context) (*DeviceInfo, error) {
	const op = "fetch info"
	info := &DeviceInfo{}

	rep, err := s.roundTrip(ctx, op, proto.CmdGetFreeSizes, nil, s.opts.FetchTimeout)
	if err != nil {
		return nil, err
	}
	sizes, err := proto.ParseFreeSizes(rep.Payload)
	if err != nil {
		return nil, s.fault(op, err)
	}
	info.UserCount = sizes.Users
	info.UserCapacity = sizes.UserCapacity
	info.LogCount = sizes.Records
	info.LogCapacity = sizes.RecordCapacity

	if info.SerialNumber, err = s.readOption(ctx, op, optionSerialNumber); err != nil {
		return nil, err
	}
	if info.Platform, err = s.readOption(ctx, op, optionPlatform); err != nil {
		return nil, err
	}

	rep, err = s.roundTrip(ctx, op, proto.CmdGetVersion, nil, s.opts.FetchTimeout)
	if err != nil {
		return nil, err
	}
	info.Firmware = proto.ParseString(rep.Payload)

	sent := time.Now()
	rep, err = s.roundTrip(ctx, op, proto.CmdGetTime, nil, s.opts.FetchTimeout)
	if err != nil {
		return nil, err
	}
	received := time.Now()

	raw, err := proto.ParseTime(rep.Payload)
	if err != nil {
		return nil, s.fault(op, err)
	}
	if info.DeviceTime, err = proto.DecodeTime(raw); err != nil {
		return nil, s.fault(op, err)
	}

	host := sent.Add(received.Sub(sent) / 2).UTC()
	info.ClockOffset = info.DeviceTime.Sub(naive(host))
	info.CapturedAt = received.UTC()

	s.log.WithFields(log.Fields{
		"serial":       info.SerialNumber,
		"firmware":     info.Firmware,
		"users":        info.UserCount,
		"logs":         info.LogCount,
		"clock_offset": info.ClockOffset.String(),
	}).Info("Fetched terminal info")

	return info, nil
}

func (s *Session) readOption(ctx context.Context, op, name string) (string, error) {
	rep, err := s.roundTrip(ctx, op, proto.CmdOptionsRRQ, proto.MarshalOptionRequest(name), s.opts.FetchTimeout)
	if err != nil {
		return "", err
	}
	value, err := proto.ParseOption(rep.Payload)
	if err != nil {
		return "", s.fault(op, err)
	}
	return value, nil
}

// fault marks the session faulted after an undecodable reply.
func (s *Session) fault(op string, err error) error {
	s.setState(StateFaulted)
	return newError(KindProtocolError, op, err)
}

// naive strips the zone so that host and device wall clocks compare as
// plain readings.
func naive(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), time.UTC)
}
