package terminal

import (
	"context"
	"syscall"
	"testing"
	"time"

	"github.com/nsyszr/punchclock/pkg/model"
	"github.com/nsyszr/punchclock/pkg/terminal/proto"
	"github.com/nsyszr/punchclock/pkg/terminal/terminaltest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testAddr = "10.0.0.5:4370"

var testDevice = model.Device{DeviceID: "D1", Host: "10.0.0.5", Port: 4370}

var fastOptions = Options{
	FetchTimeout: 100 * time.Millisecond,
	BulkTimeout:  100 * time.Millisecond,
	ExitTimeout:  100 * time.Millisecond,
}

func newTerminal() *terminaltest.Terminal {
	base := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	t := &terminaltest.Terminal{
		SerialNumber: "OGT2130060001",
		Platform:     "ZMM220_TFT",
		Firmware:     "Ver 6.60 Apr 28 2021",
		PageSize:     2,
	}
	for i := 0; i < 5; i++ {
		t.Users = append(t.Users, proto.User{UID: uint16(i + 1), UserID: string(rune('1' + i)), Name: "user"})
		t.Punches = append(t.Punches, proto.Punch{
			UID:          uint16(i + 1),
			UserID:       string(rune('1' + i)),
			Timestamp:    base.Add(time.Duration(i) * time.Minute),
			VerifyMethod: proto.VerifyFingerprint,
			Status:       proto.PunchCheckIn,
		})
	}
	return t
}

func connect(t *testing.T, term *terminaltest.Terminal, opts Options) (*Session, *terminaltest.Dialer) {
	d := terminaltest.NewDialer()
	d.Register(testAddr, term)

	s := NewSession(testDevice, opts, d)
	require.NoError(t, s.Connect(context.Background(), time.Second))
	require.Equal(t, StateIdle, s.State())

	return s, d
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "IDLE", StateIdle.String())
	assert.Equal(t, "FAULTED", StateFaulted.String())
	assert.Equal(t, "UNKNOWN", State(42).String())
}

func TestOptionsDefaults(t *testing.T) {
	o := Options{}.withDefaults()
	assert.Equal(t, DefaultFetchTimeout, o.FetchTimeout)
	assert.Equal(t, DefaultBulkTimeout, o.BulkTimeout)
	assert.Equal(t, 2, o.MaxRetries)

	assert.Equal(t, 2, Options{MaxRetries: 7}.withDefaults().MaxRetries)
	assert.Equal(t, 0, Options{MaxRetries: -1}.withDefaults().MaxRetries)
}

func TestFetchInfo(t *testing.T) {
	term := newTerminal()
	term.ClockOffset = 3*time.Hour + 30*time.Second
	s, d := connect(t, term, fastOptions)

	info, err := s.FetchInfo(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "OGT2130060001", info.SerialNumber)
	assert.Equal(t, "ZMM220_TFT", info.Platform)
	assert.Equal(t, "Ver 6.60 Apr 28 2021", info.Firmware)
	assert.Equal(t, 5, info.UserCount)
	assert.Equal(t, 5, info.LogCount)
	assert.Equal(t, 100000, info.LogCapacity)
	assert.InDelta(t, term.ClockOffset.Seconds(), info.ClockOffset.Seconds(), 2)

	require.NoError(t, s.Disconnect())
	assert.Equal(t, StateDisconnected, s.State())
	assert.Equal(t, 0, d.Open())
	assert.Equal(t, 1, term.Count(proto.CmdExit))

	// Disconnect is idempotent.
	assert.NoError(t, s.Disconnect())
}

func TestDownloadWithExclusiveAccess(t *testing.T) {
	term := newTerminal()
	s, d := connect(t, term, fastOptions)
	defer s.Disconnect()

	var users []proto.User
	var punches []proto.Punch
	err := s.WithExclusiveAccess(context.Background(), func(ctx context.Context) error {
		assert.True(t, term.Disabled())

		var err error
		if users, err = s.FetchUsers(ctx); err != nil {
			return err
		}
		punches, err = s.FetchAttendanceLogs(ctx)
		return err
	})
	require.NoError(t, err)

	assert.Len(t, users, 5)
	require.Len(t, punches, 5)
	assert.Equal(t, term.Punches[4], punches[4])
	assert.Equal(t, 3, term.Count(proto.CmdUserPageRRQ))
	assert.Equal(t, 3, term.Count(proto.CmdAttLogPageRRQ))
	assert.False(t, term.Disabled())

	cmds := term.Commands()
	assert.Equal(t, proto.CmdDisableDevice, cmds[1])
	assert.Equal(t, proto.CmdEnableDevice, cmds[len(cmds)-1])

	require.NoError(t, s.Disconnect())
	assert.Equal(t, 0, d.Open())
}

func TestExclusiveAccessEnablesAfterFailure(t *testing.T) {
	term := newTerminal()
	term.Reject = map[proto.Command]bool{proto.CmdUserPageRRQ: true}
	s, _ := connect(t, term, fastOptions)
	defer s.Disconnect()

	err := s.WithExclusiveAccess(context.Background(), func(ctx context.Context) error {
		_, err := s.FetchUsers(ctx)
		return err
	})
	assert.Equal(t, KindProtocolError, KindOf(err))
	assert.Equal(t, 1, term.Count(proto.CmdEnableDevice))
	assert.False(t, term.Disabled())
}

func TestEmptyDevice(t *testing.T) {
	term := newTerminal()
	term.Users = nil
	term.Punches = nil
	s, _ := connect(t, term, fastOptions)
	defer s.Disconnect()

	users, err := s.FetchUsers(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, users)
	assert.Empty(t, users)

	punches, err := s.FetchAttendanceLogs(context.Background())
	require.NoError(t, err)
	assert.Empty(t, punches)
}

func TestMalformedRecordIsSkipped(t *testing.T) {
	term := newTerminal()
	term.CorruptPunches = []int{2}
	s, _ := connect(t, term, fastOptions)
	defer s.Disconnect()

	punches, err := s.FetchAttendanceLogs(context.Background())
	require.NoError(t, err)
	assert.Len(t, punches, 4)
	assert.Equal(t, 1, s.Stats().MalformedRecords)
	assert.Equal(t, StateIdle, s.State())
}

func TestTimeoutIsRetried(t *testing.T) {
	term := newTerminal()
	term.Drop = map[proto.Command]int{proto.CmdGetFreeSizes: 2}
	s, _ := connect(t, term, fastOptions)
	defer s.Disconnect()

	_, err := s.FetchInfo(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, s.Stats().Retries)
	assert.Equal(t, 3, term.Count(proto.CmdGetFreeSizes))
}

func TestExhaustedRetriesFaultSession(t *testing.T) {
	term := newTerminal()
	term.Drop = map[proto.Command]int{proto.CmdGetFreeSizes: 3}
	s, d := connect(t, term, fastOptions)

	_, err := s.FetchInfo(context.Background())
	assert.Equal(t, KindDeviceUnreachable, KindOf(err))
	assert.Equal(t, StateFaulted, s.State())
	assert.Equal(t, 3, term.Count(proto.CmdGetFreeSizes))

	// A faulted session refuses further commands without touching the wire.
	_, err = s.FetchUsers(context.Background())
	assert.Equal(t, KindDeviceUnreachable, KindOf(err))

	require.NoError(t, s.Disconnect())
	assert.Equal(t, StateDisconnected, s.State())
	assert.Equal(t, 0, d.Open())
	assert.Equal(t, 0, term.Count(proto.CmdExit))
}

func TestStaleReplyIsDiscarded(t *testing.T) {
	term := newTerminal()
	term.Stale = map[proto.Command]int{proto.CmdGetVersion: 1}
	s, _ := connect(t, term, fastOptions)
	defer s.Disconnect()

	info, err := s.FetchInfo(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Ver 6.60 Apr 28 2021", info.Firmware)
	assert.Equal(t, 0, s.Stats().Retries)
}

func TestCorruptReplyIsProtocolError(t *testing.T) {
	term := newTerminal()
	term.Corrupt = map[proto.Command]int{proto.CmdGetFreeSizes: 1}
	s, _ := connect(t, term, fastOptions)
	defer s.Disconnect()

	_, err := s.FetchInfo(context.Background())
	assert.Equal(t, KindProtocolError, KindOf(err))
	assert.Equal(t, StateFaulted, s.State())
}

func TestAckErrorIsProtocolError(t *testing.T) {
	term := newTerminal()
	term.Reject = map[proto.Command]bool{proto.CmdGetVersion: true}
	s, _ := connect(t, term, fastOptions)
	defer s.Disconnect()

	_, err := s.FetchInfo(context.Background())
	assert.True(t, IsKind(err, KindProtocolError))
}

func TestConnectErrors(t *testing.T) {
	tests := []struct {
		name  string
		setup func(d *terminaltest.Dialer)
		kind  ErrorKind
	}{
		{
			name:  "refused",
			setup: func(d *terminaltest.Dialer) {},
			kind:  KindConnectionRefused,
		},
		{
			name:  "host unreachable",
			setup: func(d *terminaltest.Dialer) { d.Fail(testAddr, syscall.EHOSTUNREACH) },
			kind:  KindHostUnreachable,
		},
		{
			name:  "network unreachable",
			setup: func(d *terminaltest.Dialer) { d.Fail(testAddr, syscall.ENETUNREACH) },
			kind:  KindHostUnreachable,
		},
		{
			name:  "dial timeout",
			setup: func(d *terminaltest.Dialer) { d.Hang(testAddr) },
			kind:  KindConnectionTimeout,
		},
		{
			name: "handshake timeout",
			setup: func(d *terminaltest.Dialer) {
				term := newTerminal()
				term.Drop = map[proto.Command]int{proto.CmdConnect: 1}
				d.Register(testAddr, term)
			},
			kind: KindConnectionTimeout,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := terminaltest.NewDialer()
			tt.setup(d)

			s := NewSession(testDevice, fastOptions, d)
			err := s.Connect(context.Background(), 100*time.Millisecond)
			assert.Equal(t, tt.kind, KindOf(err))
			assert.Equal(t, StateDisconnected, s.State())
			assert.Equal(t, 0, d.Open())
			assert.NoError(t, s.Disconnect())
		})
	}
}

func TestConnectCancelled(t *testing.T) {
	d := terminaltest.NewDialer()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := NewSession(testDevice, fastOptions, d)
	err := s.Connect(ctx, time.Second)
	assert.Equal(t, KindCancelled, KindOf(err))
}

func TestCommKey(t *testing.T) {
	tests := []struct {
		name    string
		key     int
		wantErr ErrorKind
	}{
		{"matching key", 4242, ""},
		{"wrong key", 1111, KindAuthRejected},
		{"missing key", 0, KindAuthRejected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			term := newTerminal()
			term.CommKey = 4242
			d := terminaltest.NewDialer()
			d.Register(testAddr, term)

			device := testDevice
			device.CommKey = tt.key
			s := NewSession(device, fastOptions, d)
			err := s.Connect(context.Background(), time.Second)
			assert.Equal(t, tt.wantErr, KindOf(err))

			if err == nil {
				_, err := s.FetchInfo(context.Background())
				assert.NoError(t, err)
			}
			s.Disconnect()
			assert.Equal(t, 0, d.Open())
		})
	}
}

func TestCancelInterruptsDownload(t *testing.T) {
	term := newTerminal()
	term.StallCommand = proto.CmdAttLogPageRRQ
	term.StallFromPage = 1
	term.Stalled = make(chan struct{}, 1)

	opts := fastOptions
	opts.BulkTimeout = 10 * time.Second
	s, d := connect(t, term, opts)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- s.WithExclusiveAccess(ctx, func(ctx context.Context) error {
			_, err := s.FetchAttendanceLogs(ctx)
			return err
		})
	}()

	select {
	case <-term.Stalled:
	case <-time.After(2 * time.Second):
		t.Fatal("terminal never received the stalled page request")
	}
	cancel()

	select {
	case err := <-done:
		assert.Equal(t, KindCancelled, KindOf(err))
	case <-time.After(2 * time.Second):
		t.Fatal("cancellation did not interrupt the pending read")
	}

	assert.Equal(t, 1, term.Count(proto.CmdEnableDevice))
	assert.False(t, term.Disabled())

	require.NoError(t, s.Disconnect())
	assert.Equal(t, 0, d.Open())
	assert.Equal(t, 1, term.Count(proto.CmdExit))
}
