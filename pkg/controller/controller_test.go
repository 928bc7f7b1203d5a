package controller

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/nsyszr/punchclock/pkg/model"
	"github.com/nsyszr/punchclock/pkg/reconcile"
	"github.com/nsyszr/punchclock/pkg/storage"
	"github.com/nsyszr/punchclock/pkg/storage/memory"
	"github.com/nsyszr/punchclock/pkg/terminal"
	"github.com/nsyszr/punchclock/pkg/terminal/proto"
	"github.com/nsyszr/punchclock/pkg/terminal/terminaltest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type publishedEvent struct {
	deviceID string
	topic    string
	details  *syncStatusDetails
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []publishedEvent
}

func (p *recordingPublisher) Publish(ctx context.Context, deviceID, topic string, details interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, publishedEvent{deviceID, topic, details.(*syncStatusDetails)})
	return nil
}

func (p *recordingPublisher) Close() {}

func (p *recordingPublisher) Events() []publishedEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]publishedEvent(nil), p.events...)
}

var testOptions = Options{
	ConnectTimeout: time.Second,
	Session: terminal.Options{
		FetchTimeout: 200 * time.Millisecond,
		BulkTimeout:  200 * time.Millisecond,
		ExitTimeout:  200 * time.Millisecond,
	},
}

var punchBase = time.Now().UTC().Truncate(time.Hour).Add(-24 * time.Hour)

func newTerminal() *terminaltest.Terminal {
	return &terminaltest.Terminal{
		SerialNumber: "OGT2130060001",
		Platform:     "ZMM220_TFT",
		Firmware:     "Ver 6.60",
		Users: []proto.User{
			{UID: 1, UserID: "1001", Name: "Ada"},
			{UID: 2, UserID: "1002", Name: "Grace"},
		},
		Punches: []proto.Punch{
			{UID: 1, UserID: "1001", Timestamp: punchBase, VerifyMethod: proto.VerifyFingerprint, Status: proto.PunchCheckIn},
			{UID: 2, UserID: "1002", Timestamp: punchBase.Add(3 * time.Minute), VerifyMethod: proto.VerifyCard, Status: proto.PunchCheckIn},
			{UID: 1, UserID: "1001", Timestamp: punchBase.Add(8 * time.Hour), VerifyMethod: proto.VerifyFingerprint, Status: proto.PunchCheckOut},
		},
	}
}

func setup(t *testing.T, devices ...model.Device) storage.Interface {
	s := memory.NewStore()
	ctx := context.Background()
	for i := range devices {
		require.NoError(t, s.Devices().Create(ctx, &devices[i]))
		require.NoError(t, s.Employees().Create(ctx, &model.EmployeeMapping{DeviceID: devices[i].DeviceID, DeviceUserID: "1001", EmployeeID: "E-1"}))
		require.NoError(t, s.Employees().Create(ctx, &model.EmployeeMapping{DeviceID: devices[i].DeviceID, DeviceUserID: "1002", EmployeeID: "E-2"}))
	}
	return s
}

func TestSyncDevice(t *testing.T) {
	device := model.Device{DeviceID: "D1", Host: "10.0.0.5", Port: 4370}
	s := setup(t, device)
	ctx := context.Background()

	term := newTerminal()
	d := terminaltest.NewDialer()
	d.Register("10.0.0.5:4370", term)

	// One punch is already in the ledger from an earlier sync.
	_, err := reconcile.New(s, reconcile.Options{}).ReconcileAttendance(ctx, "D1", 0, term.Punches[:1])
	require.NoError(t, err)

	pub := &recordingPublisher{}
	ctrl := New(s, pub, d, testOptions)

	res := ctrl.SyncDevice(ctx, device, time.Second)
	require.True(t, res.Success, res.Error)
	assert.Equal(t, "10.0.0.5:4370", res.Address)
	require.NotNil(t, res.Info)
	assert.Equal(t, "OGT2130060001", res.Info.SerialNumber)
	assert.Equal(t, reconcile.AttendanceResult{Fetched: 3, Inserted: 2, Duplicates: 1}, res.Punches)
	assert.Equal(t, 2, res.Users.Mapped)
	assert.Empty(t, res.Users.Unmapped)

	events, err := s.Events().Fetch(ctx, model.EventFilter{DeviceID: "D1"})
	require.NoError(t, err)
	assert.Len(t, events, 3)

	stored, err := s.Devices().FindByID(ctx, "D1")
	require.NoError(t, err)
	require.NotNil(t, stored.LastSuccessfulSync)

	sessions, err := s.Sessions().FetchAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, sessions)

	assert.Equal(t, 0, d.Open())
	assert.False(t, term.Disabled())

	published := pub.Events()
	require.Len(t, published, 1)
	assert.Equal(t, "D1", published[0].deviceID)
	assert.Equal(t, TopicSyncStatus, published[0].topic)
	assert.Equal(t, "SUCCEEDED", published[0].details.Status)
	assert.Equal(t, 2, published[0].details.Inserted)

	// A second run only finds duplicates.
	res = ctrl.SyncDevice(ctx, device, time.Second)
	require.True(t, res.Success, res.Error)
	assert.Equal(t, 0, res.Punches.Inserted)
	assert.Equal(t, 3, res.Punches.Duplicates)
}

func TestSyncDevicesIsolatesFailures(t *testing.T) {
	devices := []model.Device{
		{DeviceID: "A", Host: "10.0.0.1"},
		{DeviceID: "B", Host: "10.0.0.2"},
		{DeviceID: "C", Host: "10.0.0.3"},
	}
	s := setup(t, devices...)

	d := terminaltest.NewDialer()
	d.Register("10.0.0.1:4370", newTerminal())
	d.Register("10.0.0.3:4370", newTerminal())

	ctrl := New(s, nil, d, testOptions)
	results, err := ctrl.SyncDevices(context.Background(), devices)
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.Equal(t, "A", results[0].DeviceID)
	assert.True(t, results[0].Success)
	assert.Equal(t, "B", results[1].DeviceID)
	assert.False(t, results[1].Success)
	assert.Equal(t, string(terminal.KindConnectionRefused), results[1].ErrorKind)
	assert.Equal(t, "C", results[2].DeviceID)
	assert.True(t, results[2].Success)

	for _, id := range []string{"A", "C"} {
		events, err := s.Events().Fetch(context.Background(), model.EventFilter{DeviceID: id})
		require.NoError(t, err)
		assert.Len(t, events, 3, id)
	}
	assert.Equal(t, 0, d.Open())
}

func TestSyncAll(t *testing.T) {
	devices := []model.Device{
		{DeviceID: "A", Host: "10.0.0.1"},
		{DeviceID: "B", Host: "10.0.0.2"},
	}
	s := setup(t, devices...)

	d := terminaltest.NewDialer()
	d.Register("10.0.0.1:4370", newTerminal())
	d.Register("10.0.0.2:4370", newTerminal())

	results, err := New(s, nil, d, testOptions).SyncAll(context.Background())
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.True(t, results[0].Success)
	assert.True(t, results[1].Success)
}

func TestSyncDevicesEmpty(t *testing.T) {
	results, err := New(memory.NewStore(), nil, terminaltest.NewDialer(), testOptions).SyncDevices(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestSyncDevicesCancellation(t *testing.T) {
	devices := []model.Device{
		{DeviceID: "A", Host: "10.0.0.1"},
		{DeviceID: "B", Host: "10.0.0.2"},
		{DeviceID: "C", Host: "10.0.0.3"},
	}
	s := setup(t, devices...)

	stalled := make(chan struct{}, 3)
	d := terminaltest.NewDialer()
	for _, dev := range devices {
		term := newTerminal()
		term.StallCommand = proto.CmdAttLogPageRRQ
		term.Stalled = stalled
		d.Register(terminal.Address(dev), term)
	}

	opts := testOptions
	opts.MaxWorkers = 2
	opts.Session.BulkTimeout = 10 * time.Second
	ctrl := New(s, nil, d, opts)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	type outcome struct {
		results []Result
		err     error
	}
	done := make(chan outcome, 1)
	go func() {
		results, err := ctrl.SyncDevices(ctx, devices)
		done <- outcome{results, err}
	}()

	for i := 0; i < 2; i++ {
		select {
		case <-stalled:
		case <-time.After(2 * time.Second):
			t.Fatal("workers did not reach the attendance download")
		}
	}
	cancel()

	var out outcome
	select {
	case out = <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("sync run did not stop after cancellation")
	}

	assert.Equal(t, ErrRunCancelled, out.err)
	require.Len(t, out.results, 3)
	for _, r := range out.results {
		assert.False(t, r.Success)
		assert.Equal(t, KindCancelled, r.ErrorKind, r.DeviceID)
	}
	assert.Equal(t, 2, d.Dials())
	assert.Equal(t, 0, d.Open())

	events, err := s.Events().Fetch(context.Background(), model.EventFilter{})
	require.NoError(t, err)
	assert.Empty(t, events)

	sessions, err := s.Sessions().FetchAll(context.Background())
	require.NoError(t, err)
	assert.Empty(t, sessions)
}

func TestSyncDeviceBusy(t *testing.T) {
	device := model.Device{DeviceID: "D1", Host: "10.0.0.5"}
	s := setup(t, device)
	require.NoError(t, s.Sessions().Acquire(context.Background(), &model.Session{
		DeviceID:  "D1",
		Owner:     "other",
		ExpiresAt: time.Now().Add(time.Minute),
	}))

	d := terminaltest.NewDialer()
	d.Register("10.0.0.5:4370", newTerminal())

	pub := &recordingPublisher{}
	res := New(s, pub, d, testOptions).SyncDevice(context.Background(), device, time.Second)
	assert.False(t, res.Success)
	assert.Equal(t, KindDeviceBusy, res.ErrorKind)
	assert.Equal(t, 0, d.Dials())

	published := pub.Events()
	require.Len(t, published, 1)
	assert.Equal(t, "FAILED", published[0].details.Status)
	assert.Equal(t, KindDeviceBusy, published[0].details.ErrorKind)
}

type failingEvents struct {
	storage.EventStore
}

func (failingEvents) Upsert(ctx context.Context, m *model.AttendanceEvent) (bool, error) {
	return false, assert.AnError
}

type failingStore struct {
	storage.Interface
}

func (s failingStore) Events() storage.EventStore {
	return failingEvents{s.Interface.Events()}
}

func TestSyncDevicePersistenceError(t *testing.T) {
	device := model.Device{DeviceID: "D1", Host: "10.0.0.5"}
	s := setup(t, device)

	d := terminaltest.NewDialer()
	d.Register("10.0.0.5:4370", newTerminal())

	res := New(failingStore{s}, nil, d, testOptions).SyncDevice(context.Background(), device, time.Second)
	assert.False(t, res.Success)
	assert.Equal(t, KindPersistenceError, res.ErrorKind)
	assert.Equal(t, 0, d.Open())

	stored, err := s.Devices().FindByID(context.Background(), "D1")
	require.NoError(t, err)
	assert.Nil(t, stored.LastSuccessfulSync)
}
