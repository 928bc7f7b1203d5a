package cli

import (
	"context"
	"syscall"
	"testing"
	"time"

	"github.com/nsyszr/punchclock/pkg/controller"
	"github.com/nsyszr/punchclock/pkg/model"
	"github.com/nsyszr/punchclock/pkg/storage/memory"
	"github.com/nsyszr/punchclock/pkg/terminal"
	"github.com/nsyszr/punchclock/pkg/terminal/terminaltest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunSync(t *testing.T) {
	s := memory.NewStore()
	ctx := context.Background()
	require.NoError(t, s.Devices().Create(ctx, &model.Device{DeviceID: "D1", Host: "10.0.0.5"}))
	require.NoError(t, s.Devices().Create(ctx, &model.Device{DeviceID: "D2", Host: "10.0.0.6"}))

	d := terminaltest.NewDialer()
	d.Register("10.0.0.5:4370", &terminaltest.Terminal{SerialNumber: "A"})
	d.Fail("10.0.0.6:4370", syscall.ECONNREFUSED)

	ctrl := controller.New(s, nil, d, controller.Options{
		Session: terminal.Options{
			FetchTimeout: 200 * time.Millisecond,
			BulkTimeout:  200 * time.Millisecond,
			ExitTimeout:  200 * time.Millisecond,
		},
	})

	results, err := runSync(ctx, ctrl, s, []string{"D1"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.True(t, results[0].Success, results[0].Error)

	results, err = runSync(ctx, ctrl, s, nil)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.True(t, results[0].Success)
	assert.False(t, results[1].Success)
	assert.Equal(t, string(terminal.KindConnectionRefused), results[1].ErrorKind)

	_, err = runSync(ctx, ctrl, s, []string{"D9"})
	assert.EqualError(t, err, `unknown device "D9"`)
}
