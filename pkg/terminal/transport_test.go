package terminal

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/nsyszr/punchclock/pkg/model"
	"github.com/nsyszr/punchclock/pkg/terminal/proto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// serveSlowVersion answers every request with ACK_OK. The first version
// reply is written in two parts with a pause longer than the round trip
// timeout in between.
func serveSlowVersion(ln net.Listener, pause time.Duration) {
	conn, err := ln.Accept()
	if err != nil {
		return
	}
	defer conn.Close()

	split := true
	for {
		req, err := proto.ReadFrame(conn)
		if err != nil {
			return
		}

		var payload []byte
		if req.Command == proto.CmdGetVersion {
			payload = []byte("Ver 6.60\x00")
		}
		rep, _ := proto.EncodeCommand(proto.CmdAckOK, 7, req.ReplyID, payload)

		if req.Command == proto.CmdGetVersion && split {
			split = false
			conn.Write(rep[:8])
			time.Sleep(pause)
			conn.Write(rep[8:])
			continue
		}
		conn.Write(rep)
	}
}

func TestRetryAfterPartialReply(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	const timeout = 200 * time.Millisecond
	go serveSlowVersion(ln, 300*time.Millisecond)

	addr := ln.Addr().(*net.TCPAddr)
	device := model.Device{DeviceID: "D1", Host: "127.0.0.1", Port: addr.Port}
	sess := NewSession(device, Options{FetchTimeout: timeout, ExitTimeout: timeout}, nil)

	ctx := context.Background()
	require.NoError(t, sess.Connect(ctx, time.Second))
	defer sess.Disconnect()

	rep, err := sess.roundTrip(ctx, "version", proto.CmdGetVersion, nil, timeout)
	require.NoError(t, err)
	assert.Equal(t, proto.CmdAckOK, rep.Command)
	assert.Equal(t, []byte("Ver 6.60\x00"), rep.Payload)
	assert.Equal(t, StateIdle, sess.State())
	assert.Equal(t, 1, sess.Stats().Retries)

	// The stream is still aligned for the following commands.
	_, err = sess.roundTrip(ctx, "version", proto.CmdGetVersion, nil, timeout)
	require.NoError(t, err)
	assert.Equal(t, 1, sess.Stats().Retries)
}
