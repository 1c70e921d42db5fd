package server_test

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hypertable/hyperspace/pkg/hyperspace/server"
	"github.com/hypertable/hyperspace/pkg/wire"
)

func TestKeepAliveListenerCreateAndRenew(t *testing.T) {
	d, _ := newTestDispatcher(t)
	l, err := server.ListenKeepAlive("127.0.0.1:0", d)
	require.NoError(t, err)
	defer l.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = l.Serve(ctx) }()

	conn, err := net.DialUDP("udp", nil, l.Addr().(*net.UDPAddr))
	require.NoError(t, err)
	defer conn.Close()

	msg, err := wire.EncodeMessage(wire.CmdKeepAlive, 1, 0, 0, wire.KeepAliveRequest{SessionID: 0})
	require.NoError(t, err)
	_, err = conn.Write(msg)
	require.NoError(t, err)

	buf := make([]byte, 4096)
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	n, err := conn.Read(buf)
	require.NoError(t, err)

	_, body, err := wire.DecodeMessage(buf[:n])
	require.NoError(t, err)
	var reply wire.KeepAliveReply
	require.NoError(t, wire.DecodeBody(body, &reply))
	assert.NotZero(t, reply.SessionID)
}
