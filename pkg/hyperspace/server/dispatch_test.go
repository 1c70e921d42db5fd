package server_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hypertable/hyperspace/pkg/hserrors"
	"github.com/hypertable/hyperspace/pkg/hyperspace/domain"
	"github.com/hypertable/hyperspace/pkg/hyperspace/event"
	"github.com/hypertable/hyperspace/pkg/hyperspace/namespace"
	"github.com/hypertable/hyperspace/pkg/hyperspace/repo"
	"github.com/hypertable/hyperspace/pkg/hyperspace/server"
	"github.com/hypertable/hyperspace/pkg/hyperspace/session"
	badgerstore "github.com/hypertable/hyperspace/pkg/store/badger"
	"github.com/hypertable/hyperspace/pkg/wire"
)

func newTestDispatcher(t *testing.T) (*server.Dispatcher, *session.Manager) {
	t.Helper()
	s, err := badgerstore.Open(badgerstore.Options{InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	require.NoError(t, repo.EnsureRoot(context.Background(), s))

	mgr := session.NewManager(s, nil, time.Hour, nil)
	disp := event.New(s, mgr)
	mgr.SetDispatcher(disp)
	ns := namespace.New(s, disp)
	mgr.SetNamespace(ns)

	d := server.New(s, mgr, ns, nil, nil)
	return d, mgr
}

func roundTrip(t *testing.T, d *server.Dispatcher, cmd wire.Command, req interface{}) []byte {
	t.Helper()
	msg, err := wire.EncodeMessage(cmd, 1, 0, 0, req)
	require.NoError(t, err)
	h, body, err := wire.DecodeMessage(msg)
	require.NoError(t, err)
	reply := d.Dispatch(context.Background(), h, body)
	_, respBody, err := wire.DecodeMessage(reply)
	require.NoError(t, err)
	return respBody
}

func TestDispatchMkdirOpenClose(t *testing.T) {
	d, mgr := newTestDispatcher(t)
	ctx := context.Background()

	sid, err := mgr.CreateSession(ctx, "127.0.0.1:1")
	require.NoError(t, err)

	body := roundTrip(t, d, wire.CmdMkdir, wire.MkdirRequest{SessionID: int64(sid), Path: "/a"})
	var mkdirReply wire.MkdirReply
	require.NoError(t, wire.DecodeBody(body, &mkdirReply))
	assert.Equal(t, int32(hserrors.OK), mkdirReply.Error)

	body = roundTrip(t, d, wire.CmdOpen, wire.OpenRequest{
		SessionID: int64(sid),
		Path:      "/a/f",
		Flags:     uint32(domain.FlagCreate | domain.FlagWrite),
	})
	var openReply wire.OpenReply
	require.NoError(t, wire.DecodeBody(body, &openReply))
	require.Equal(t, int32(hserrors.OK), openReply.Error)
	assert.NotZero(t, openReply.Handle)

	body = roundTrip(t, d, wire.CmdClose, wire.CloseRequest{SessionID: int64(sid), Handle: openReply.Handle})
	var closeReply wire.CloseReply
	require.NoError(t, wire.DecodeBody(body, &closeReply))
	assert.Equal(t, int32(hserrors.OK), closeReply.Error)
}

func TestDispatchRejectsUnknownSession(t *testing.T) {
	d, _ := newTestDispatcher(t)

	body := roundTrip(t, d, wire.CmdMkdir, wire.MkdirRequest{SessionID: 999, Path: "/x"})
	var reply wire.MkdirReply
	require.NoError(t, wire.DecodeBody(body, &reply))
	assert.Equal(t, int32(hserrors.ExpiredSession), reply.Error)
}

func TestDispatchUnknownCommand(t *testing.T) {
	d, _ := newTestDispatcher(t)
	h := wire.Header{ProtocolID: wire.ProtocolID, Command: wire.Command(999), HeaderLength: wire.HeaderSize}
	reply := d.Dispatch(context.Background(), h, nil)
	rh, body, err := wire.DecodeMessage(reply)
	require.NoError(t, err)
	assert.Equal(t, h.Command, rh.Command)

	var closeReply wire.CloseReply
	require.NoError(t, wire.DecodeBody(body, &closeReply))
	assert.Equal(t, int32(hserrors.ProtocolError), closeReply.Error)
}

func TestDispatchStatus(t *testing.T) {
	d, mgr := newTestDispatcher(t)
	ctx := context.Background()
	_, err := mgr.CreateSession(ctx, "127.0.0.1:1")
	require.NoError(t, err)

	body := roundTrip(t, d, wire.CmdStatus, wire.StatusRequest{})
	var reply wire.StatusReply
	require.NoError(t, wire.DecodeBody(body, &reply))
	assert.Equal(t, int32(hserrors.OK), reply.Error)
	assert.Equal(t, int64(1), reply.Sessions)
}
