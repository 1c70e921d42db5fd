package client

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hypertable/hyperspace/pkg/wire"
)

// fakeTransport lets tests drive the Engine's state machine without a real
// socket. keepAlive is called once per KeepAlive invocation and supplies the
// reply or error to hand back.
type fakeTransport struct {
	mu           sync.Mutex
	calls        int
	keepAlive    func(call int) (wire.KeepAliveReply, error)
	handshakeErr error
	callErr      error
}

func (f *fakeTransport) KeepAlive(ctx context.Context, req wire.KeepAliveRequest) (wire.KeepAliveReply, error) {
	f.mu.Lock()
	f.calls++
	n := f.calls
	f.mu.Unlock()
	if f.keepAlive == nil {
		return wire.KeepAliveReply{SessionID: 1}, nil
	}
	return f.keepAlive(n)
}

func (f *fakeTransport) Handshake(ctx context.Context, req wire.HandshakeRequest) (wire.HandshakeReply, error) {
	if f.handshakeErr != nil {
		return wire.HandshakeReply{}, f.handshakeErr
	}
	return wire.HandshakeReply{SessionID: req.SessionID}, nil
}

func (f *fakeTransport) Call(ctx context.Context, cmd wire.Command, threadGroup uint32, req, resp interface{}) error {
	return f.callErr
}

func (f *fakeTransport) Close() error { return nil }

// recordingCallbacks counts every transition and notification it sees.
type recordingCallbacks struct {
	mu            sync.Mutex
	jeopardyCount int
	safeCount     int
	expiredCount  int
	notifications []uint64
}

func (r *recordingCallbacks) Jeopardy() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jeopardyCount++
}

func (r *recordingCallbacks) Safe() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.safeCount++
}

func (r *recordingCallbacks) Expired() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.expiredCount++
}

func (r *recordingCallbacks) Notify(handle uint64, eventKind int32, payload NotificationPayload) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notifications = append(r.notifications, handle)
}

func testConfig() Config {
	return Config{
		ClientName:           "test",
		KeepAliveInterval:    10 * time.Millisecond,
		LeaseInterval:        20 * time.Millisecond,
		GracePeriod:          40 * time.Millisecond,
		BadNotificationGrace: 30 * time.Millisecond,
	}
}

func TestEngineStartTransitionsToSafe(t *testing.T) {
	transport := &fakeTransport{}
	cb := &recordingCallbacks{}
	e := New(testConfig(), transport, cb)

	require.NoError(t, e.Start(context.Background()))
	assert.Equal(t, StateSafe, e.State())
	assert.Equal(t, uint64(1), e.SessionID())
}

func TestEngineJeopardyThenRecovery(t *testing.T) {
	transport := &fakeTransport{
		keepAlive: func(call int) (wire.KeepAliveReply, error) {
			if call == 1 {
				return wire.KeepAliveReply{SessionID: 1}, nil
			}
			if call == 2 {
				return wire.KeepAliveReply{}, assertErr
			}
			return wire.KeepAliveReply{SessionID: 1}, nil
		},
	}
	cb := &recordingCallbacks{}
	e := New(testConfig(), transport, cb)
	require.NoError(t, e.Start(context.Background()))

	// Force the jeopardy deadline into the past so the next missed reply
	// trips the transition immediately, independent of wall-clock timing.
	e.mu.Lock()
	e.jeopardyDeadline = time.Now().Add(-time.Millisecond)
	e.mu.Unlock()

	e.tick(context.Background())
	assert.Equal(t, StateJeopardy, e.State())
	assert.Equal(t, 1, cb.jeopardyCount)

	e.tick(context.Background())
	assert.Equal(t, StateSafe, e.State())
	assert.Equal(t, 1, cb.safeCount)
}

func TestEngineGraceExpiryWithoutReconnect(t *testing.T) {
	transport := &fakeTransport{
		keepAlive: func(call int) (wire.KeepAliveReply, error) {
			if call == 1 {
				return wire.KeepAliveReply{SessionID: 1}, nil
			}
			return wire.KeepAliveReply{}, assertErr
		},
	}
	cb := &recordingCallbacks{}
	cfg := testConfig()
	e := New(cfg, transport, cb)
	require.NoError(t, e.Start(context.Background()))

	e.mu.Lock()
	e.jeopardyDeadline = time.Now().Add(-time.Millisecond)
	e.mu.Unlock()

	e.tick(context.Background())
	require.Equal(t, StateJeopardy, e.State())

	e.mu.Lock()
	e.jeopardyStarted = time.Now().Add(-cfg.GracePeriod - time.Millisecond)
	e.mu.Unlock()

	e.tick(context.Background())
	assert.Equal(t, StateExpired, e.State())
	assert.Equal(t, 1, cb.expiredCount)
}

func TestEngineReconnectClearsHandlesOnExpiry(t *testing.T) {
	transport := &fakeTransport{
		keepAlive: func(call int) (wire.KeepAliveReply, error) {
			return wire.KeepAliveReply{}, assertErr
		},
	}
	cb := &recordingCallbacks{}
	cfg := testConfig()
	cfg.Reconnect = true
	e := New(cfg, transport, cb)
	e.sessionID = 1
	e.state = StateJeopardy
	e.jeopardyStarted = time.Now().Add(-cfg.GracePeriod - time.Millisecond)
	e.handles.add(42)

	e.transitionToExpired()

	assert.Equal(t, StateDisconnected, e.State())
	assert.Equal(t, uint64(0), e.SessionID())
	assert.False(t, e.handles.has(42))
	assert.Equal(t, 1, cb.expiredCount)
}

func TestEngineProcessNotificationsKnownHandle(t *testing.T) {
	cb := &recordingCallbacks{}
	e := New(testConfig(), &fakeTransport{}, cb)
	e.handles.add(7)

	now := time.Now()
	e.processNotifications(now, []wire.NotificationRecord{
		{Handle: 7, EventID: 1, Kind: 1, Name: "a"},
	})
	assert.Equal(t, []uint64{7}, cb.notifications)
	assert.Equal(t, uint64(1), e.lastKnownEventID)

	// Replaying the same event id must not redeliver it.
	e.processNotifications(now, []wire.NotificationRecord{
		{Handle: 7, EventID: 1, Kind: 1, Name: "a"},
	})
	assert.Equal(t, []uint64{7}, cb.notifications)
}

func TestEngineUnknownHandleSuppressesBatchUntilFatal(t *testing.T) {
	cb := &recordingCallbacks{}
	cfg := testConfig()
	e := New(cfg, &fakeTransport{}, cb)

	var fatalReason string
	e.OnFatal = func(reason string) { fatalReason = reason }

	now := time.Now()
	e.processNotifications(now, []wire.NotificationRecord{
		{Handle: 99, EventID: 1},
		{Handle: 7, EventID: 1},
	})
	// The unknown handle at the head of the batch suppresses delivery of
	// the rest, including the otherwise-known handle behind it.
	assert.Empty(t, cb.notifications)
	assert.Empty(t, fatalReason)

	later := now.Add(cfg.BadNotificationGrace + time.Millisecond)
	e.processNotifications(later, []wire.NotificationRecord{
		{Handle: 99, EventID: 1},
	})
	assert.Contains(t, fatalReason, "unknown handle 99")
}

func TestEngineCallClearsHandlesAndReconnectsOnFailure(t *testing.T) {
	transport := &fakeTransport{callErr: assertErr}
	e := New(testConfig(), transport, &recordingCallbacks{})
	e.sessionID = 5
	e.handles.add(1)

	err := e.Call(context.Background(), wire.CmdOpen, wire.OpenRequest{}, &wire.OpenReply{})
	require.Error(t, err)
	assert.False(t, e.handles.has(1))
}

var assertErr = &fakeNetError{"keepalive failed"}

type fakeNetError struct{ msg string }

func (e *fakeNetError) Error() string { return e.msg }
