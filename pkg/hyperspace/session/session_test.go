package session_test

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
	"github.com/hypertable/hyperspace/pkg/hyperspace/session"
	badgerstore "github.com/hypertable/hyperspace/pkg/store/badger"
)

func newTestManager(t *testing.T, lease time.Duration) *session.Manager {
	t.Helper()
	s, err := badgerstore.Open(badgerstore.Options{InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	require.NoError(t, repo.EnsureRoot(context.Background(), s))

	mgr := session.NewManager(s, nil, lease, nil)
	disp := event.New(s, mgr)
	mgr.SetDispatcher(disp)
	ns := namespace.New(s, disp)
	mgr.SetNamespace(ns)
	return mgr
}

func TestCreateAndRenewSession(t *testing.T) {
	ctx := context.Background()
	mgr := newTestManager(t, 50*time.Millisecond)

	id, err := mgr.CreateSession(ctx, "127.0.0.1:1234")
	require.NoError(t, err)
	assert.NotZero(t, id)
	assert.Equal(t, 1, mgr.LiveCount())

	require.NoError(t, mgr.RenewLease(ctx, id))
}

func TestRenewAfterDeadlinePassedReturnsExpired(t *testing.T) {
	ctx := context.Background()
	mgr := newTestManager(t, 10*time.Millisecond)

	id, err := mgr.CreateSession(ctx, "127.0.0.1:1234")
	require.NoError(t, err)

	time.Sleep(30 * time.Millisecond)

	err = mgr.RenewLease(ctx, id)
	require.Error(t, err)
	assert.Equal(t, hserrors.ExpiredSession, hserrors.CodeOf(err))
}

func TestTickExpiresOverdueSessions(t *testing.T) {
	ctx := context.Background()
	mgr := newTestManager(t, 10*time.Millisecond)

	id, err := mgr.CreateSession(ctx, "127.0.0.1:1234")
	require.NoError(t, err)

	time.Sleep(30 * time.Millisecond)
	require.NoError(t, mgr.Tick(ctx))

	assert.Equal(t, 0, mgr.LiveCount())
	err = mgr.RenewLease(ctx, id)
	assert.Error(t, err)
}

func TestDestroySessionForcesExpiry(t *testing.T) {
	ctx := context.Background()
	mgr := newTestManager(t, time.Hour)

	id, err := mgr.CreateSession(ctx, "127.0.0.1:1234")
	require.NoError(t, err)

	require.NoError(t, mgr.DestroySession(ctx, id))
	assert.Equal(t, 0, mgr.LiveCount())
}

func TestEnqueueAndDrainNotifications(t *testing.T) {
	ctx := context.Background()
	mgr := newTestManager(t, time.Hour)

	id, err := mgr.CreateSession(ctx, "127.0.0.1:1234")
	require.NoError(t, err)

	mgr.Enqueue(ctx, id, domain.Notification{HandleID: 7, Event: domain.Event{ID: 1, Kind: domain.EventAttrSet}})
	notifs := mgr.DrainNotifications(id)
	require.Len(t, notifs, 1)
	assert.Equal(t, uint64(7), notifs[0].HandleID)

	assert.Empty(t, mgr.DrainNotifications(id))
}
