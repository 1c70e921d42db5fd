package lockmgr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hypertable/hyperspace/pkg/hyperspace/domain"
)

func newNode() *domain.Node {
	return &domain.Node{Path: "/l"}
}

func TestTryAcquire_UnlockedGrantsImmediately(t *testing.T) {
	n := newNode()
	outcome, suppress := TryAcquire(n, 1, domain.LockExclusive, false)
	require.Equal(t, Granted, outcome)
	assert.False(t, suppress)
	assert.Equal(t, uint64(1), n.LockGeneration)
	assert.Equal(t, []uint64{1}, n.Holders)
}

func TestTryAcquire_ExclusiveExcludesEverything(t *testing.T) {
	n := newNode()
	_, _ = TryAcquire(n, 1, domain.LockExclusive, false)

	outcome, _ := TryAcquire(n, 2, domain.LockShared, true)
	assert.Equal(t, Busy, outcome)

	outcome, _ = TryAcquire(n, 2, domain.LockExclusive, false)
	assert.Equal(t, Pending, outcome)
	assert.Len(t, n.Waiters, 1)
}

func TestTryAcquire_SecondSharedSuppressesAcquiredEvent(t *testing.T) {
	n := newNode()
	_, suppress1 := TryAcquire(n, 1, domain.LockShared, false)
	assert.False(t, suppress1)

	outcome, suppress2 := TryAcquire(n, 2, domain.LockShared, false)
	require.Equal(t, Granted, outcome)
	assert.True(t, suppress2)
	assert.ElementsMatch(t, []uint64{1, 2}, n.Holders)
}

func TestTryAcquire_SharedBehindQueuedWriterWaits(t *testing.T) {
	n := newNode()
	_, _ = TryAcquire(n, 1, domain.LockShared, false) // holder
	_, _ = TryAcquire(n, 2, domain.LockExclusive, false) // queued writer

	outcome, _ := TryAcquire(n, 3, domain.LockShared, false)
	assert.Equal(t, Pending, outcome)
	require.Len(t, n.Waiters, 2)
	assert.Equal(t, uint64(2), n.Waiters[0].HandleID)
	assert.Equal(t, uint64(3), n.Waiters[1].HandleID)
}

func TestRelease_IsIdempotent(t *testing.T) {
	n := newNode()
	_, _ = TryAcquire(n, 1, domain.LockExclusive, false)

	wasHolder, wasLast := Release(n, 1)
	assert.True(t, wasHolder)
	assert.True(t, wasLast)
	assert.Equal(t, domain.LockNone, n.LockMode)

	wasHolder, _ = Release(n, 1)
	assert.False(t, wasHolder)
}

func TestGrantPending_FairnessExclusiveBeforeLaterShared(t *testing.T) {
	n := newNode()
	_, _ = TryAcquire(n, 1, domain.LockExclusive, false)
	_, _ = TryAcquire(n, 2, domain.LockExclusive, false) // waiter: exclusive
	_, _ = TryAcquire(n, 3, domain.LockShared, false)    // waiter: shared, arrives later

	Release(n, 1)
	granted, gen := GrantPending(n)

	require.Len(t, granted, 1)
	assert.Equal(t, uint64(2), granted[0].HandleID)
	assert.Equal(t, uint64(2), gen)
	assert.Equal(t, domain.LockExclusive, n.LockMode)
	assert.Len(t, n.Waiters, 1) // handle 3 still waiting
}

func TestGrantPending_GrantsContiguousSharedPrefix(t *testing.T) {
	n := newNode()
	_, _ = TryAcquire(n, 1, domain.LockExclusive, false)
	_, _ = TryAcquire(n, 2, domain.LockShared, false)
	_, _ = TryAcquire(n, 3, domain.LockShared, false)
	_, _ = TryAcquire(n, 4, domain.LockExclusive, false)
	_, _ = TryAcquire(n, 5, domain.LockShared, false) // behind the exclusive waiter

	Release(n, 1)
	granted, _ := GrantPending(n)

	require.Len(t, granted, 2)
	assert.Equal(t, uint64(2), granted[0].HandleID)
	assert.Equal(t, uint64(3), granted[1].HandleID)
	require.Len(t, n.Waiters, 2)
	assert.Equal(t, uint64(4), n.Waiters[0].HandleID)
}

func TestCancelPending_RemovesQueuedRequest(t *testing.T) {
	n := newNode()
	_, _ = TryAcquire(n, 1, domain.LockExclusive, false)
	_, _ = TryAcquire(n, 2, domain.LockExclusive, false)

	found := CancelPending(n, 2)
	assert.True(t, found)
	assert.Empty(t, n.Waiters)

	assert.False(t, CancelPending(n, 99))
}
