// Package session implements the Hyperspace Session Manager: session
// lifecycle, lease maintenance, the suspension-credit rule, and the per-tick
// sweep that expires overdue sessions and hands their handles off to the
// namespace store for destruction.
package session

import (
	"container/heap"
	"context"
	"sync"
	"time"

	"github.com/hypertable/hyperspace/pkg/hserrors"
	"github.com/hypertable/hyperspace/pkg/hyperspace/domain"
	"github.com/hypertable/hyperspace/pkg/hyperspace/event"
	"github.com/hypertable/hyperspace/pkg/hyperspace/namespace"
	"github.com/hypertable/hyperspace/pkg/hyperspace/repo"
	"github.com/hypertable/hyperspace/pkg/store"
)

// suspensionThreshold is the wall-clock gap between ticks beyond which the
// server assumes it was itself suspended (stop-the-world GC, host pause)
// rather than merely running a hair late, and grants every live session a
// one-off lease extension equal to the gap.
const suspensionThreshold = 5 * time.Second

// Metrics receives session lifecycle counters. A nil Metrics is valid; all
// methods are no-ops in that case.
type Metrics interface {
	SessionCreated()
	SessionExpired()
	SetLiveSessions(n int)
}

type noopMetrics struct{}

func (noopMetrics) SessionCreated()        {}
func (noopMetrics) SessionExpired()        {}
func (noopMetrics) SetLiveSessions(int)    {}

type notificationQueue struct {
	mu      sync.Mutex
	pending []domain.Notification
}

// Manager tracks every live session's lease deadline and pending
// notification queue.
type Manager struct {
	store         store.Store
	namespace     *namespace.Service
	dispatcher    *event.Dispatcher
	leaseInterval time.Duration
	metrics       Metrics

	mu       sync.Mutex
	entries  map[uint64]*deadlineEntry
	heapData deadlineHeap
	queues   map[uint64]*notificationQueue
	lastTick time.Time
}

// NewManager constructs a Manager. The event dispatcher must be attached
// with SetDispatcher before CreateSession/Tick are used, since the
// dispatcher and the session manager reference each other (the dispatcher
// delivers into the manager's queues; the manager prunes through the
// dispatcher on expiry and acknowledgement).
func NewManager(s store.Store, ns *namespace.Service, leaseInterval time.Duration, metrics Metrics) *Manager {
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &Manager{
		store:         s,
		namespace:     ns,
		leaseInterval: leaseInterval,
		metrics:       metrics,
		entries:       make(map[uint64]*deadlineEntry),
		queues:        make(map[uint64]*notificationQueue),
		lastTick:      time.Now(),
	}
}

// SetDispatcher attaches the event dispatcher this manager prunes
// notifications through. Must be called once before use.
func (m *Manager) SetDispatcher(d *event.Dispatcher) {
	m.dispatcher = d
}

// SetNamespace attaches the namespace service used to destroy an expiring
// session's handles. Must be called once before use.
func (m *Manager) SetNamespace(ns *namespace.Service) {
	m.namespace = ns
}

// CreateSession allocates a fresh session id, records addr, and sets the
// lease deadline to now + lease interval.
func (m *Manager) CreateSession(ctx context.Context, addr string) (uint64, error) {
	now := time.Now()
	var id uint64
	err := m.store.Update(ctx, func(txn store.Txn) error {
		var err error
		id, err = repo.NextCounter(txn, "session")
		if err != nil {
			return err
		}
		s := &domain.Session{
			ID:            id,
			Addr:          addr,
			State:         domain.SessionInitialising,
			LeaseDeadline: now.Add(m.leaseInterval),
			CreatedAt:     now,
		}
		return repo.PutSession(txn, s)
	})
	if err != nil {
		return 0, err
	}

	m.mu.Lock()
	e := &deadlineEntry{sessionID: id, deadline: now.Add(m.leaseInterval)}
	m.entries[id] = e
	heap.Push(&m.heapData, e)
	m.queues[id] = &notificationQueue{}
	live := len(m.entries)
	m.mu.Unlock()

	m.metrics.SessionCreated()
	m.metrics.SetLiveSessions(live)
	return id, nil
}

// RenewLease extends sessionID's deadline by the lease interval if it has
// not yet passed; otherwise it marks the session expired and returns
// expired-session.
func (m *Manager) RenewLease(ctx context.Context, sessionID uint64) error {
	now := time.Now()
	var expired bool
	err := m.store.Update(ctx, func(txn store.Txn) error {
		s, err := repo.GetSession(txn, sessionID)
		if err != nil {
			return err
		}
		if s.State == domain.SessionExpired || now.After(s.LeaseDeadline) {
			s.State = domain.SessionExpired
			expired = true
			return repo.PutSession(txn, s)
		}
		s.LeaseDeadline = now.Add(m.leaseInterval)
		if s.State == domain.SessionInitialising {
			s.State = domain.SessionSafe
		}
		return repo.PutSession(txn, s)
	})
	if err != nil {
		return err
	}
	if expired {
		m.forgetSession(sessionID)
		return hserrors.NewExpiredSessionError(sessionID)
	}

	m.mu.Lock()
	if e, ok := m.entries[sessionID]; ok {
		e.deadline = now.Add(m.leaseInterval)
		heap.Fix(&m.heapData, e.index)
	}
	m.mu.Unlock()
	return nil
}

// InitializeSession records the human-readable name set by the client
// handshake. Idempotent.
func (m *Manager) InitializeSession(ctx context.Context, sessionID uint64, name string) error {
	return m.store.Update(ctx, func(txn store.Txn) error {
		s, err := repo.GetSession(txn, sessionID)
		if err != nil {
			return err
		}
		s.Name = name
		if s.State == domain.SessionInitialising {
			s.State = domain.SessionSafe
		}
		return repo.PutSession(txn, s)
	})
}

// Validate reports whether sessionID currently names a live session,
// without renewing its lease. Used by request dispatch to reject requests
// from a session the server no longer considers live.
func (m *Manager) Validate(ctx context.Context, sessionID uint64) error {
	var live bool
	err := m.store.View(ctx, func(txn store.Txn) error {
		s, err := repo.GetSession(txn, sessionID)
		if err != nil {
			return nil
		}
		live = s.State != domain.SessionExpired && time.Now().Before(s.LeaseDeadline)
		return nil
	})
	if err != nil {
		return err
	}
	if !live {
		return hserrors.NewExpiredSessionError(sessionID)
	}
	return nil
}

// DestroySession forces expiry regardless of deadline. The keepalive
// listener calls it for a datagram carrying the shutdown flag; closing the
// TCP request connection does not call it.
func (m *Manager) DestroySession(ctx context.Context, sessionID uint64) error {
	return m.expireSession(ctx, sessionID)
}

// Enqueue implements event.Sink: it adds a notification to sessionID's
// in-memory pending queue, guarded by that session's own mutex.
func (m *Manager) Enqueue(_ context.Context, sessionID uint64, n domain.Notification) {
	m.mu.Lock()
	q, ok := m.queues[sessionID]
	if !ok {
		q = &notificationQueue{}
		m.queues[sessionID] = q
	}
	m.mu.Unlock()

	q.mu.Lock()
	q.pending = append(q.pending, n)
	q.mu.Unlock()
}

// DrainNotifications returns and clears sessionID's pending notifications,
// for inclusion in the next outgoing keepalive reply.
func (m *Manager) DrainNotifications(sessionID uint64) []domain.Notification {
	m.mu.Lock()
	q, ok := m.queues[sessionID]
	m.mu.Unlock()
	if !ok {
		return nil
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.pending
	q.pending = nil
	return out
}

// Ack prunes all notifications up to lastKnownEventID for sessionID from
// durable storage; the in-memory queue was already drained when sent.
func (m *Manager) Ack(ctx context.Context, sessionID, lastKnownEventID uint64) error {
	return m.dispatcher.Ack(ctx, sessionID, lastKnownEventID)
}

func (m *Manager) forgetSession(sessionID uint64) {
	m.mu.Lock()
	if e, ok := m.entries[sessionID]; ok {
		heap.Remove(&m.heapData, e.index)
		delete(m.entries, sessionID)
	}
	delete(m.queues, sessionID)
	live := len(m.entries)
	m.mu.Unlock()
	m.metrics.SetLiveSessions(live)
}

// expireSession marks sessionID expired in the store, destroys its handles,
// drops undeliverable notifications, and removes it from the in-memory
// tracking structures.
func (m *Manager) expireSession(ctx context.Context, sessionID uint64) error {
	var handleIDs []uint64
	err := m.store.Update(ctx, func(txn store.Txn) error {
		s, err := repo.GetSession(txn, sessionID)
		if err != nil {
			return nil // already gone
		}
		s.State = domain.SessionExpired
		if err := repo.PutSession(txn, s); err != nil {
			return err
		}
		handleIDs, err = repo.ListHandlesBySession(txn, sessionID)
		return err
	})
	if err != nil {
		return err
	}

	for _, id := range handleIDs {
		var h *domain.Handle
		verr := m.store.View(ctx, func(txn store.Txn) error {
			var err error
			h, err = repo.GetHandle(txn, id)
			return err
		})
		if verr != nil {
			continue
		}
		if err := m.namespace.DestroyHandle(ctx, h); err != nil {
			return err
		}
	}

	if err := m.dispatcher.DropAll(ctx, sessionID); err != nil {
		return err
	}

	if err := m.store.Update(ctx, func(txn store.Txn) error {
		return repo.DeleteSession(txn, sessionID)
	}); err != nil {
		return err
	}

	m.forgetSession(sessionID)
	m.metrics.SessionExpired()
	return nil
}

// Tick is invoked at a fixed cadence (hyperspaceserver's lease ticker runs
// it once a second).
// It first checks whether the gap since the previous tick indicates the
// server process itself was suspended; if so it extends every live
// session's deadline by that gap before checking for expiry, so a paused
// host does not cause mass false expiry on resume. It then expires every
// session whose deadline has passed.
func (m *Manager) Tick(ctx context.Context) error {
	now := time.Now()

	m.mu.Lock()
	gap := now.Sub(m.lastTick)
	m.lastTick = now
	if gap > suspensionThreshold {
		for _, e := range m.entries {
			e.deadline = e.deadline.Add(gap)
		}
		heap.Init(&m.heapData)
	}

	var overdue []uint64
	for m.heapData.Len() > 0 {
		top := m.heapData[0]
		if now.Before(top.deadline) {
			break
		}
		overdue = append(overdue, top.sessionID)
		heap.Pop(&m.heapData)
		delete(m.entries, top.sessionID)
	}
	m.mu.Unlock()

	for _, id := range overdue {
		if err := m.expireSession(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

// LiveCount returns the number of sessions currently tracked as live.
func (m *Manager) LiveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}
