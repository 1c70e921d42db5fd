// Package client implements the Hyperspace Client Keepalive Engine: the
// state machine every client runs to maintain its session lease, exchange
// keepalive datagrams, and process notifications delivered on the reply.
package client

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hypertable/hyperspace/pkg/wire"
)

// Config holds the engine's tunables, matching the server's configured
// lease interval, keepalive cadence, and grace period.
type Config struct {
	ClientName      string
	KeepAliveInterval time.Duration
	LeaseInterval     time.Duration
	GracePeriod       time.Duration

	// BadNotificationGrace bounds how long the engine tolerates a
	// persistent notification for an unknown handle before treating it as
	// a fatal server-side bookkeeping bug. Preserved from the source
	// behavior flagged for review; see DESIGN.md.
	BadNotificationGrace time.Duration

	// Reconnect enables re-entry into disconnected -> safe with a fresh
	// session after grace exhaustion, instead of terminal expiry.
	Reconnect bool
}

// DefaultConfig returns tunables matching the server's documented defaults.
func DefaultConfig(name string) Config {
	return Config{
		ClientName:           name,
		KeepAliveInterval:    time.Second,
		LeaseInterval:        12 * time.Second,
		GracePeriod:          60 * time.Second,
		BadNotificationGrace: 30 * time.Second,
	}
}

// Engine runs the client-side session state machine. The datagram
// keepalive, the tick timer, and the TCP request channel all dispatch on
// the same goroutine that calls Run, matching the source's single
// cooperative reactor thread; a single mutex guards the handful of fields
// a concurrent synchronous API call (open/lock/...) needs to read.
type Engine struct {
	cfg       Config
	transport Transport
	callbacks Callbacks
	handles   *handleTable

	// OnFatal is invoked instead of crashing the process outright when a
	// bad notification persists past BadNotificationGrace, so embedders
	// can choose their own termination path. Defaults to panic.
	OnFatal func(reason string)

	mu               sync.Mutex
	state            State
	sessionID        uint64
	lastKnownEventID uint64
	jeopardyDeadline time.Time
	jeopardyStarted  time.Time
	badHandleSince   map[uint64]time.Time
}

// New constructs an Engine. callbacks must not be nil; pass NoopCallbacks{}
// if the embedder does not care about transitions.
func New(cfg Config, transport Transport, callbacks Callbacks) *Engine {
	if callbacks == nil {
		callbacks = NoopCallbacks{}
	}
	return &Engine{
		cfg:            cfg,
		transport:      transport,
		callbacks:      callbacks,
		handles:        newHandleTable(),
		state:          StateDisconnected,
		badHandleSince: make(map[uint64]time.Time),
		OnFatal:        func(reason string) { panic("hyperspace: " + reason) },
	}
}

// State returns the engine's current state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// SessionID returns the engine's assigned session id, or 0 before the
// first successful handshake.
func (e *Engine) SessionID() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sessionID
}

// ThreadGroup derives a thread-group id from the session id alone, so it
// survives a reconnect that reuses the session (unlike the source's
// socket-fd-derived groups).
func (e *Engine) ThreadGroup() uint32 {
	return uint32(e.SessionID())
}

func (e *Engine) setState(s State) {
	e.mu.Lock()
	e.state = s
	e.mu.Unlock()
}

// RegisterHandle records a handle the application has successfully opened,
// so the engine will accept notifications addressed to it.
func (e *Engine) RegisterHandle(handle uint64) { e.handles.add(handle) }

// ForgetHandle drops a handle the application has closed.
func (e *Engine) ForgetHandle(handle uint64) { e.handles.remove(handle) }

// Start performs the initial session-id assignment datagram and the
// handshake, and transitions to safe on success.
func (e *Engine) Start(ctx context.Context) error {
	reply, err := e.transport.KeepAlive(ctx, wire.KeepAliveRequest{SessionID: 0})
	if err != nil {
		return fmt.Errorf("client: initial keepalive: %w", err)
	}

	e.mu.Lock()
	e.sessionID = uint64(reply.SessionID)
	now := time.Now()
	e.jeopardyDeadline = now.Add(e.cfg.LeaseInterval)
	e.mu.Unlock()

	if _, err := e.transport.Handshake(ctx, wire.HandshakeRequest{SessionID: reply.SessionID, Name: e.cfg.ClientName}); err != nil {
		return fmt.Errorf("client: handshake: %w", err)
	}

	e.setState(StateSafe)
	return nil
}

// Run drives the keepalive cadence until ctx is cancelled or the session
// terminally expires without reconnect enabled.
func (e *Engine) Run(ctx context.Context) error {
	if err := e.Start(ctx); err != nil {
		return err
	}

	ticker := time.NewTicker(e.cfg.KeepAliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			e.tick(ctx)
			if e.State() == StateExpired {
				return nil
			}
		}
	}
}

// tick sends one keepalive and reacts to its outcome. Run calls it on every
// ticker fire; tests call it directly to drive the state machine one step
// at a time against a fake transport. When the engine holds no session id
// (after a reconnect-mode expiry), tick calls Start instead, which obtains a
// fresh session, repeats the handshake and returns the engine to safe.
func (e *Engine) tick(ctx context.Context) {
	e.mu.Lock()
	sid := int64(e.sessionID)
	lastKnown := int64(e.lastKnownEventID)
	e.mu.Unlock()

	if sid == 0 {
		_ = e.Start(ctx)
		return
	}

	now := time.Now()
	reply, err := e.transport.KeepAlive(ctx, wire.KeepAliveRequest{SessionID: sid, LastKnownEventID: lastKnown})
	if err != nil {
		e.onMissedReply(now)
		return
	}
	if reply.Error != 0 {
		e.transitionToExpired()
		return
	}
	e.onReply(ctx, now, reply)
}

func (e *Engine) onMissedReply(now time.Time) {
	e.mu.Lock()
	deadline := e.jeopardyDeadline
	state := e.state
	e.mu.Unlock()

	if now.Before(deadline) {
		return
	}

	if state == StateSafe {
		e.mu.Lock()
		e.state = StateJeopardy
		e.jeopardyStarted = now
		e.mu.Unlock()
		e.callbacks.Jeopardy()
		return
	}

	if state == StateJeopardy && now.Sub(e.jeopardyStartedSafe()) > e.cfg.GracePeriod {
		e.transitionToExpired()
	}
}

func (e *Engine) jeopardyStartedSafe() time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.jeopardyStarted
}

func (e *Engine) transitionToExpired() {
	if e.cfg.Reconnect {
		e.handles.clear()
		e.mu.Lock()
		e.state = StateDisconnected
		e.sessionID = 0
		e.lastKnownEventID = 0
		e.mu.Unlock()
		e.callbacks.Expired()
		return
	}
	e.setState(StateExpired)
	e.callbacks.Expired()
}

func (e *Engine) onReply(ctx context.Context, now time.Time, reply wire.KeepAliveReply) {
	e.mu.Lock()
	wasJeopardy := e.state == StateJeopardy
	e.state = StateSafe
	e.jeopardyDeadline = now.Add(e.cfg.LeaseInterval)
	e.mu.Unlock()

	if wasJeopardy {
		e.callbacks.Safe()
	}

	if len(reply.Notifications) > 0 && e.processNotifications(now, reply.Notifications) {
		e.sendAck(ctx)
	}
}

// sendAck immediately issues a fresh keepalive carrying the newly advanced
// last_known_event_id, rather than waiting for the next ticker fire, so the
// server can prune the notifications just processed without an extra
// keepalive interval of delay. If the ack's own reply carries further
// notifications, it recurses to drain them the same way.
func (e *Engine) sendAck(ctx context.Context) {
	e.mu.Lock()
	sid := int64(e.sessionID)
	lastKnown := int64(e.lastKnownEventID)
	e.mu.Unlock()

	reply, err := e.transport.KeepAlive(ctx, wire.KeepAliveRequest{SessionID: sid, LastKnownEventID: lastKnown})
	if err != nil {
		return
	}
	if reply.Error != 0 {
		e.transitionToExpired()
		return
	}

	now := time.Now()
	e.mu.Lock()
	e.jeopardyDeadline = now.Add(e.cfg.LeaseInterval)
	e.mu.Unlock()

	if len(reply.Notifications) > 0 && e.processNotifications(now, reply.Notifications) {
		e.sendAck(ctx)
	}
}

// processNotifications implements the notification-processing rules: an
// unknown handle suppresses the rest of the batch and, if persistent past
// the configured grace period, is treated as a fatal server bug; known
// handles are delivered unless already seen, and last_known_event_id
// advances to the maximum event id observed. It reports whether any
// notification was newly dispatched to a callback, so the caller knows
// whether an immediate acknowledging keepalive is owed.
func (e *Engine) processNotifications(now time.Time, records []wire.NotificationRecord) (processed bool) {
	for _, rec := range records {
		handle := uint64(rec.Handle)
		if !e.handles.has(handle) {
			e.mu.Lock()
			since, seen := e.badHandleSince[handle]
			if !seen {
				e.badHandleSince[handle] = now
				since = now
			}
			e.mu.Unlock()
			if now.Sub(since) > e.cfg.BadNotificationGrace {
				e.OnFatal(fmt.Sprintf("persistent notification for unknown handle %d", handle))
			}
			return processed
		}

		e.mu.Lock()
		delete(e.badHandleSince, handle)
		e.mu.Unlock()

		eventID := uint64(rec.EventID)
		e.mu.Lock()
		alreadySeen := eventID <= e.lastKnownEventID
		if eventID > e.lastKnownEventID {
			e.lastKnownEventID = eventID
		}
		e.mu.Unlock()
		if alreadySeen {
			continue
		}

		e.callbacks.Notify(handle, rec.Kind, NotificationPayload{
			Name:       rec.Name,
			Mode:       rec.Mode,
			Generation: uint64(rec.Generation),
		})
		processed = true
	}
	return processed
}

// Call issues an application request (open, close, mkdir, attr_*, lock,
// release, readdir) on the TCP control channel. On a transport-level
// failure it applies the documented reconnect policy: the local handle
// table is cleared before the handshake is reissued, so any locks held
// under the old connection are considered lost even though the session id
// is reused.
func (e *Engine) Call(ctx context.Context, cmd wire.Command, req, resp interface{}) error {
	err := e.transport.Call(ctx, cmd, e.ThreadGroup(), req, resp)
	if err == nil {
		return nil
	}

	e.handles.clear()
	sid := e.SessionID()
	if _, herr := e.transport.Handshake(ctx, wire.HandshakeRequest{SessionID: int64(sid), Name: e.cfg.ClientName}); herr != nil {
		return fmt.Errorf("client: reconnect handshake failed: %w (original error: %v)", herr, err)
	}
	return fmt.Errorf("client: request failed, reconnected: %w", err)
}

// Close releases the transport.
func (e *Engine) Close() error {
	return e.transport.Close()
}
