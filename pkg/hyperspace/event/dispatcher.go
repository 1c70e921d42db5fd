// Package event implements the Hyperspace event dispatcher: event
// production inside the transaction that caused it, and post-transaction
// notification enqueue and acknowledgement-driven pruning.
package event

import (
	"context"
	"time"

	"github.com/hypertable/hyperspace/pkg/hyperspace/domain"
	"github.com/hypertable/hyperspace/pkg/hyperspace/repo"
	"github.com/hypertable/hyperspace/pkg/store"
)

// Sink is the subset of the Session Manager the dispatcher needs to deliver
// notifications, kept as a narrow interface so event does not import
// session and the two packages can be wired together by the caller.
type Sink interface {
	// Enqueue adds a notification to sessionID's pending queue. Called
	// outside any store transaction, once per recipient handle.
	Enqueue(ctx context.Context, sessionID uint64, n domain.Notification)
}

// Dispatcher produces and delivers events.
type Dispatcher struct {
	store store.Store
	sink  Sink
}

// New constructs a Dispatcher over s, delivering to sink.
func New(s store.Store, sink Sink) *Dispatcher {
	return &Dispatcher{store: s, sink: sink}
}

// Produce allocates an event id, writes the event record and its
// recipients, within txn (the same transaction as the causing mutation).
// recipients is the precomputed set of handle ids interested in kind on
// nodePath; Produce does not itself filter by event mask, since the masks
// live on Handle records the caller has typically already loaded.
func (d *Dispatcher) Produce(txn store.Txn, kind domain.EventKind, nodePath string, recipients []uint64, fill func(*domain.Event)) (*domain.Event, error) {
	id, err := repo.NextCounter(txn, "event")
	if err != nil {
		return nil, err
	}
	ev := &domain.Event{
		ID:         id,
		Kind:       kind,
		NodePath:   nodePath,
		Recipients: recipients,
		CreatedAt:  time.Now(),
	}
	if fill != nil {
		fill(ev)
	}
	if err := repo.PutEvent(txn, ev); err != nil {
		return nil, err
	}
	return ev, nil
}

// RecipientsByMask returns the subset of handles whose event mask includes
// kind's bit. Used by namespace/lockmgr operations to compute a recipient
// set from the handles open on (or, for child events, the parent of) the
// affected node.
func RecipientsByMask(handles []*domain.Handle, kind domain.EventKind) []uint64 {
	bit := kind.Bit()
	var out []uint64
	for _, h := range handles {
		if bit == 0 || h.EventMask.Has(bit) {
			out = append(out, h.ID)
		}
	}
	return out
}

// Deliver runs outside the mutating transaction: for every recipient handle
// of ev, looks up its owning session and hands the notification to the
// sink, persisting a durable notification record in its own transaction per
// recipient so a crash before delivery does not lose it (the event record
// and ref count are already durable from Produce).
func (d *Dispatcher) Deliver(ctx context.Context, ev *domain.Event) error {
	for _, handleID := range ev.Recipients {
		var sessionID uint64
		err := d.store.Update(ctx, func(txn store.Txn) error {
			h, err := repo.GetHandle(txn, handleID)
			if err != nil {
				// Handle already closed before delivery; drop this
				// recipient's reference.
				_, refErr := repo.DecrementEventRefs(txn, ev.ID)
				return refErr
			}
			sessionID = h.SessionID
			return repo.PutNotification(txn, sessionID, ev.ID, handleID)
		})
		if err != nil {
			return err
		}
		if sessionID != 0 {
			d.sink.Enqueue(ctx, sessionID, domain.Notification{HandleID: handleID, Event: *ev})
		}
	}
	return nil
}

// Ack prunes every notification up to and including lastKnownEventID for
// sessionID, decrementing each event's outstanding-reference count.
func (d *Dispatcher) Ack(ctx context.Context, sessionID, lastKnownEventID uint64) error {
	return d.store.Update(ctx, func(txn store.Txn) error {
		pending, err := repo.ListPendingNotifications(txn, sessionID)
		if err != nil {
			return err
		}
		for _, p := range pending {
			if p.EventID > lastKnownEventID {
				continue
			}
			if err := repo.DeleteNotification(txn, p.SessionID, p.EventID, p.HandleID); err != nil {
				return err
			}
			if _, err := repo.DecrementEventRefs(txn, p.EventID); err != nil {
				return err
			}
		}
		return nil
	})
}

// DropAll decrements the outstanding-reference count of every notification
// still pending for sessionID without delivering them, used when a session
// expires with undeliverable notifications.
func (d *Dispatcher) DropAll(ctx context.Context, sessionID uint64) error {
	return d.store.Update(ctx, func(txn store.Txn) error {
		pending, err := repo.ListPendingNotifications(txn, sessionID)
		if err != nil {
			return err
		}
		for _, p := range pending {
			if err := repo.DeleteNotification(txn, p.SessionID, p.EventID, p.HandleID); err != nil {
				return err
			}
			if _, err := repo.DecrementEventRefs(txn, p.EventID); err != nil {
				return err
			}
		}
		return nil
	})
}

// SweepOrphanedRefs is the defensive background cleanup described in the
// event dispatcher's durability design: deletes any event whose outstanding
// count is already zero but whose record was not removed synchronously.
// Correctness never depends on this running; DecrementEventRefs already
// deletes on reaching zero.
func (d *Dispatcher) SweepOrphanedRefs(ctx context.Context, eventIDs []uint64) error {
	return d.store.Update(ctx, func(txn store.Txn) error {
		for _, id := range eventIDs {
			count, err := repo.EventRefCount(txn, id)
			if err != nil {
				return err
			}
			if count == 0 {
				if _, err := repo.DecrementEventRefs(txn, id); err != nil {
					return err
				}
			}
		}
		return nil
	})
}
