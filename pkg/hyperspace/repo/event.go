package repo

import (
	"encoding/json"

	"github.com/hypertable/hyperspace/pkg/hserrors"
	"github.com/hypertable/hyperspace/pkg/hyperspace/domain"
	"github.com/hypertable/hyperspace/pkg/store"
)

// PutEvent persists an event record and its outstanding-recipient count,
// both inside the caller's transaction, matching the production sequence in
// the event dispatcher design: allocate id, write record, compute
// recipients, persist {event_id -> handles}.
func PutEvent(txn store.Txn, ev *domain.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return hserrors.NewStoreError("encode event: " + err.Error())
	}
	if err := txn.Set(keyEvent(ev.ID), data); err != nil {
		return err
	}
	return txn.Set(keyEventRefs(ev.ID), u64(uint64(len(ev.Recipients))))
}

// GetEvent returns the event with the given id.
func GetEvent(txn store.Txn, id uint64) (*domain.Event, error) {
	val, err := txn.Get(keyEvent(id))
	if err != nil {
		return nil, err
	}
	var ev domain.Event
	if err := json.Unmarshal(val, &ev); err != nil {
		return nil, hserrors.NewStoreError("decode event: " + err.Error())
	}
	return &ev, nil
}

// DecrementEventRefs decrements the outstanding-recipient count for eventID
// by one and deletes the event and its count once it reaches zero. Returns
// the count after decrementing.
func DecrementEventRefs(txn store.Txn, eventID uint64) (uint64, error) {
	val, err := txn.Get(keyEventRefs(eventID))
	if err == store.ErrNotFound {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	count := parseU64(val)
	if count > 0 {
		count--
	}
	if count == 0 {
		if err := txn.Delete(keyEventRefs(eventID)); err != nil {
			return 0, err
		}
		if err := txn.Delete(keyEvent(eventID)); err != nil {
			return 0, err
		}
		return 0, nil
	}
	return count, txn.Set(keyEventRefs(eventID), u64(count))
}

// EventRefCount returns the current outstanding-recipient count for
// eventID, or 0 if the event has already been fully acknowledged and
// garbage collected.
func EventRefCount(txn store.Txn, eventID uint64) (uint64, error) {
	val, err := txn.Get(keyEventRefs(eventID))
	if err == store.ErrNotFound {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return parseU64(val), nil
}
