package repo

import (
	"github.com/hypertable/hyperspace/pkg/store"
)

// PutNotification durably records that handleID on sessionID is owed
// delivery of eventID, so a restart between event production and client
// acknowledgement does not lose it. The event dispatcher writes this
// outside the mutating transaction (step 5 of event production), in its own
// transaction per recipient.
func PutNotification(txn store.Txn, sessionID, eventID, handleID uint64) error {
	return txn.Set(keyNotif(sessionID, eventID, handleID), u64(handleID))
}

// DeleteNotification removes a pending notification once it has been
// delivered and acknowledged.
func DeleteNotification(txn store.Txn, sessionID, eventID, handleID uint64) error {
	return txn.Delete(keyNotif(sessionID, eventID, handleID))
}

// PendingNotification is a durable notification record read back from the
// store, e.g. during session-manager startup reconciliation.
type PendingNotification struct {
	SessionID uint64
	EventID   uint64
	HandleID  uint64
}

// ListPendingNotifications returns every durable notification queued for
// sessionID, in event-id order (the key encoding sorts by event id within a
// session).
func ListPendingNotifications(txn store.Txn, sessionID uint64) ([]PendingNotification, error) {
	var out []PendingNotification
	err := txn.Iterate(keyNotifPrefix(sessionID), func(it store.Item) bool {
		// key = notif: sessionID(8) eventID(8) handleID(8)
		rest := it.Key[len(prefixNotif)+8:]
		eventID := parseU64(rest[:8])
		handleID := parseU64(rest[8:16])
		out = append(out, PendingNotification{SessionID: sessionID, EventID: eventID, HandleID: handleID})
		return true
	})
	return out, err
}
