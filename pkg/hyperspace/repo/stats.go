package repo

import (
	"encoding/json"

	"github.com/hypertable/hyperspace/pkg/hyperspace/domain"
	"github.com/hypertable/hyperspace/pkg/store"
)

// Stats is a point-in-time snapshot of live server state, assembled for the
// status RPC. It is produced by full scans of the session, handle, node and
// notification keys and is not meant for a hot path.
type Stats struct {
	Sessions             int64
	OpenHandles          int64
	HeldLocks            int64
	PendingWaiters       int64
	PendingNotifications int64
}

// CollectStats scans the primary tables to build a Stats snapshot.
func CollectStats(txn store.Txn) (Stats, error) {
	var s Stats

	if err := txn.Iterate([]byte(prefixSession), func(store.Item) bool {
		s.Sessions++
		return true
	}); err != nil {
		return s, err
	}

	if err := txn.Iterate([]byte(prefixHandle), func(store.Item) bool {
		s.OpenHandles++
		return true
	}); err != nil {
		return s, err
	}

	if err := txn.Iterate([]byte(prefixNode), func(it store.Item) bool {
		var n domain.Node
		if err := json.Unmarshal(it.Value, &n); err != nil {
			return true
		}
		if n.LockMode != domain.LockNone {
			s.HeldLocks++
		}
		s.PendingWaiters += int64(len(n.Waiters))
		return true
	}); err != nil {
		return s, err
	}

	if err := txn.Iterate([]byte(prefixNotif), func(store.Item) bool {
		s.PendingNotifications++
		return true
	}); err != nil {
		return s, err
	}

	return s, nil
}
