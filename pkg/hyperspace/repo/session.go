package repo

import (
	"encoding/json"

	"github.com/hypertable/hyperspace/pkg/hserrors"
	"github.com/hypertable/hyperspace/pkg/hyperspace/domain"
	"github.com/hypertable/hyperspace/pkg/store"
)

// GetSession returns the session with the given id.
func GetSession(txn store.Txn, id uint64) (*domain.Session, error) {
	val, err := txn.Get(keySession(id))
	if err == store.ErrNotFound {
		return nil, hserrors.NewExpiredSessionError(id)
	}
	if err != nil {
		return nil, err
	}
	var s domain.Session
	if err := json.Unmarshal(val, &s); err != nil {
		return nil, hserrors.NewStoreError("decode session: " + err.Error())
	}
	return &s, nil
}

// PutSession persists s.
func PutSession(txn store.Txn, s *domain.Session) error {
	data, err := json.Marshal(s)
	if err != nil {
		return hserrors.NewStoreError("encode session: " + err.Error())
	}
	return txn.Set(keySession(s.ID), data)
}

// DeleteSession removes a session record entirely. Used once its expiry has
// been fully processed (handles destroyed, notifications dropped).
func DeleteSession(txn store.Txn, id uint64) error {
	return txn.Delete(keySession(id))
}

// ListSessions returns every persisted session, live or expired.
func ListSessions(txn store.Txn) ([]*domain.Session, error) {
	var sessions []*domain.Session
	err := txn.Iterate([]byte(prefixSession), func(it store.Item) bool {
		var s domain.Session
		if jsonErr := json.Unmarshal(it.Value, &s); jsonErr == nil {
			sessions = append(sessions, &s)
		}
		return true
	})
	return sessions, err
}
