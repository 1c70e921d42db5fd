package repo

import (
	"encoding/json"

	"github.com/hypertable/hyperspace/pkg/hserrors"
	"github.com/hypertable/hyperspace/pkg/hyperspace/domain"
	"github.com/hypertable/hyperspace/pkg/store"
)

// GetHandle returns the handle with the given id.
func GetHandle(txn store.Txn, id uint64) (*domain.Handle, error) {
	val, err := txn.Get(keyHandle(id))
	if err == store.ErrNotFound {
		return nil, hserrors.NewInvalidHandleError(id)
	}
	if err != nil {
		return nil, err
	}
	var h domain.Handle
	if err := json.Unmarshal(val, &h); err != nil {
		return nil, hserrors.NewStoreError("decode handle: " + err.Error())
	}
	return &h, nil
}

// PutHandle persists h.
func PutHandle(txn store.Txn, h *domain.Handle) error {
	data, err := json.Marshal(h)
	if err != nil {
		return hserrors.NewStoreError("encode handle: " + err.Error())
	}
	return txn.Set(keyHandle(h.ID), data)
}

// CreateHandle persists a new handle and its session/node index entries.
func CreateHandle(txn store.Txn, h *domain.Handle) error {
	if err := PutHandle(txn, h); err != nil {
		return err
	}
	if err := txn.Set(keyHandleBySession(h.SessionID, h.ID), nil); err != nil {
		return err
	}
	return txn.Set(keyHandleByNode(h.Path, h.ID), nil)
}

// DeleteHandle removes a handle record and its index entries.
func DeleteHandle(txn store.Txn, h *domain.Handle) error {
	if err := txn.Delete(keyHandle(h.ID)); err != nil {
		return err
	}
	if err := txn.Delete(keyHandleBySession(h.SessionID, h.ID)); err != nil {
		return err
	}
	return txn.Delete(keyHandleByNode(h.Path, h.ID))
}

// ListHandlesBySession returns the ids of every handle open under sessionID.
func ListHandlesBySession(txn store.Txn, sessionID uint64) ([]uint64, error) {
	var ids []uint64
	err := txn.Iterate(keyHandleBySessionPrefix(sessionID), func(it store.Item) bool {
		ids = append(ids, parseU64(it.Key[len(it.Key)-8:]))
		return true
	})
	return ids, err
}

// ListHandlesByNode returns the ids of every handle open on path.
func ListHandlesByNode(txn store.Txn, path string) ([]uint64, error) {
	var ids []uint64
	err := txn.Iterate(keyHandleByNodePrefix(path), func(it store.Item) bool {
		ids = append(ids, parseU64(it.Key[len(it.Key)-8:]))
		return true
	})
	return ids, err
}
