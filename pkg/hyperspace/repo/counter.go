package repo

import "github.com/hypertable/hyperspace/pkg/store"

const prefixCounter = "ctr:"

// NextCounter atomically increments and returns the named durable counter
// within the caller's own transaction, so an id allocation (session id,
// event id) commits atomically with whatever record it names — unlike
// store.Store.AllocateCounter, which always opens its own transaction and is
// only appropriate when the id does not need to be atomic with other work.
func NextCounter(txn store.Txn, name string) (uint64, error) {
	key := []byte(prefixCounter + name)
	val, err := txn.Get(key)
	var cur uint64
	if err == nil {
		cur = parseU64(val)
	} else if err != store.ErrNotFound {
		return 0, err
	}
	next := cur + 1
	if err := txn.Set(key, u64(next)); err != nil {
		return 0, err
	}
	return next, nil
}
