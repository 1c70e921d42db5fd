package badger

import (
	"encoding/binary"

	badgerdb "github.com/dgraph-io/badger/v4"

	"github.com/hypertable/hyperspace/pkg/store"
)

// tx adapts *badgerdb.Txn to store.Txn.
type tx struct {
	txn *badgerdb.Txn
}

func (t *tx) Get(key []byte) ([]byte, error) {
	item, err := t.txn.Get(key)
	if err == badgerdb.ErrKeyNotFound {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return item.ValueCopy(nil)
}

func (t *tx) Set(key, value []byte) error {
	err := t.txn.Set(key, value)
	if err == badgerdb.ErrConflict {
		return store.ErrConflict
	}
	return err
}

func (t *tx) Delete(key []byte) error {
	err := t.txn.Delete(key)
	if err == badgerdb.ErrConflict {
		return store.ErrConflict
	}
	return err
}

func (t *tx) Iterate(prefix []byte, fn func(store.Item) bool) error {
	opts := badgerdb.DefaultIteratorOptions
	opts.Prefix = prefix
	it := t.txn.NewIterator(opts)
	defer it.Close()

	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		item := it.Item()
		key := item.KeyCopy(nil)
		val, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		if !fn(store.Item{Key: key, Value: val}) {
			break
		}
	}
	return nil
}

func encodeUint64(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}

func decodeUint64(b []byte) uint64 {
	if len(b) < 8 {
		return 0
	}
	return binary.BigEndian.Uint64(b)
}
