package repo

import (
	"context"
	"time"

	"github.com/hypertable/hyperspace/pkg/hyperspace/domain"
	"github.com/hypertable/hyperspace/pkg/store"
)

// EnsureRoot creates the namespace root "/" if it does not already exist.
// The root always exists and is never ephemeral.
func EnsureRoot(ctx context.Context, s store.Store) error {
	return s.Update(ctx, func(txn store.Txn) error {
		exists, err := NodeExists(txn, "/")
		if err != nil {
			return err
		}
		if exists {
			return nil
		}
		root := &domain.Node{
			Path:      "/",
			Attrs:     map[string][]byte{},
			CreatedAt: time.Now(),
		}
		return CreateNode(txn, root)
	})
}
