// Package badger implements store.Store on top of an embedded BadgerDB
// instance, the transactional KV engine the teacher stack's metadata layer
// is itself built on.
package badger

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	badgerdb "github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/ristretto/v2"
	"golang.org/x/sys/unix"

	"github.com/hypertable/hyperspace/pkg/store"
)

const counterPrefix = "ctr:"

// cacheStatsInterval is how often Store polls BadgerDB's block/index cache
// metrics when a CacheMetrics collector is configured.
const cacheStatsInterval = 15 * time.Second

// Store wraps a *badgerdb.DB plus the host-level advisory lock taken on the
// base directory at open time, preventing a second server process from
// opening the same state directory.
type Store struct {
	db        *badgerdb.DB
	retry     store.RetryConfig
	lockFile  *os.File
	counterMu sync.Mutex

	metrics    store.CacheMetrics
	stopOnce   sync.Once
	stopCh     chan struct{}
	doneCh     chan struct{}
	lastHits   map[string]uint64
	lastMisses map[string]uint64
}

// Options configures Open.
type Options struct {
	// Dir is the base directory holding both the BadgerDB files and the
	// host advisory lock sentinel.
	Dir string

	// Retry overrides the default conflict-retry budget.
	Retry *store.RetryConfig

	// InMemory opens an ephemeral, non-persistent instance for tests; the
	// host advisory lock is skipped in this mode.
	InMemory bool

	// Metrics receives periodic block/index cache hit-ratio samples. Nil
	// disables sampling.
	Metrics store.CacheMetrics
}

// Open opens (creating if necessary) the BadgerDB instance at opts.Dir,
// after taking an exclusive flock on a sentinel file in that directory so a
// second Hyperspace process cannot also attach to it.
func Open(opts Options) (*Store, error) {
	retry := store.DefaultRetryConfig
	if opts.Retry != nil {
		retry = *opts.Retry
	}

	var lockFile *os.File
	bopts := badgerdb.DefaultOptions(opts.Dir)
	if opts.InMemory {
		bopts = bopts.WithInMemory(true)
	} else {
		if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
			return nil, fmt.Errorf("create base directory: %w", err)
		}
		f, err := acquireHostLock(opts.Dir)
		if err != nil {
			return nil, err
		}
		lockFile = f
	}
	bopts = bopts.WithLogger(nil)

	db, err := badgerdb.Open(bopts)
	if err != nil {
		if lockFile != nil {
			_ = unix.Flock(int(lockFile.Fd()), unix.LOCK_UN)
			_ = lockFile.Close()
		}
		return nil, fmt.Errorf("open badger store: %w", err)
	}

	s := &Store{
		db:         db,
		retry:      retry,
		lockFile:   lockFile,
		metrics:    opts.Metrics,
		stopCh:     make(chan struct{}),
		doneCh:     make(chan struct{}),
		lastHits:   make(map[string]uint64),
		lastMisses: make(map[string]uint64),
	}
	if s.metrics != nil {
		go s.reportCacheStats()
	} else {
		close(s.doneCh)
	}
	return s, nil
}

// reportCacheStats polls BadgerDB's block and index cache metrics on a
// timer and forwards them to the configured store.CacheMetrics. It runs
// until Close is called.
func (s *Store) reportCacheStats() {
	defer close(s.doneCh)

	ticker := time.NewTicker(cacheStatsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.sampleCache("block", s.db.BlockCacheMetrics())
			s.sampleCache("index", s.db.IndexCacheMetrics())
		}
	}
}

func (s *Store) sampleCache(cacheType string, m *ristretto.Metrics) {
	if m == nil {
		return
	}
	s.metrics.RecordCacheHitRatio(cacheType, m.Ratio())

	hits, misses := m.Hits(), m.Misses()
	if d := hits - s.lastHits[cacheType]; d > 0 {
		s.metrics.RecordCacheHits(cacheType, d)
	}
	if d := misses - s.lastMisses[cacheType]; d > 0 {
		s.metrics.RecordCacheMisses(cacheType, d)
	}
	s.lastHits[cacheType] = hits
	s.lastMisses[cacheType] = misses
}

// acquireHostLock takes a non-blocking exclusive flock on base/.hyperspace.lock,
// matching the spec's "single base directory + host advisory lock" invariant.
func acquireHostLock(base string) (*os.File, error) {
	path := filepath.Join(base, ".hyperspace.lock")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open lock sentinel: %w", err)
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("base directory %s is already locked by another process: %w", base, err)
	}
	return f, nil
}

// Close implements store.Store.
func (s *Store) Close() error {
	s.stopOnce.Do(func() { close(s.stopCh) })
	<-s.doneCh

	err := s.db.Close()
	if s.lockFile != nil {
		_ = unix.Flock(int(s.lockFile.Fd()), unix.LOCK_UN)
		_ = s.lockFile.Close()
	}
	return err
}

// View implements store.Store.
func (s *Store) View(ctx context.Context, fn func(store.Txn) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.View(func(txn *badgerdb.Txn) error {
		return fn(&tx{txn: txn})
	})
}

// Update implements store.Store, retrying on conflict per s.retry.
func (s *Store) Update(ctx context.Context, fn func(store.Txn) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return store.WithRetry(ctx, s.retry, func() error {
		err := s.db.Update(func(txn *badgerdb.Txn) error {
			return fn(&tx{txn: txn})
		})
		if err == badgerdb.ErrConflict {
			return store.ErrConflict
		}
		return err
	})
}

// AllocateCounter implements store.Store using a dedicated key so the
// counter survives restart; it is incremented inside its own retried
// transaction, independent of whatever transaction called it. The domain
// packages allocate their ids with repo.NextCounter instead.
func (s *Store) AllocateCounter(ctx context.Context, name string) (uint64, error) {
	s.counterMu.Lock()
	defer s.counterMu.Unlock()

	var next uint64
	err := s.Update(ctx, func(t store.Txn) error {
		key := []byte(counterPrefix + name)
		val, err := t.Get(key)
		var cur uint64
		if err == nil {
			cur = decodeUint64(val)
		} else if err != store.ErrNotFound {
			return err
		}
		next = cur + 1
		return t.Set(key, encodeUint64(next))
	})
	return next, err
}
