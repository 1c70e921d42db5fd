// Package namespace implements the Hyperspace Namespace & Handle Store: the
// persistent node tree, open-handle bookkeeping, extended attributes, and
// (since lock state lives embedded in the node record) the transactional
// glue around the lock manager's pure state machine.
package namespace

import (
	"context"
	"sort"
	"time"

	"github.com/hypertable/hyperspace/pkg/hserrors"
	"github.com/hypertable/hyperspace/pkg/hyperspace/domain"
	"github.com/hypertable/hyperspace/pkg/hyperspace/event"
	"github.com/hypertable/hyperspace/pkg/hyperspace/lockmgr"
	"github.com/hypertable/hyperspace/pkg/hyperspace/repo"
	"github.com/hypertable/hyperspace/pkg/store"
)

// Service implements mkdir/unlink/open/close/attr_*/exists/readdir over a
// transactional store, producing events through an event.Dispatcher.
type Service struct {
	store  store.Store
	events *event.Dispatcher
}

// New constructs a Service.
func New(s store.Store, d *event.Dispatcher) *Service {
	return &Service{store: s, events: d}
}

// produced collects events generated inside a transaction so they can be
// delivered once the transaction has committed.
type produced struct {
	events []*domain.Event
}

func (p *produced) add(ev *domain.Event) {
	if ev != nil {
		p.events = append(p.events, ev)
	}
}

func (s *Service) deliver(ctx context.Context, p *produced) error {
	for _, ev := range p.events {
		if err := s.events.Deliver(ctx, ev); err != nil {
			return err
		}
	}
	return nil
}

// recipientsOf loads the handles open on path and returns the ids whose
// event mask includes kind's bit.
func recipientsOf(txn store.Txn, path string, kind domain.EventKind) ([]uint64, error) {
	node, err := repo.GetNode(txn, path)
	if err != nil {
		return nil, err
	}
	return recipientsFromIDs(txn, node.OpenHandles, kind)
}

func recipientsFromIDs(txn store.Txn, ids []uint64, kind domain.EventKind) ([]uint64, error) {
	handles := make([]*domain.Handle, 0, len(ids))
	for _, id := range ids {
		h, err := repo.GetHandle(txn, id)
		if err != nil {
			continue // handle raced closed; simply not a recipient
		}
		handles = append(handles, h)
	}
	return event.RecipientsByMask(handles, kind), nil
}

func removeID(ids []uint64, id uint64) []uint64 {
	for i, v := range ids {
		if v == id {
			return append(ids[:i], ids[i+1:]...)
		}
	}
	return ids
}

// Mkdir creates an interior node. Fails with bad-pathname if any parent is
// missing or root is targeted, file-exists if the path already exists.
func (s *Service) Mkdir(ctx context.Context, path string) error {
	if err := repo.ValidatePath(path); err != nil {
		return err
	}
	if path == "/" {
		return hserrors.NewBadPathnameError(path)
	}
	parentPath, name := repo.SplitPath(path)

	p := &produced{}
	err := s.store.Update(ctx, func(txn store.Txn) error {
		parent, err := repo.GetNode(txn, parentPath)
		if err != nil {
			return hserrors.NewBadPathnameError(path)
		}
		if exists, err := repo.NodeExists(txn, path); err != nil {
			return err
		} else if exists {
			return hserrors.NewFileExistsError(path)
		}

		n := &domain.Node{Path: path, Attrs: map[string][]byte{}, CreatedAt: time.Now()}
		if err := repo.CreateNode(txn, n); err != nil {
			return err
		}

		recipients, err := recipientsFromIDs(txn, parent.OpenHandles, domain.EventChildAdded)
		if err != nil {
			return err
		}
		ev, err := s.events.Produce(txn, domain.EventChildAdded, parentPath, recipients, func(e *domain.Event) {
			e.ChildName = name
		})
		if err != nil {
			return err
		}
		p.add(ev)
		return nil
	})
	if err != nil {
		return err
	}
	return s.deliver(ctx, p)
}

// Unlink removes a node with no open handles and no children. Fails with
// file-open otherwise, bad-pathname for root.
func (s *Service) Unlink(ctx context.Context, path string) error {
	if err := repo.ValidatePath(path); err != nil {
		return err
	}
	if path == "/" {
		return hserrors.NewBadPathnameError(path)
	}
	parentPath, name := repo.SplitPath(path)

	p := &produced{}
	err := s.store.Update(ctx, func(txn store.Txn) error {
		parent, err := repo.GetNode(txn, parentPath)
		if err != nil {
			return err
		}
		n, err := repo.GetNode(txn, path)
		if err != nil {
			return err
		}
		if len(n.OpenHandles) > 0 {
			return hserrors.NewFileOpenError(path)
		}
		children, err := repo.ListChildren(txn, path)
		if err != nil {
			return err
		}
		if len(children) > 0 {
			return hserrors.NewFileOpenError(path)
		}
		if err := repo.DeleteNode(txn, n); err != nil {
			return err
		}

		recipients, err := recipientsFromIDs(txn, parent.OpenHandles, domain.EventChildRemoved)
		if err != nil {
			return err
		}
		ev, err := s.events.Produce(txn, domain.EventChildRemoved, parentPath, recipients, func(e *domain.Event) {
			e.ChildName = name
		})
		if err != nil {
			return err
		}
		p.add(ev)
		return nil
	})
	if err != nil {
		return err
	}
	return s.deliver(ctx, p)
}

// OpenResult is returned by Open.
type OpenResult struct {
	HandleID   uint64
	Created    bool
	HoldsLock  bool
	Generation uint64
}

// Open resolves path, optionally creating it, registers a new handle on the
// owning session, and — if the flags request an atomic shared or exclusive
// lock — attempts to acquire it in the same transaction, failing the whole
// call with lock-conflict if it cannot be granted immediately.
func (s *Service) Open(ctx context.Context, sessionID uint64, path string, flags domain.OpenFlags, mask domain.EventMask, initialAttrs map[string][]byte) (*OpenResult, error) {
	if err := repo.ValidatePath(path); err != nil {
		return nil, err
	}

	res := &OpenResult{}
	p := &produced{}
	err := s.store.Update(ctx, func(txn store.Txn) error {
		var parent *domain.Node
		if path != "/" {
			parentPath, _ := repo.SplitPath(path)
			var err error
			parent, err = repo.GetNode(txn, parentPath)
			if err != nil {
				return hserrors.NewBadPathnameError(path)
			}
		}

		node, err := repo.GetNode(txn, path)
		existed := err == nil
		if err != nil && hserrors.CodeOf(err) != hserrors.FileNotFound {
			return err
		}

		switch {
		case existed && flags.Has(domain.FlagCreate) && flags.Has(domain.FlagExcl):
			return hserrors.NewFileExistsError(path)
		case existed && flags.Has(domain.FlagTemp):
			return hserrors.NewFileExistsError(path)
		case !existed && !flags.Has(domain.FlagCreate):
			return hserrors.NewFileNotFoundError(path)
		case !existed:
			attrs := map[string][]byte{}
			for k, v := range initialAttrs {
				attrs[k] = v
			}
			node = &domain.Node{
				Path:      path,
				Ephemeral: flags.Has(domain.FlagTemp),
				Attrs:     attrs,
				CreatedAt: time.Now(),
			}
			if err := repo.CreateNode(txn, node); err != nil {
				return err
			}
			res.Created = true
		}

		handleID, err := repo.NextCounter(txn, "handle")
		if err != nil {
			return err
		}
		handle := &domain.Handle{
			ID:        handleID,
			SessionID: sessionID,
			Path:      path,
			Flags:     flags,
			EventMask: mask,
			OpenedAt:  time.Now(),
		}
		node.OpenHandles = append(node.OpenHandles, handleID)

		if mode, wants := flags.WantsAtomicLock(); wants {
			outcome, suppress := lockmgr.TryAcquire(node, handleID, mode, true)
			if outcome == lockmgr.Busy {
				return hserrors.NewLockConflictError(path)
			}
			// Open never blocks: a Pending outcome cannot happen with
			// tryLock=true, but guard anyway for safety.
			if outcome == lockmgr.Pending {
				return hserrors.NewLockConflictError(path)
			}
			handle.HoldsLock = true
			res.HoldsLock = true
			res.Generation = node.LockGeneration
			if !suppress {
				recipients, err := recipientsFromIDs(txn, node.OpenHandles, domain.EventLockAcquired)
				if err != nil {
					return err
				}
				ev, err := s.events.Produce(txn, domain.EventLockAcquired, path, recipients, func(e *domain.Event) {
					e.LockMode = mode
				})
				if err != nil {
					return err
				}
				p.add(ev)
			}
		}

		if err := repo.CreateHandle(txn, handle); err != nil {
			return err
		}
		if err := repo.PutNode(txn, node); err != nil {
			return err
		}

		if res.Created && parent != nil {
			_, name := repo.SplitPath(path)
			recipients, err := recipientsFromIDs(txn, parent.OpenHandles, domain.EventChildAdded)
			if err != nil {
				return err
			}
			ev, err := s.events.Produce(txn, domain.EventChildAdded, parent.Path, recipients, func(e *domain.Event) {
				e.ChildName = name
			})
			if err != nil {
				return err
			}
			p.add(ev)
		}

		res.HandleID = handleID
		return nil
	})
	if err != nil {
		return nil, err
	}
	if err := s.deliver(ctx, p); err != nil {
		return nil, err
	}
	return res, nil
}

// Close runs the four-phase handle-destruction algorithm: release any held
// lock and detach the handle from its node, grant pending waiters, delete
// the node if it is now an unreferenced ephemeral, then delete the handle
// record. Each phase is its own transaction to keep lock hold time short;
// correctness relies on phase one removing the handle from the node record,
// so a concurrent second close of the same handle is a no-op.
func (s *Service) Close(ctx context.Context, sessionID, handleID uint64) error {
	handle, err := s.loadHandle(ctx, handleID)
	if err != nil {
		if hserrors.IsCode(err, hserrors.InvalidHandle) {
			return nil // already closed
		}
		return err
	}
	if handle.SessionID != sessionID {
		return hserrors.NewInvalidHandleError(handleID)
	}
	return s.destroyHandle(ctx, handle)
}

func (s *Service) loadHandle(ctx context.Context, handleID uint64) (*domain.Handle, error) {
	var h *domain.Handle
	err := s.store.View(ctx, func(txn store.Txn) error {
		var err error
		h, err = repo.GetHandle(txn, handleID)
		return err
	})
	return h, err
}

// destroyHandle runs the four phases for a handle already known to exist.
// It is also used by the session manager when an expiring session's handles
// are torn down, where the owning session record is already gone.
func (s *Service) destroyHandle(ctx context.Context, handle *domain.Handle) error {
	handleID, path := handle.ID, handle.Path

	// Phase 1: release the lock (if held) or cancel a queued request,
	// and detach the handle from the node's open set, in one transaction.
	p1 := &produced{}
	err := s.store.Update(ctx, func(txn store.Txn) error {
		node, err := repo.GetNode(txn, path)
		if err != nil {
			return nil // node already gone; nothing to release
		}
		node.OpenHandles = removeID(node.OpenHandles, handleID)

		wasHolder, wasLast := lockmgr.Release(node, handleID)
		if !wasHolder {
			lockmgr.CancelPending(node, handleID)
		}
		if wasLast {
			recipients, err := recipientsFromIDs(txn, node.OpenHandles, domain.EventLockReleased)
			if err != nil {
				return err
			}
			ev, err := s.events.Produce(txn, domain.EventLockReleased, path, recipients, nil)
			if err != nil {
				return err
			}
			p1.add(ev)
		}
		return repo.PutNode(txn, node)
	})
	if err != nil {
		return err
	}
	if err := s.deliver(ctx, p1); err != nil {
		return err
	}

	// Phase 2: grant pending lock requests woken by the release.
	if err := s.runGrantPending(ctx, path); err != nil {
		return err
	}

	// Phase 3: delete the node if it is an unreferenced ephemeral.
	p3 := &produced{}
	err = s.store.Update(ctx, func(txn store.Txn) error {
		node, err := repo.GetNode(txn, path)
		if err != nil {
			return nil
		}
		if !node.Ephemeral || len(node.OpenHandles) > 0 {
			return nil
		}
		if path == "/" {
			return nil
		}
		parentPath, name := repo.SplitPath(path)
		parent, err := repo.GetNode(txn, parentPath)
		if err == nil {
			recipients, err := recipientsFromIDs(txn, parent.OpenHandles, domain.EventChildRemoved)
			if err != nil {
				return err
			}
			ev, err := s.events.Produce(txn, domain.EventChildRemoved, parentPath, recipients, func(e *domain.Event) {
				e.ChildName = name
			})
			if err != nil {
				return err
			}
			p3.add(ev)
		}
		return repo.DeleteNode(txn, node)
	})
	if err != nil {
		return err
	}
	if err := s.deliver(ctx, p3); err != nil {
		return err
	}

	// Phase 4: delete the handle record.
	return s.store.Update(ctx, func(txn store.Txn) error {
		return repo.DeleteHandle(txn, handle)
	})
}

// AttrSet sets an extended attribute, visible through handle, emitting
// attr-set.
func (s *Service) AttrSet(ctx context.Context, handleID uint64, name string, value []byte) error {
	p := &produced{}
	err := s.store.Update(ctx, func(txn store.Txn) error {
		h, err := repo.GetHandle(txn, handleID)
		if err != nil {
			return err
		}
		if !h.Flags.Has(domain.FlagWrite) {
			return hserrors.NewModeRestrictionError("handle not opened for write")
		}
		n, err := repo.GetNode(txn, h.Path)
		if err != nil {
			return err
		}
		n.Attrs[name] = value
		if err := repo.PutNode(txn, n); err != nil {
			return err
		}
		recipients, err := recipientsFromIDs(txn, n.OpenHandles, domain.EventAttrSet)
		if err != nil {
			return err
		}
		ev, err := s.events.Produce(txn, domain.EventAttrSet, n.Path, recipients, func(e *domain.Event) {
			e.AttrName = name
		})
		if err != nil {
			return err
		}
		p.add(ev)
		return nil
	})
	if err != nil {
		return err
	}
	return s.deliver(ctx, p)
}

// AttrGet returns the value of an extended attribute.
func (s *Service) AttrGet(ctx context.Context, handleID uint64, name string) ([]byte, error) {
	var val []byte
	err := s.store.View(ctx, func(txn store.Txn) error {
		h, err := repo.GetHandle(txn, handleID)
		if err != nil {
			return err
		}
		n, err := repo.GetNode(txn, h.Path)
		if err != nil {
			return err
		}
		v, ok := n.Attrs[name]
		if !ok {
			return hserrors.NewAttrNotFoundError(n.Path, name)
		}
		val = v
		return nil
	})
	return val, err
}

// AttrExists reports whether an extended attribute exists.
func (s *Service) AttrExists(ctx context.Context, handleID uint64, name string) (bool, error) {
	var exists bool
	err := s.store.View(ctx, func(txn store.Txn) error {
		h, err := repo.GetHandle(txn, handleID)
		if err != nil {
			return err
		}
		n, err := repo.GetNode(txn, h.Path)
		if err != nil {
			return err
		}
		_, exists = n.Attrs[name]
		return nil
	})
	return exists, err
}

// AttrDel removes an extended attribute, emitting attr-del.
func (s *Service) AttrDel(ctx context.Context, handleID uint64, name string) error {
	p := &produced{}
	err := s.store.Update(ctx, func(txn store.Txn) error {
		h, err := repo.GetHandle(txn, handleID)
		if err != nil {
			return err
		}
		if !h.Flags.Has(domain.FlagWrite) {
			return hserrors.NewModeRestrictionError("handle not opened for write")
		}
		n, err := repo.GetNode(txn, h.Path)
		if err != nil {
			return err
		}
		if _, ok := n.Attrs[name]; !ok {
			return hserrors.NewAttrNotFoundError(n.Path, name)
		}
		delete(n.Attrs, name)
		if err := repo.PutNode(txn, n); err != nil {
			return err
		}
		recipients, err := recipientsFromIDs(txn, n.OpenHandles, domain.EventAttrDel)
		if err != nil {
			return err
		}
		ev, err := s.events.Produce(txn, domain.EventAttrDel, n.Path, recipients, func(e *domain.Event) {
			e.AttrName = name
		})
		if err != nil {
			return err
		}
		p.add(ev)
		return nil
	})
	if err != nil {
		return err
	}
	return s.deliver(ctx, p)
}

// AttrList returns the attribute names (not values) set on handle's node,
// sorted.
func (s *Service) AttrList(ctx context.Context, handleID uint64) ([]string, error) {
	var names []string
	err := s.store.View(ctx, func(txn store.Txn) error {
		h, err := repo.GetHandle(txn, handleID)
		if err != nil {
			return err
		}
		n, err := repo.GetNode(txn, h.Path)
		if err != nil {
			return err
		}
		for name := range n.Attrs {
			names = append(names, name)
		}
		return nil
	})
	sort.Strings(names)
	return names, err
}

// Exists reports whether a node exists at path.
func (s *Service) Exists(ctx context.Context, path string) (bool, error) {
	var exists bool
	err := s.store.View(ctx, func(txn store.Txn) error {
		var err error
		exists, err = repo.NodeExists(txn, path)
		return err
	})
	return exists, err
}

// Readdir returns the sorted base names of handle's node's children.
func (s *Service) Readdir(ctx context.Context, handleID uint64) ([]string, error) {
	var names []string
	err := s.store.View(ctx, func(txn store.Txn) error {
		h, err := repo.GetHandle(txn, handleID)
		if err != nil {
			return err
		}
		children, err := repo.ListChildren(txn, h.Path)
		if err != nil {
			return err
		}
		for _, c := range children {
			_, name := repo.SplitPath(c)
			names = append(names, name)
		}
		return nil
	})
	return names, err
}

// DestroyHandle is exported for the session manager's tick to use when
// tearing down handles of an expired session.
func (s *Service) DestroyHandle(ctx context.Context, handle *domain.Handle) error {
	return s.destroyHandle(ctx, handle)
}

// Lock acquires mode on the node backing handleID, potentially enqueuing a
// blocking waiter. The handle must have been opened with the lock and write
// flag bits. A try-lock that cannot be granted returns Busy with a nil
// error and leaves the node unchanged.
func (s *Service) Lock(ctx context.Context, handleID uint64, mode domain.LockMode, tryLock bool) (outcome lockmgr.Outcome, generation uint64, err error) {
	p := &produced{}
	err = s.store.Update(ctx, func(txn store.Txn) error {
		h, err := repo.GetHandle(txn, handleID)
		if err != nil {
			return err
		}
		if !h.Flags.Has(domain.FlagLock) || !h.Flags.Has(domain.FlagWrite) {
			return hserrors.NewModeRestrictionError("handle not opened with lock|write")
		}
		if h.HoldsLock {
			return hserrors.NewAlreadyLockedError(h.Path)
		}
		n, err := repo.GetNode(txn, h.Path)
		if err != nil {
			return err
		}
		var suppress bool
		outcome, suppress = lockmgr.TryAcquire(n, handleID, mode, tryLock)
		if outcome == lockmgr.Busy {
			return nil
		}
		if outcome == lockmgr.Granted {
			h.HoldsLock = true
			generation = n.LockGeneration
			if err := repo.PutHandle(txn, h); err != nil {
				return err
			}
			if !suppress {
				recipients, err := recipientsFromIDs(txn, n.OpenHandles, domain.EventLockAcquired)
				if err != nil {
					return err
				}
				ev, err := s.events.Produce(txn, domain.EventLockAcquired, h.Path, recipients, func(e *domain.Event) {
					e.LockMode = mode
				})
				if err != nil {
					return err
				}
				p.add(ev)
			}
		}
		return repo.PutNode(txn, n)
	})
	if err != nil {
		return outcome, 0, err
	}
	if derr := s.deliver(ctx, p); derr != nil {
		return outcome, generation, derr
	}
	return outcome, generation, nil
}

// Release releases the lock held by handleID, then runs the grant-pending
// procedure to wake waiters.
func (s *Service) Release(ctx context.Context, handleID uint64) error {
	h, err := s.loadHandle(ctx, handleID)
	if err != nil {
		return err
	}
	if !h.HoldsLock {
		return hserrors.NewNotLockedError(h.Path)
	}

	p1 := &produced{}
	err = s.store.Update(ctx, func(txn store.Txn) error {
		n, err := repo.GetNode(txn, h.Path)
		if err != nil {
			return err
		}
		_, wasLast := lockmgr.Release(n, h.ID)
		h.HoldsLock = false
		if err := repo.PutHandle(txn, h); err != nil {
			return err
		}
		if wasLast {
			recipients, err := recipientsFromIDs(txn, n.OpenHandles, domain.EventLockReleased)
			if err != nil {
				return err
			}
			ev, err := s.events.Produce(txn, domain.EventLockReleased, h.Path, recipients, nil)
			if err != nil {
				return err
			}
			p1.add(ev)
		}
		return repo.PutNode(txn, n)
	})
	if err != nil {
		return err
	}
	if err := s.deliver(ctx, p1); err != nil {
		return err
	}

	return s.runGrantPending(ctx, h.Path)
}

// runGrantPending wakes waiters on path's node after a release: grants the
// head of the queue (and its contiguous shared prefix), emits lock-granted
// to each newly granted handle and a single lock-acquired to existing
// observers, in one transaction.
func (s *Service) runGrantPending(ctx context.Context, path string) error {
	p := &produced{}
	err := s.store.Update(ctx, func(txn store.Txn) error {
		n, err := repo.GetNode(txn, path)
		if err != nil {
			return nil
		}
		granted, generation := lockmgr.GrantPending(n)
		if len(granted) == 0 {
			return nil
		}
		for _, w := range granted {
			wh, err := repo.GetHandle(txn, w.HandleID)
			if err != nil {
				continue
			}
			wh.HoldsLock = true
			if err := repo.PutHandle(txn, wh); err != nil {
				return err
			}
			ev, err := s.events.Produce(txn, domain.EventLockGranted, path, []uint64{w.HandleID}, func(e *domain.Event) {
				e.LockMode = w.Mode
				e.LockGeneration = generation
			})
			if err != nil {
				return err
			}
			p.add(ev)
		}
		recipients, err := recipientsFromIDs(txn, n.OpenHandles, domain.EventLockAcquired)
		if err != nil {
			return err
		}
		ev, err := s.events.Produce(txn, domain.EventLockAcquired, path, recipients, func(e *domain.Event) {
			e.LockMode = granted[0].Mode
		})
		if err != nil {
			return err
		}
		p.add(ev)
		return repo.PutNode(txn, n)
	})
	if err != nil {
		return err
	}
	return s.deliver(ctx, p)
}
