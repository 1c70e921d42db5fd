// Package lockmgr implements the pure node-level lock state machine: given
// a domain.Node and a requested mode, it decides grant/pending/busy and
// mutates the node's holder set, waiter queue, and generation counter in
// place. It has no storage dependency of its own — the namespace package
// persists the mutated node and produces the corresponding events inside
// the same transaction, since lock state lives embedded in the node record
// rather than in a separate structure with its own locking.
package lockmgr

import "github.com/hypertable/hyperspace/pkg/hyperspace/domain"

// Outcome is the result of a lock request.
type Outcome int

const (
	Granted Outcome = iota
	Pending
	Busy
)

func (o Outcome) String() string {
	switch o {
	case Granted:
		return "granted"
	case Pending:
		return "pending"
	case Busy:
		return "busy"
	default:
		return "unknown"
	}
}

// TryAcquire applies the lock/release state machine described in the lock
// manager's design to node for a request from handleID in the given mode.
// On Granted, node.LockGeneration has already been incremented and
// node.Holders includes handleID; suppressAcquiredEvent reports whether a
// lock-acquired notification should be suppressed because the lock was
// already held in a compatible mode (a second shared grant while already
// shared-held). On Pending, node.Waiters has handleID appended.
func TryAcquire(node *domain.Node, handleID uint64, mode domain.LockMode, tryLock bool) (outcome Outcome, suppressAcquiredEvent bool) {
	switch node.LockMode {
	case domain.LockExclusive:
		if tryLock {
			return Busy, false
		}
		node.Waiters = append(node.Waiters, domain.Waiter{HandleID: handleID, Mode: mode})
		return Pending, false

	case domain.LockShared:
		if mode == domain.LockExclusive {
			if tryLock {
				return Busy, false
			}
			node.Waiters = append(node.Waiters, domain.Waiter{HandleID: handleID, Mode: mode})
			return Pending, false
		}
		// mode == shared
		if len(node.Waiters) > 0 {
			// Preserve FIFO fairness: a shared request arriving behind a
			// queued (necessarily exclusive, by construction) waiter must
			// also wait, or it would starve the writer.
			if tryLock {
				return Busy, false
			}
			node.Waiters = append(node.Waiters, domain.Waiter{HandleID: handleID, Mode: mode})
			return Pending, false
		}
		node.LockGeneration++
		node.Holders = append(node.Holders, handleID)
		return Granted, true // already shared-held: suppress lock-acquired

	default: // LockNone
		node.LockGeneration++
		node.LockMode = mode
		node.Holders = append(node.Holders, handleID)
		return Granted, false
	}
}

// Release removes handleID from node's holder set. If it was the last
// holder, the node's lock mode reverts to none. Returns whether the handle
// was in fact a holder (false is a no-op, matching the idempotent-close
// requirement).
func Release(node *domain.Node, handleID uint64) (wasHolder, wasLastHolder bool) {
	idx := -1
	for i, h := range node.Holders {
		if h == handleID {
			idx = i
			break
		}
	}
	if idx == -1 {
		return false, false
	}
	node.Holders = append(node.Holders[:idx], node.Holders[idx+1:]...)
	if len(node.Holders) == 0 {
		node.LockMode = domain.LockNone
		return true, true
	}
	return true, false
}

// CancelPending removes handleID's queued request from node.Waiters, if
// present, returning whether one was found.
func CancelPending(node *domain.Node, handleID uint64) bool {
	for i, w := range node.Waiters {
		if w.HandleID == handleID {
			node.Waiters = append(node.Waiters[:i], node.Waiters[i+1:]...)
			return true
		}
	}
	return false
}

// GrantPending implements the grant-pending procedure run after a release:
// examine the head of the waiter queue; if it requests exclusive, grant to
// that one handle; if shared, grant to it and every contiguous prefix of
// shared requests. The generation counter is incremented exactly once for
// the whole batch. Returns the handles granted, in queue order, and the new
// generation; returns a nil slice if the queue was empty.
func GrantPending(node *domain.Node) (granted []domain.Waiter, generation uint64) {
	if len(node.Waiters) == 0 || node.LockMode != domain.LockNone {
		return nil, node.LockGeneration
	}

	head := node.Waiters[0]
	if head.Mode == domain.LockExclusive {
		granted = []domain.Waiter{head}
		node.Waiters = node.Waiters[1:]
	} else {
		i := 0
		for i < len(node.Waiters) && node.Waiters[i].Mode == domain.LockShared {
			i++
		}
		granted = append(granted, node.Waiters[:i]...)
		node.Waiters = node.Waiters[i:]
	}

	node.LockGeneration++
	node.LockMode = head.Mode
	for _, w := range granted {
		node.Holders = append(node.Holders, w.HandleID)
	}
	return granted, node.LockGeneration
}
