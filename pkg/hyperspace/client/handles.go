package client

import "sync"

// handleTable is the client's local record of handles it believes are
// open. The engine validates every notification's handle against this
// table before dispatching it.
type handleTable struct {
	mu      sync.Mutex
	handles map[uint64]struct{}
}

func newHandleTable() *handleTable {
	return &handleTable{handles: make(map[uint64]struct{})}
}

func (t *handleTable) add(handle uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.handles[handle] = struct{}{}
}

func (t *handleTable) remove(handle uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.handles, handle)
}

func (t *handleTable) has(handle uint64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.handles[handle]
	return ok
}

// clear drops every tracked handle, used on TCP reconnect: the documented
// (if dubious) source policy is that a disconnect permanently loses prior
// locks even when the session id survives.
func (t *handleTable) clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.handles = make(map[uint64]struct{})
}
