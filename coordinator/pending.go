package coordinator

import (
	"fmt"
	"sync"

	"github.com/hupe1980/agentloop/core"
)

// pendingRequest tracks one in-flight WaitForResponse call. The done channel
// is single-writer single-reader: buffered size 1, written at most once by
// resolve, read only by the registered waiter.
type pendingRequest struct {
	done chan core.ResponseEvent
}

// pendingTable is the shared request/response correlation table. Linked
// coordinators (parent/child) share one table so a root-level handler can
// answer a request registered by an arbitrarily nested coordinator.
type pendingTable struct {
	mu      sync.Mutex
	entries map[string]*pendingRequest
}

func newPendingTable() *pendingTable {
	return &pendingTable{entries: map[string]*pendingRequest{}}
}

// register creates a pending entry for the id. At most one entry may exist
// per id; a duplicate registration is a programmer error.
func (t *pendingTable) register(id string) (*pendingRequest, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.entries[id]; exists {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateRequest, id)
	}

	p := &pendingRequest{done: make(chan core.ResponseEvent, 1)}
	t.entries[id] = p

	return p, nil
}

// resolve completes the waiter registered under the response's request id
// and removes the entry. An unknown id is reported via the return value; it
// is not an error because a timeout firing and a late response arriving race
// legitimately.
func (t *pendingTable) resolve(id string, ev core.ResponseEvent) bool {
	t.mu.Lock()
	p, ok := t.entries[id]
	if ok {
		delete(t.entries, id)
	}
	t.mu.Unlock()

	if !ok {
		return false
	}

	p.done <- ev // buffered, never blocks

	return true
}

// remove discards the entry without completing it (timeout, cancellation).
func (t *pendingTable) remove(id string) {
	t.mu.Lock()
	delete(t.entries, id)
	t.mu.Unlock()
}

// size returns the number of in-flight requests.
func (t *pendingTable) size() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	return len(t.entries)
}
