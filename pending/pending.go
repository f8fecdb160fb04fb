// Package pending implements the pending-request table and the credit
// window / message-id allocator that sit between the connection's send
// path and its receive path. The allocator owns the credit window and
// the next-id counter as one mutex-protected unit, since granting a
// credit and handing out the id it backs must be atomic with respect to
// other senders.
package pending

import (
	"context"
	"fmt"
	"sync"
)

// Entry is one in-flight request's completion slot. A single-shot
// channel delivers exactly one reply; STATUS_PENDING interim replies
// update Async/AsyncID in place without closing Done, and the final
// reply (possibly arriving on a different, async, MessageID-keyed path)
// closes it.
type Entry struct {
	MessageID uint64

	mu        sync.Mutex
	done      chan struct{}
	closed    bool
	response  []byte
	err       error
	async     bool
	asyncID   uint64
	cancelled bool
}

func newEntry(messageID uint64) *Entry {
	return &Entry{MessageID: messageID, done: make(chan struct{})}
}

// MarkAsync records the async id carried by a STATUS_PENDING interim
// response, without completing the entry.
func (e *Entry) MarkAsync(asyncID uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.async = true
	e.asyncID = asyncID
}

// IsAsync reports whether a STATUS_PENDING interim response has been
// seen for this entry yet, and if so its async id.
func (e *Entry) IsAsync() (bool, uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.async, e.asyncID
}

// Complete delivers the final response (or error) and wakes any waiter.
// Calling Complete more than once is a no-op after the first call.
func (e *Entry) Complete(response []byte, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	e.response = response
	e.err = err
	e.closed = true
	close(e.done)
}

// Wait blocks until Complete is called or ctx is done, whichever comes
// first.
func (e *Entry) Wait(ctx context.Context) ([]byte, error) {
	select {
	case <-e.done:
		e.mu.Lock()
		defer e.mu.Unlock()
		return e.response, e.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// TryResult reports, without blocking, whether Complete has already run
// for this entry. It lets a caller that is itself pumping the receive
// loop (the single-threaded backend's Send, which has no background
// dispatcher to wait on) poll for completion between RecvNext calls.
func (e *Entry) TryResult() (response []byte, err error, done bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.response, e.err, e.closed
}

// MarkCancelled flags that a CANCEL request has been sent for this
// entry, so a late STATUS_CANCELLED reply is not mistaken for an
// unsolicited message.
func (e *Entry) MarkCancelled() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cancelled = true
}

func (e *Entry) Cancelled() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cancelled
}

// Table tracks every request the connection has sent but not yet
// received a final reply for, keyed by message id.
type Table struct {
	mu      sync.Mutex
	entries map[uint64]*Entry
	// byAsyncID lets the receive path find the entry for a STATUS_PENDING
	// follow-up reply that only carries the async id, not the original
	// message id (MS-SMB2 3.2.5.1.8's asynchronous response handling).
	byAsyncID map[uint64]*Entry
}

// NewTable returns an empty pending-request table.
func NewTable() *Table {
	return &Table{
		entries:   make(map[uint64]*Entry),
		byAsyncID: make(map[uint64]*Entry),
	}
}

// Register adds a new in-flight entry for messageID. It is an error to
// register the same message id twice without completing it first.
func (t *Table) Register(messageID uint64) (*Entry, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, exists := t.entries[messageID]; exists {
		return nil, fmt.Errorf("pending: message id %d already in flight", messageID)
	}
	e := newEntry(messageID)
	t.entries[messageID] = e
	return e, nil
}

// Lookup finds the entry for an inbound response's message id.
func (t *Table) Lookup(messageID uint64) (*Entry, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[messageID]
	return e, ok
}

// LookupAsync finds the entry associated with an async id, for a
// follow-up reply that no longer carries the original message id.
func (t *Table) LookupAsync(asyncID uint64) (*Entry, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.byAsyncID[asyncID]
	return e, ok
}

// NoteAsync records that messageID's entry is now also reachable by
// asyncID, and marks the entry async.
func (t *Table) NoteAsync(messageID, asyncID uint64) {
	t.mu.Lock()
	e, ok := t.entries[messageID]
	if ok {
		t.byAsyncID[asyncID] = e
	}
	t.mu.Unlock()
	if ok {
		e.MarkAsync(asyncID)
	}
}

// Remove deletes messageID's entry (and any async-id alias) from the
// table, typically called right after Complete.
func (t *Table) Remove(messageID uint64) {
	t.mu.Lock()
	e, ok := t.entries[messageID]
	delete(t.entries, messageID)
	t.mu.Unlock()

	if !ok {
		return
	}
	// async/asyncID are guarded by e.mu, not t.mu - NoteAsync sets them
	// via MarkAsync after releasing t.mu, so they must be read the same
	// way here rather than assumed safe under t.mu alone.
	if async, asyncID := e.IsAsync(); async {
		t.mu.Lock()
		delete(t.byAsyncID, asyncID)
		t.mu.Unlock()
	}
}

// FailAll completes every still-pending entry with err, used when the
// connection drops with requests in flight.
func (t *Table) FailAll(err error) {
	t.mu.Lock()
	entries := make([]*Entry, 0, len(t.entries))
	for _, e := range t.entries {
		entries = append(entries, e)
	}
	t.entries = make(map[uint64]*Entry)
	t.byAsyncID = make(map[uint64]*Entry)
	t.mu.Unlock()

	for _, e := range entries {
		e.Complete(nil, err)
	}
}

// Len reports how many requests are currently in flight.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}
