// Package session tracks the per-SESSION_SETUP state a connection
// needs once a session is established: its id, the negotiated
// cryptographic context, and the security context that produced it.
package session

import (
	"sync"

	"github.com/smbgo/smb3/crypto"
	"github.com/smbgo/smb3/securitycontext"
)

// State mirrors the session lifecycle in MS-SMB2 3.2.1.3, trimmed to
// what a client needs to track.
type State int

const (
	StateInProgress State = iota
	StateValid
	StateExpired
)

// Ref is a reference to one established (or in-progress) session.
type Ref struct {
	mu sync.RWMutex

	id    uint64
	state State

	securityContext securitycontext.SecurityContext
	cryptoContext   *crypto.Context

	sessionKey []byte
}

// New returns a session reference in StateInProgress, before
// SESSION_SETUP has completed.
func New(id uint64, sc securitycontext.SecurityContext) *Ref {
	return &Ref{id: id, state: StateInProgress, securityContext: sc}
}

func (r *Ref) ID() uint64 {
	return r.id
}

func (r *Ref) State() State {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state
}

// Establish finalizes the session once SESSION_SETUP's final response
// has arrived: it derives the cryptographic context from the security
// context's session key and the negotiated dialect/cipher/preauth hash.
func (r *Ref) Establish(dialect crypto.Dialect, cipher crypto.Cipher, preauthHash []byte, encrypt bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.sessionKey = r.securityContext.SessionKey()
	ctx, _, err := crypto.Derive(r.sessionKey, dialect, cipher, preauthHash, encrypt)
	if err != nil {
		return err
	}
	r.cryptoContext = ctx
	r.state = StateValid
	return nil
}

// CryptoContext returns the session's cryptographic context, nil
// before Establish succeeds.
func (r *Ref) CryptoContext() *crypto.Context {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.cryptoContext
}

// Expire marks the session no longer usable, e.g. after LOGOFF or a
// reauthentication failure.
func (r *Ref) Expire() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state = StateExpired
}

// Table is a connection's set of sessions, keyed by session id.
type Table struct {
	mu       sync.Mutex
	sessions map[uint64]*Ref
}

// NewTable returns an empty session table.
func NewTable() *Table {
	return &Table{sessions: make(map[uint64]*Ref)}
}

// Register adds ref to the table.
func (t *Table) Register(ref *Ref) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sessions[ref.id] = ref
}

// Lookup finds the session for id.
func (t *Table) Lookup(id uint64) (*Ref, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	r, ok := t.sessions[id]
	return r, ok
}

// Remove deletes the session for id, e.g. after LOGOFF.
func (t *Table) Remove(id uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.sessions, id)
}

// ExpireAll marks every session expired, used when the connection
// drops.
func (t *Table) ExpireAll() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, r := range t.sessions {
		r.Expire()
	}
}
