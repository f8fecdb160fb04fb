// Package metrics exposes a read-only HTTP view over a set of live
// connections: a router plus a single ServeHTTP entry point that can be
// mounted behind BasicAuth.
package metrics

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/julienschmidt/httprouter"

	"github.com/smbgo/smb3/connection"
)

// Snapshotter is satisfied by *connection.Connection; accepting the
// interface instead of the concrete type keeps this package testable
// without dialing a real connection.
type Snapshotter interface {
	Snapshot() connection.Snapshot
}

// Registry tracks the set of live connections a Metrics endpoint
// reports on, keyed by a caller-chosen id (typically the server UNC
// or address dialed).
type Registry struct {
	mu    sync.RWMutex
	conns map[string]Snapshotter
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{conns: make(map[string]Snapshotter)}
}

// Register adds or replaces the connection tracked under id.
func (r *Registry) Register(id string, c Snapshotter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conns[id] = c
}

// Unregister removes id from the registry, if present.
func (r *Registry) Unregister(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.conns, id)
}

// Snapshot returns a point-in-time copy of every tracked connection's
// id and health.
func (r *Registry) Snapshot() map[string]connection.Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]connection.Snapshot, len(r.conns))
	for id, c := range r.conns {
		out[id] = c.Snapshot()
	}
	return out
}

// Metrics serves the registry's snapshots over HTTP: a router wrapping
// a handler set, with ServeHTTP as the sole exported entry point so it
// composes with http.Server and BasicAuth wrappers.
type Metrics struct {
	router *httprouter.Router
	reg    *Registry
}

// New returns a Metrics endpoint backed by reg.
func New(reg *Registry) *Metrics {
	m := &Metrics{
		router: httprouter.New(),
		reg:    reg,
	}
	m.router.GET("/connections", m.handleList)
	m.router.GET("/connections/:id", m.handleOne)
	return m
}

// ServeHTTP implements http.Handler.
func (m *Metrics) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	m.router.ServeHTTP(w, r)
}

func (m *Metrics) handleList(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	writeJSON(w, m.reg.Snapshot())
}

func (m *Metrics) handleOne(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	snaps := m.reg.Snapshot()
	snap, ok := snaps[ps.ByName("id")]
	if !ok {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
		return
	}
	writeJSON(w, snap)
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.Encode(v)
}

// BasicAuth wraps an http.Handler to force basic auth with a fixed
// password.
func BasicAuth(password string) func(http.Handler) http.Handler {
	return func(h http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if _, p, ok := req.BasicAuth(); !ok || p != password {
				http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
				return
			}
			h.ServeHTTP(w, req)
		})
	}
}
