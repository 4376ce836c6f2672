// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 EmberMUD Contributors

package session

import (
	"log/slog"
	"sync"

	"github.com/embermud/embermud/internal/player"
)

// Registry tracks at most one live connection per username, plus at most
// one pending transfer per username while a takeover handshake is in
// flight. A pending transfer only ever exists alongside a live session.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]Conn
	pending  map[string]Conn
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[string]Conn),
		pending:  make(map[string]Conn),
	}
}

// Register unconditionally installs the mapping for a username, overwriting
// any previous one. Callers replacing a live session must have gone through
// the transfer protocol first, otherwise the old connection is silently
// orphaned. Any stale pending transfer for the username is cleared.
func (r *Registry) Register(username string, conn Conn) {
	key := player.NormalizeUsername(username)

	r.mu.Lock()
	_, replaced := r.sessions[key]
	r.sessions[key] = conn
	delete(r.pending, key)
	r.mu.Unlock()

	loginsTotal.Inc()
	slog.Info("session registered", "username", key, "replaced", replaced)
}

// Unregister removes the mapping and any stale pending transfer for a
// username. Idempotent: unknown usernames are a no-op.
func (r *Registry) Unregister(username string) {
	key := player.NormalizeUsername(username)

	r.mu.Lock()
	_, existed := r.sessions[key]
	delete(r.sessions, key)
	delete(r.pending, key)
	r.mu.Unlock()

	if existed {
		slog.Info("session unregistered", "username", key)
	}
}

// Active reports whether a username has a live session.
func (r *Registry) Active(username string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.sessions[player.NormalizeUsername(username)]
	return ok
}

// ActiveConn returns the connection bound to a username, or nil.
func (r *Registry) ActiveConn(username string) Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.sessions[player.NormalizeUsername(username)]
}

// Snapshot returns a copy of the live session map, immune to concurrent
// mutation during iteration.
func (r *Registry) Snapshot() map[string]Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]Conn, len(r.sessions))
	for name, conn := range r.sessions {
		out[name] = conn
	}
	return out
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// pendingConn returns the connection awaiting a transfer decision for a
// username, or nil.
func (r *Registry) pendingConn(username string) Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.pending[player.NormalizeUsername(username)]
}

// setPending records an incoming connection awaiting a decision.
func (r *Registry) setPending(username string, conn Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.pending[player.NormalizeUsername(username)] = conn
}

// clearPending removes the pending entry for a username.
func (r *Registry) clearPending(username string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.pending, player.NormalizeUsername(username))
}
