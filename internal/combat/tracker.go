// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 EmberMUD Contributors

// Package combat tracks which connections are fighting and follows combat
// bookkeeping across session transfers.
package combat

import (
	"log/slog"
	"sync"

	"github.com/samber/oops"

	"github.com/embermud/embermud/internal/session"
)

// Tracker maps live connections to their current opponent. It implements
// session.CombatService so combat follows the identity, not the connection,
// through a session transfer.
type Tracker struct {
	mu        sync.RWMutex
	opponents map[session.Conn]string
}

// NewTracker creates an empty Tracker.
func NewTracker() *Tracker {
	return &Tracker{opponents: make(map[session.Conn]string)}
}

// Engage records that a connection is fighting the named opponent.
func (t *Tracker) Engage(conn session.Conn, opponent string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.opponents[conn] = opponent
}

// Disengage ends a connection's fight. Idempotent.
func (t *Tracker) Disengage(conn session.Conn) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.opponents, conn)
}

// InCombat reports whether a connection is currently fighting.
func (t *Tracker) InCombat(conn session.Conn) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.opponents[conn]
	return ok
}

// Opponent returns the opponent a connection is fighting, if any.
func (t *Tracker) Opponent(conn session.Conn) (string, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	opp, ok := t.opponents[conn]
	return opp, ok
}

// HandleSessionTransfer moves combat bookkeeping from the old connection to
// the new one.
func (t *Tracker) HandleSessionTransfer(oldConn, newConn session.Conn) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	opponent, ok := t.opponents[oldConn]
	if !ok {
		return oops.Code("COMBAT_NOT_FIGHTING").Errorf("old connection has no active fight")
	}
	delete(t.opponents, oldConn)
	t.opponents[newConn] = opponent

	slog.Debug("combat handed off to new connection", "opponent", opponent)
	return nil
}

var _ session.CombatService = (*Tracker)(nil)
