// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 EmberMUD Contributors

package session

import (
	"log/slog"
	"sync"
	"time"

	"github.com/samber/oops"

	"github.com/embermud/embermud/internal/player"
)

// DefaultGraceDelay is how long a superseded connection stays up after an
// approved transfer before it is detached and closed. Code that captured a
// reference to the old connection earlier in the same turn (a broadcast
// loop, say) gets to finish without hitting a torn-down connection.
const DefaultGraceDelay = 7 * time.Second

// Coordinator drives the takeover handshake between the connection bound to
// an identity and a second connection logging in as the same identity.
//
// Per username the states are: no session, active session, and active
// session with a transfer pending. Transitions are serialized by the
// coordinator's mutex; the genuinely racy part is the deferred teardown
// timer, which fires exactly once and cannot be cancelled short of process
// exit.
type Coordinator struct {
	mu       sync.Mutex
	registry *Registry
	store    *player.Store
	combat   CombatService
	grace    time.Duration
}

// NewCoordinator creates a Coordinator. combat may be nil when no combat
// subsystem is wired; grace <= 0 selects DefaultGraceDelay.
func NewCoordinator(registry *Registry, store *player.Store, combat CombatService, grace time.Duration) (*Coordinator, error) {
	if registry == nil {
		return nil, oops.Errorf("session registry is required")
	}
	if store == nil {
		return nil, oops.Errorf("player store is required")
	}
	if grace <= 0 {
		grace = DefaultGraceDelay
	}
	return &Coordinator{
		registry: registry,
		store:    store,
		combat:   combat,
		grace:    grace,
	}, nil
}

// RequestTransfer starts the handshake: the incoming connection is parked
// as pending and both connections are notified through their state
// machines. Returns false, with no pending entry created, when the identity
// has no live session or when a transfer is already pending for it (a third
// concurrent login is rejected, not allowed to clobber the second).
func (c *Coordinator) RequestTransfer(username string, newConn Conn) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := player.NormalizeUsername(username)
	bound := c.registry.ActiveConn(key)
	if bound == nil {
		slog.Debug("transfer requested with no active session", "username", key)
		return false
	}
	if c.registry.pendingConn(key) != nil {
		slog.Warn("transfer already pending, rejecting additional login", "username", key)
		transfersTotal.WithLabelValues("rejected").Inc()
		return false
	}

	c.registry.setPending(key, newConn)
	newConn.Notify(ControlMessage{Kind: ControlTransferWait, Username: key})
	bound.Notify(ControlMessage{Kind: ControlTransferRequest, Username: key})
	// Wake the bound connection's I/O loop so it observes the interrupt.
	if err := bound.Write(""); err != nil {
		slog.Debug("wake-up write failed", "username", key, "error", err)
	}

	slog.Info("transfer requested", "username", key)
	return true
}

// Resolve completes the handshake with the bound connection's decision.
// With no matching pending entry or session it is a silent no-op. The
// pending entry is cleared last on every path, so a pending transfer can
// never outlive its triggering request.
func (c *Coordinator) Resolve(username string, approved bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resolveLocked(player.NormalizeUsername(username), approved)
}

// HandleBoundDisconnect settles coordinator state when the connection bound
// to an identity drops. A pending handshake resolves in the waiting
// connection's favor: that connection already authenticated and asked for
// the session, and nobody is left to answer the interrupt. With nothing
// pending the session is simply unregistered.
func (c *Coordinator) HandleBoundDisconnect(username string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := player.NormalizeUsername(username)
	if c.registry.pendingConn(key) != nil {
		slog.Info("bound connection dropped with transfer pending, promoting waiter", "username", key)
		c.resolveLocked(key, true)
		return
	}
	c.registry.Unregister(key)
}

// resolveLocked is the shared handshake resolution. Callers hold c.mu.
func (c *Coordinator) resolveLocked(key string, approved bool) {
	defer c.registry.clearPending(key)

	newConn := c.registry.pendingConn(key)
	oldConn := c.registry.ActiveConn(key)
	if newConn == nil || oldConn == nil {
		slog.Debug("transfer resolution with nothing pending",
			"username", key,
			"approved", approved,
		)
		return
	}

	if !approved {
		newConn.Notify(ControlMessage{Kind: ControlTransferDenied, Username: key})
		oldConn.Notify(ControlMessage{Kind: ControlTransferResume, Username: key})
		transfersTotal.WithLabelValues("denied").Inc()
		slog.Info("transfer denied", "username", key)
		return
	}

	// Snapshot combat state before the registry flips; afterwards the old
	// connection no longer represents the identity.
	inCombat := c.combat != nil && c.combat.InCombat(oldConn)

	rec, ok := c.store.Get(key)
	if !ok {
		slog.Error("transfer approved for unknown player record", "username", key)
	} else {
		// The copy handed to the new connection must already carry the
		// combat flag; the store update below only covers persistence.
		if inCombat {
			rec.InCombat = true
		}
		newConn.Attach(rec)
	}

	// Point of no return: the registry now maps the identity to the new
	// connection.
	c.registry.Register(key, newConn)

	if inCombat {
		c.store.Update(key, player.Patch{InCombat: boolPtr(true)})
		c.handoffCombat(key, oldConn, newConn)
	}

	now := time.Now()
	c.store.Update(key, player.Patch{LastLogin: &now})
	newConn.Notify(ControlMessage{Kind: ControlTransferApproved, Username: key})

	c.scheduleTeardown(key, oldConn)
	transfersTotal.WithLabelValues("approved").Inc()
	slog.Info("transfer approved", "username", key, "in_combat", inCombat)
}

// Cancel abandons a pending handshake, restoring the bound connection to
// its prior state exactly as a denial would. Used when the requesting
// connection disconnects before a decision. Silent no-op when nothing is
// pending.
func (c *Coordinator) Cancel(username string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := player.NormalizeUsername(username)
	defer c.registry.clearPending(key)

	if c.registry.pendingConn(key) == nil {
		return
	}
	if oldConn := c.registry.ActiveConn(key); oldConn != nil {
		oldConn.Notify(ControlMessage{Kind: ControlTransferResume, Username: key})
	}
	transfersTotal.WithLabelValues("cancelled").Inc()
	slog.Info("transfer cancelled", "username", key)
}

// handoffCombat moves combat bookkeeping from the old connection to the
// new one. Identity continuity always wins over combat continuity: any
// error or panic here is logged and the transfer proceeds.
func (c *Coordinator) handoffCombat(username string, oldConn, newConn Conn) {
	defer func() {
		if p := recover(); p != nil {
			slog.Error("combat handoff panicked", "username", username, "panic", p)
		}
	}()
	if err := c.combat.HandleSessionTransfer(oldConn, newConn); err != nil {
		slog.Error("combat handoff failed", "username", username, "error", err)
	}
}

// scheduleTeardown arms the one-shot grace timer for the superseded
// connection. If the identity logs out and back in before the timer fires,
// the zombie connection is still torn down on schedule, but by then the
// registry points elsewhere and the live session is unaffected.
func (c *Coordinator) scheduleTeardown(username string, old Conn) {
	time.AfterFunc(c.grace, func() {
		old.Detach()
		if err := old.Close(); err != nil {
			slog.Debug("error closing superseded connection",
				"username", username,
				"error", err,
			)
		}
		slog.Debug("superseded connection torn down", "username", username)
	})
}

func boolPtr(b bool) *bool { return &b }
