// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 EmberMUD Contributors

// Package session binds player identities to live connections and resolves
// the takeover handshake when a second login arrives for a bound identity.
package session

import "github.com/embermud/embermud/internal/player"

// Conn is the transport-layer handle for one live connection. The transport
// owns the I/O loop; this package only writes text, delivers control
// messages, and attaches or detaches the player record.
type Conn interface {
	// Write sends text to the client. An empty string is a wake-up no-op:
	// nothing visible is sent, but the connection's I/O loop gets a chance
	// to observe pending control messages.
	Write(text string) error

	// Notify delivers a control message to the connection's state machine.
	// Must not block.
	Notify(msg ControlMessage)

	// Attach installs the player record the connection now represents.
	// The record is owned by the connection; it is always a value copy,
	// never shared with another connection.
	Attach(rec *player.Record)

	// Detach marks the connection unauthenticated and drops its record.
	Detach()

	// Close tears the connection down.
	Close() error
}

// ControlKind tags a control message.
type ControlKind int

// Control message kinds.
const (
	// ControlTransferRequest interrupts the currently-bound connection:
	// another login wants this identity, answer yes or no.
	ControlTransferRequest ControlKind = iota + 1

	// ControlTransferWait tells the incoming connection to hold while the
	// bound connection decides.
	ControlTransferWait

	// ControlTransferApproved tells the incoming connection it now owns
	// the session.
	ControlTransferApproved

	// ControlTransferDenied redirects the incoming connection back to the
	// login entry state.
	ControlTransferDenied

	// ControlTransferResume clears the interrupt on the bound connection
	// and restores its prior state; sent on denial or cancellation.
	ControlTransferResume
)

// String returns the kind's name for logging.
func (k ControlKind) String() string {
	switch k {
	case ControlTransferRequest:
		return "transfer_request"
	case ControlTransferWait:
		return "transfer_wait"
	case ControlTransferApproved:
		return "transfer_approved"
	case ControlTransferDenied:
		return "transfer_denied"
	case ControlTransferResume:
		return "transfer_resume"
	default:
		return "unknown"
	}
}

// ControlMessage is the typed handshake message exchanged between this
// package and a connection's state machine.
type ControlMessage struct {
	Kind     ControlKind
	Username string
}

// CombatService is the combat subsystem collaborator. HandleSessionTransfer
// is called only when the pre-transfer snapshot showed combat; failures are
// never fatal to the transfer.
type CombatService interface {
	InCombat(conn Conn) bool
	HandleSessionTransfer(oldConn, newConn Conn) error
}
