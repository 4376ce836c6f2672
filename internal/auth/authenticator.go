// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 EmberMUD Contributors

package auth

import (
	"crypto/subtle"
	"log/slog"

	"github.com/samber/oops"

	"github.com/embermud/embermud/internal/player"
)

// Authenticator validates player credentials against the store.
type Authenticator struct {
	store  *player.Store
	hasher *Hasher
}

// NewAuthenticator creates an Authenticator.
func NewAuthenticator(store *player.Store, hasher *Hasher) (*Authenticator, error) {
	if store == nil {
		return nil, oops.Errorf("player store is required")
	}
	if hasher == nil {
		return nil, oops.Errorf("password hasher is required")
	}
	return &Authenticator{store: store, hasher: hasher}, nil
}

// Authenticate checks the password for a username. Unknown users and
// mismatches return false; failed attempts have no side effects.
//
// A record still carrying a legacy plaintext credential is compared directly
// and, on a match, migrated on the spot: the plaintext is replaced with a
// fresh hash+salt pair and the change is persisted before returning.
func (a *Authenticator) Authenticate(username, password string) bool {
	rec, ok := a.store.Get(username)
	if !ok {
		return false
	}

	if rec.HasLegacyCredential() {
		if subtle.ConstantTimeCompare([]byte(rec.LegacyPassword), []byte(password)) != 1 {
			return false
		}
		a.migrateLegacy(rec.Username, password)
		return true
	}

	valid, err := a.hasher.Verify(password, rec.PasswordHash, rec.PasswordSalt)
	if err != nil {
		slog.Error("credential verification failed",
			"username", rec.Username,
			"error", err,
		)
		return false
	}
	return valid
}

// migrateLegacy replaces a plaintext credential with a hash+salt pair.
// Migration failures are logged and the plaintext kept; the next successful
// login retries.
func (a *Authenticator) migrateLegacy(username, password string) {
	hash, salt, err := a.hasher.Hash(password)
	if err != nil {
		slog.Error("legacy password migration failed",
			"username", username,
			"error", err,
		)
		return
	}
	if !a.store.SetCredential(username, hash, salt) {
		slog.Warn("legacy password migration lost its record", "username", username)
		return
	}
	slog.Info("legacy password migrated", "username", username)
}
