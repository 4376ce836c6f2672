// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 EmberMUD Contributors

package auth_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/embermud/embermud/internal/auth"
	"github.com/embermud/embermud/internal/player"
)

func TestNewAuthenticator(t *testing.T) {
	store := player.NewStore(nil, auth.NewHasher())

	_, err := auth.NewAuthenticator(nil, auth.NewHasher())
	assert.Error(t, err)

	_, err = auth.NewAuthenticator(store, nil)
	assert.Error(t, err)

	a, err := auth.NewAuthenticator(store, auth.NewHasher())
	require.NoError(t, err)
	assert.NotNil(t, a)
}

func TestAuthenticator_Authenticate(t *testing.T) {
	hasher := auth.NewHasher()

	newAuthed := func(t *testing.T) (*auth.Authenticator, *player.Store) {
		t.Helper()
		store := player.NewStore(nil, hasher)
		_, err := store.Create("alice", "secret")
		require.NoError(t, err)
		a, err := auth.NewAuthenticator(store, hasher)
		require.NoError(t, err)
		return a, store
	}

	t.Run("correct password", func(t *testing.T) {
		a, _ := newAuthed(t)
		assert.True(t, a.Authenticate("alice", "secret"))
	})

	t.Run("username is case-insensitive", func(t *testing.T) {
		a, _ := newAuthed(t)
		assert.True(t, a.Authenticate("ALICE", "secret"))
	})

	t.Run("wrong password", func(t *testing.T) {
		a, _ := newAuthed(t)
		assert.False(t, a.Authenticate("alice", "wrong"))
	})

	t.Run("unknown user", func(t *testing.T) {
		a, _ := newAuthed(t)
		assert.False(t, a.Authenticate("mallory", "secret"))
	})
}

func TestAuthenticator_LegacyMigration(t *testing.T) {
	hasher := auth.NewHasher()

	// A nil store hasher keeps the plaintext in place at load, leaving the
	// migration to the first successful login.
	newLegacy := func(t *testing.T) (*auth.Authenticator, *player.Store) {
		t.Helper()
		store := player.NewStore(nil, nil)
		err := store.LoadAll([]*player.Record{{Username: "alice", LegacyPassword: "hunter2"}})
		require.NoError(t, err)
		a, err := auth.NewAuthenticator(store, hasher)
		require.NoError(t, err)
		return a, store
	}

	t.Run("successful login migrates the credential", func(t *testing.T) {
		a, store := newLegacy(t)

		require.True(t, a.Authenticate("alice", "hunter2"))

		rec, ok := store.Get("alice")
		require.True(t, ok)
		assert.Empty(t, rec.LegacyPassword)
		assert.NotEmpty(t, rec.PasswordHash)
		assert.NotEmpty(t, rec.PasswordSalt)

		valid, err := hasher.Verify("hunter2", rec.PasswordHash, rec.PasswordSalt)
		require.NoError(t, err)
		assert.True(t, valid)
	})

	t.Run("second login uses the migrated credential", func(t *testing.T) {
		a, store := newLegacy(t)

		require.True(t, a.Authenticate("alice", "hunter2"))
		assert.True(t, a.Authenticate("alice", "hunter2"))

		rec, _ := store.Get("alice")
		assert.False(t, rec.HasLegacyCredential())
	})

	t.Run("failed login leaves the plaintext untouched", func(t *testing.T) {
		a, store := newLegacy(t)

		assert.False(t, a.Authenticate("alice", "wrong"))

		rec, _ := store.Get("alice")
		assert.Equal(t, "hunter2", rec.LegacyPassword)
		assert.Empty(t, rec.PasswordHash)
	})
}
