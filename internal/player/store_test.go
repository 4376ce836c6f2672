// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 EmberMUD Contributors

package player_test

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/embermud/embermud/internal/player"
)

// spySaver records every snapshot it receives.
type spySaver struct {
	mu    sync.Mutex
	calls [][]*player.Record
}

func (s *spySaver) SaveAll(records []*player.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, records)
}

func (s *spySaver) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

func (s *spySaver) last() []*player.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.calls) == 0 {
		return nil
	}
	return s.calls[len(s.calls)-1]
}

// fakeHasher produces deterministic credentials so tests can assert on them.
type fakeHasher struct {
	fail bool
}

func (h *fakeHasher) Hash(password string) (string, string, error) {
	if h.fail {
		return "", "", errors.New("hasher down")
	}
	return "hash:" + password, "salt:" + password, nil
}

func newTestStore() (*player.Store, *spySaver) {
	saver := &spySaver{}
	return player.NewStore(saver, &fakeHasher{}), saver
}

func TestStore_Create(t *testing.T) {
	t.Run("registers with defaults and persists", func(t *testing.T) {
		store, saver := newTestStore()

		rec, err := store.Create("Alice", "secret")
		require.NoError(t, err)

		assert.Equal(t, "alice", rec.Username)
		assert.Equal(t, "hash:secret", rec.PasswordHash)
		assert.Equal(t, "salt:secret", rec.PasswordSalt)
		assert.Empty(t, rec.LegacyPassword)
		assert.Equal(t, player.DefaultHealth, rec.Stats.Health)
		assert.Equal(t, 1, saver.count())
		require.Len(t, saver.last(), 1)
	})

	t.Run("rejects invalid username", func(t *testing.T) {
		store, saver := newTestStore()

		_, err := store.Create("1bad", "secret")
		assert.Error(t, err)
		assert.Zero(t, saver.count())
	})

	t.Run("rejects duplicate case-insensitively", func(t *testing.T) {
		store, _ := newTestStore()

		_, err := store.Create("alice", "secret")
		require.NoError(t, err)

		_, err = store.Create("ALICE", "other")
		assert.Error(t, err)
		assert.Equal(t, 1, store.Len())
	})

	t.Run("propagates hasher failure", func(t *testing.T) {
		store := player.NewStore(nil, &fakeHasher{fail: true})

		_, err := store.Create("alice", "secret")
		assert.Error(t, err)
		assert.Zero(t, store.Len())
	})
}

func TestStore_Get(t *testing.T) {
	store, _ := newTestStore()
	_, err := store.Create("alice", "secret")
	require.NoError(t, err)

	t.Run("case-insensitive lookup", func(t *testing.T) {
		rec, ok := store.Get("ALICE")
		require.True(t, ok)
		assert.Equal(t, "alice", rec.Username)
	})

	t.Run("returns a defensive copy", func(t *testing.T) {
		rec, ok := store.Get("alice")
		require.True(t, ok)
		rec.Stats.Health = 1
		rec.Flags = append(rec.Flags, "mutated")

		again, ok := store.Get("alice")
		require.True(t, ok)
		assert.Equal(t, player.DefaultHealth, again.Stats.Health)
		assert.Empty(t, again.Flags)
	})

	t.Run("missing record", func(t *testing.T) {
		_, ok := store.Get("nobody")
		assert.False(t, ok)
	})
}

func TestStore_Update(t *testing.T) {
	t.Run("merges only set fields", func(t *testing.T) {
		store, saver := newTestStore()
		_, err := store.Create("alice", "secret")
		require.NoError(t, err)

		health := 50
		ok := store.Update("alice", player.Patch{Health: &health})
		require.True(t, ok)

		rec, _ := store.Get("alice")
		assert.Equal(t, 50, rec.Stats.Health)
		assert.Equal(t, player.DefaultMana, rec.Stats.Mana)
		assert.Equal(t, player.StartingGold, rec.Currency.Gold)
		assert.Equal(t, 2, saver.count())
	})

	t.Run("flags are replaced wholesale", func(t *testing.T) {
		store, _ := newTestStore()
		_, err := store.Create("alice", "secret")
		require.NoError(t, err)

		flags := []string{"admin", "builder"}
		require.True(t, store.Update("alice", player.Patch{Flags: &flags}))

		flags = []string{"banned"}
		require.True(t, store.Update("alice", player.Patch{Flags: &flags}))

		rec, _ := store.Get("alice")
		assert.Equal(t, []string{"banned"}, rec.Flags)
	})

	t.Run("mana is clamped to max", func(t *testing.T) {
		store, _ := newTestStore()
		_, err := store.Create("alice", "secret")
		require.NoError(t, err)

		mana := 9000
		require.True(t, store.Update("alice", player.Patch{Mana: &mana}))

		rec, _ := store.Get("alice")
		assert.Equal(t, rec.Stats.MaxMana, rec.Stats.Mana)
	})

	t.Run("unknown player is a no-op", func(t *testing.T) {
		store, saver := newTestStore()

		health := 50
		assert.False(t, store.Update("ghost", player.Patch{Health: &health}))
		assert.Zero(t, saver.count())
	})
}

func TestStore_SetCredential(t *testing.T) {
	store, _ := newTestStore()
	_, err := store.Create("alice", "secret")
	require.NoError(t, err)

	require.True(t, store.SetCredential("alice", "newhash", "newsalt"))

	rec, _ := store.Get("alice")
	assert.Equal(t, "newhash", rec.PasswordHash)
	assert.Equal(t, "newsalt", rec.PasswordSalt)
	assert.Empty(t, rec.LegacyPassword)

	assert.False(t, store.SetCredential("ghost", "h", "s"))
}

func TestStore_Delete(t *testing.T) {
	store, saver := newTestStore()
	_, err := store.Create("alice", "secret")
	require.NoError(t, err)

	assert.True(t, store.Delete("ALICE"))
	assert.False(t, store.Exists("alice"))
	assert.Equal(t, 2, saver.count())
	assert.Empty(t, saver.last())

	assert.False(t, store.Delete("alice"))
}

func TestStore_List(t *testing.T) {
	store, _ := newTestStore()
	for _, name := range []string{"mallory", "alice", "bob"} {
		_, err := store.Create(name, "secret")
		require.NoError(t, err)
	}

	records := store.List()
	require.Len(t, records, 3)
	assert.Equal(t, "alice", records[0].Username)
	assert.Equal(t, "bob", records[1].Username)
	assert.Equal(t, "mallory", records[2].Username)
}

func TestStore_LoadAll(t *testing.T) {
	t.Run("normalizes partial records", func(t *testing.T) {
		store, _ := newTestStore()

		err := store.LoadAll([]*player.Record{{Username: "Alice"}})
		require.NoError(t, err)

		rec, ok := store.Get("alice")
		require.True(t, ok)
		assert.Equal(t, player.DefaultRoomID, rec.RoomID)
		assert.NotNil(t, rec.Inventory)
		assert.False(t, rec.JoinedAt.IsZero())
	})

	t.Run("migrates legacy plaintext credentials", func(t *testing.T) {
		store, _ := newTestStore()

		err := store.LoadAll([]*player.Record{{Username: "alice", LegacyPassword: "hunter2"}})
		require.NoError(t, err)

		rec, _ := store.Get("alice")
		assert.Empty(t, rec.LegacyPassword)
		assert.Equal(t, "hash:hunter2", rec.PasswordHash)
		assert.Equal(t, "salt:hunter2", rec.PasswordSalt)
	})

	t.Run("keeps plaintext when hashing fails", func(t *testing.T) {
		store := player.NewStore(nil, &fakeHasher{fail: true})

		err := store.LoadAll([]*player.Record{{Username: "alice", LegacyPassword: "hunter2"}})
		require.NoError(t, err)

		rec, _ := store.Get("alice")
		assert.Equal(t, "hunter2", rec.LegacyPassword)
		assert.Empty(t, rec.PasswordHash)
	})

	t.Run("rejects duplicates without applying anything", func(t *testing.T) {
		store, _ := newTestStore()
		_, err := store.Create("existing", "secret")
		require.NoError(t, err)

		err = store.LoadAll([]*player.Record{
			{Username: "alice"},
			{Username: "ALICE"},
		})
		assert.Error(t, err)
		assert.True(t, store.Exists("existing"))
		assert.False(t, store.Exists("alice"))
	})

	t.Run("does not alias caller records", func(t *testing.T) {
		store, _ := newTestStore()
		in := &player.Record{Username: "alice"}

		require.NoError(t, store.LoadAll([]*player.Record{in}))
		in.Stats.Health = 1

		rec, _ := store.Get("alice")
		assert.NotEqual(t, 1, rec.Stats.Health)
	})
}

func TestStore_AddPlayTime(t *testing.T) {
	store, _ := newTestStore()
	_, err := store.Create("alice", "secret")
	require.NoError(t, err)

	require.True(t, store.AddPlayTime("alice", 90*time.Second))
	require.True(t, store.AddPlayTime("alice", 30*time.Second))
	require.True(t, store.AddPlayTime("alice", -5*time.Second))

	rec, _ := store.Get("alice")
	assert.Equal(t, int64(120), rec.PlayTimeSecs)

	assert.False(t, store.AddPlayTime("ghost", time.Second))
}

func TestStore_ConcurrentAccess(t *testing.T) {
	store, _ := newTestStore()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			name := fmt.Sprintf("player_%d", n)
			if _, err := store.Create(name, "secret"); err != nil {
				t.Errorf("create %s: %v", name, err)
				return
			}
			health := n
			store.Update(name, player.Patch{Health: &health})
			store.Get(name)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 10, store.Len())
}
