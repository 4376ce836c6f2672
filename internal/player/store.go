// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 EmberMUD Contributors

package player

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/samber/oops"
)

// Saver receives the full record collection after every mutation. Save
// failures are the saver's problem; the in-memory mutation has already
// happened and is never rolled back.
type Saver interface {
	SaveAll(records []*Record)
}

// PasswordHasher produces a hash+salt credential pair from a plaintext
// password. Used at registration and when migrating legacy credentials
// during bulk load.
type PasswordHasher interface {
	Hash(password string) (hash, salt string, err error)
}

// Store is the in-memory canonical collection of player records, keyed by
// normalized username. All returned records are defensive copies.
type Store struct {
	mu      sync.RWMutex
	records map[string]*Record
	saver   Saver
	hasher  PasswordHasher
}

// NewStore creates an empty store. saver may be nil (mutations are then not
// persisted); hasher may be nil (legacy credentials are then left in place
// at bulk load for lazy migration at authentication time).
func NewStore(saver Saver, hasher PasswordHasher) *Store {
	return &Store{
		records: make(map[string]*Record),
		saver:   saver,
		hasher:  hasher,
	}
}

// Get retrieves a copy of a record by username (case-insensitive).
func (s *Store) Get(username string) (*Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[NormalizeUsername(username)]
	if !ok {
		return nil, false
	}
	return rec.Clone(), true
}

// Exists reports whether a record exists for the username.
func (s *Store) Exists(username string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.records[NormalizeUsername(username)]
	return ok
}

// List returns copies of all records, ordered by username.
func (s *Store) List() []*Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listLocked()
}

func (s *Store) listLocked() []*Record {
	result := make([]*Record, 0, len(s.records))
	for _, rec := range s.records {
		result = append(result, rec.Clone())
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Username < result[j].Username
	})
	return result
}

// Create registers a new player with default stats. The username is
// validated and rejected if already taken (case-insensitive). The returned
// record is a copy.
func (s *Store) Create(username, password string) (*Record, error) {
	if err := ValidateUsername(username); err != nil {
		return nil, err
	}

	var hash, salt string
	if s.hasher != nil {
		var err error
		hash, salt, err = s.hasher.Hash(password)
		if err != nil {
			return nil, oops.Code("PLAYER_CREATE_FAILED").
				With("operation", "hash password").
				With("username", username).
				Wrap(err)
		}
	}

	s.mu.Lock()
	key := NormalizeUsername(username)
	if _, exists := s.records[key]; exists {
		s.mu.Unlock()
		return nil, oops.Code("PLAYER_DUPLICATE_USERNAME").
			With("username", key).
			Errorf("username %q is already taken", key)
	}

	rec := NewRecord(username)
	rec.PasswordHash = hash
	rec.PasswordSalt = salt
	s.records[key] = rec

	snapshot := s.listLocked()
	s.mu.Unlock()

	s.persist(snapshot)
	return rec.Clone(), nil
}

// Update merges a patch into an existing record and triggers persistence.
// Returns false without side effects if the record does not exist.
func (s *Store) Update(username string, patch Patch) bool {
	s.mu.Lock()
	rec, ok := s.records[NormalizeUsername(username)]
	if !ok {
		s.mu.Unlock()
		return false
	}

	patch.apply(rec)
	rec.ClampMana()

	snapshot := s.listLocked()
	s.mu.Unlock()

	s.persist(snapshot)
	return true
}

// SetCredential replaces the record's credential with a hash+salt pair and
// removes any legacy plaintext value. Returns false if the record does not
// exist.
func (s *Store) SetCredential(username, hash, salt string) bool {
	s.mu.Lock()
	rec, ok := s.records[NormalizeUsername(username)]
	if !ok {
		s.mu.Unlock()
		return false
	}

	rec.PasswordHash = hash
	rec.PasswordSalt = salt
	rec.LegacyPassword = ""

	snapshot := s.listLocked()
	s.mu.Unlock()

	s.persist(snapshot)
	return true
}

// Delete removes a record. Returns false if it does not exist.
func (s *Store) Delete(username string) bool {
	s.mu.Lock()
	key := NormalizeUsername(username)
	if _, ok := s.records[key]; !ok {
		s.mu.Unlock()
		return false
	}
	delete(s.records, key)

	snapshot := s.listLocked()
	s.mu.Unlock()

	s.persist(snapshot)
	return true
}

// LoadAll replaces the whole collection with records loaded from a backend.
// Incoming records may be partial: date fields and missing containers are
// backfilled, mana is clamped, and legacy plaintext credentials are migrated
// to hash+salt pairs in the same pass. The swap is atomic: on any validation
// error (bad username shape, duplicate) nothing is applied, and no reader
// ever observes a half-populated store.
func (s *Store) LoadAll(records []*Record) error {
	next := make(map[string]*Record, len(records))
	for _, in := range records {
		rec := in.Clone()
		rec.Normalize()
		if err := ValidateUsername(rec.Username); err != nil {
			return oops.Code("PLAYER_LOAD_FAILED").
				With("username", rec.Username).
				Wrap(err)
		}
		if _, dup := next[rec.Username]; dup {
			return oops.Code("PLAYER_DUPLICATE_USERNAME").
				With("username", rec.Username).
				Errorf("duplicate username %q in loaded records", rec.Username)
		}
		if rec.HasLegacyCredential() && s.hasher != nil {
			hash, salt, err := s.hasher.Hash(rec.LegacyPassword)
			if err != nil {
				slog.Warn("legacy password migration failed, keeping plaintext for lazy migration",
					"username", rec.Username,
					"error", err,
				)
			} else {
				rec.PasswordHash = hash
				rec.PasswordSalt = salt
				rec.LegacyPassword = ""
			}
		}
		next[rec.Username] = rec
	}

	s.mu.Lock()
	s.records = next
	s.mu.Unlock()

	slog.Info("player store loaded", "players", len(next))
	return nil
}

// Len returns the number of records.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// AddPlayTime adds elapsed seconds to the player's monotonic play-time
// accumulator. Negative durations are ignored.
func (s *Store) AddPlayTime(username string, d time.Duration) bool {
	if d < 0 {
		return s.Exists(username)
	}
	secs := int64(d / time.Second)
	return s.Update(username, Patch{AddPlayTimeSecs: secs})
}

func (s *Store) persist(snapshot []*Record) {
	if s.saver == nil {
		return
	}
	s.saver.SaveAll(snapshot)
}
