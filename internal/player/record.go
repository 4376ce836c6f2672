// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 EmberMUD Contributors

// Package player holds the canonical player records and the in-memory store
// that owns them.
package player

import (
	"regexp"
	"strings"
	"time"

	"github.com/samber/oops"
)

// Username validation constraints.
const (
	MinUsernameLength = 3
	MaxUsernameLength = 20
)

// Default stat values seeded at registration.
const (
	DefaultHealth    = 100
	DefaultMaxHealth = 100
	DefaultMana      = 100
	DefaultMaxMana   = 100
	DefaultLevel     = 1
	DefaultAttribute = 10
	DefaultRoomID    = "town_square"
	StartingGold     = 20
)

// usernameRegex matches usernames that:
// - Start with a letter (a-z, A-Z)
// - Contain only letters, numbers, and underscores
var usernameRegex = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_]*$`)

// Stats is a player's stat block. Mana is always clamped to [0, MaxMana].
type Stats struct {
	Health       int `json:"health"`
	MaxHealth    int `json:"maxHealth"`
	Mana         int `json:"mana"`
	MaxMana      int `json:"maxMana"`
	Level        int `json:"level"`
	Experience   int `json:"experience"`
	Strength     int `json:"strength"`
	Dexterity    int `json:"dexterity"`
	Constitution int `json:"constitution"`
	Intelligence int `json:"intelligence"`
	Wisdom       int `json:"wisdom"`
}

// Currency is a player's money, split into three integer denominations.
type Currency struct {
	Gold   int `json:"gold"`
	Silver int `json:"silver"`
	Copper int `json:"copper"`
}

// Record is the canonical record of a registered player.
//
// Username is immutable and already normalized. The credential is either a
// PasswordHash+PasswordSalt pair or, for accounts imported from older saves,
// a LegacyPassword plaintext value pending migration.
type Record struct {
	Username       string            `json:"username"`
	PasswordHash   string            `json:"passwordHash,omitempty"`
	PasswordSalt   string            `json:"passwordSalt,omitempty"`
	LegacyPassword string            `json:"password,omitempty"`
	Stats          Stats             `json:"stats"`
	Flags          []string          `json:"flags"`
	Inventory      []string          `json:"inventory"`
	Currency       Currency          `json:"currency"`
	Equipment      map[string]string `json:"equipment"`
	RoomID         string            `json:"roomId"`
	InCombat       bool              `json:"inCombat,omitempty"`
	Resting        bool              `json:"isResting,omitempty"`
	Meditating     bool              `json:"isMeditating,omitempty"`
	JoinedAt       time.Time         `json:"joinedAt"`
	LastLogin      time.Time         `json:"lastLogin"`
	PlayTimeSecs   int64             `json:"playTimeSeconds"`
}

// NewRecord creates a record with default stats for a freshly registered
// player. The username must already be validated.
func NewRecord(username string) *Record {
	now := time.Now()
	return &Record{
		Username: NormalizeUsername(username),
		Stats: Stats{
			Health:       DefaultHealth,
			MaxHealth:    DefaultMaxHealth,
			Mana:         DefaultMana,
			MaxMana:      DefaultMaxMana,
			Level:        DefaultLevel,
			Strength:     DefaultAttribute,
			Dexterity:    DefaultAttribute,
			Constitution: DefaultAttribute,
			Intelligence: DefaultAttribute,
			Wisdom:       DefaultAttribute,
		},
		Flags:     []string{},
		Inventory: []string{},
		Currency:  Currency{Gold: StartingGold},
		Equipment: map[string]string{},
		RoomID:    DefaultRoomID,
		JoinedAt:  now,
		LastLogin: now,
	}
}

// NormalizeUsername lowercases and trims a username for use as a store key.
func NormalizeUsername(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}

// ValidateUsername validates a username against registration rules.
// Username requirements:
// - Length: MinUsernameLength to MaxUsernameLength characters
// - Must start with a letter
// - Can contain only letters (a-z, A-Z), numbers (0-9), and underscores (_)
func ValidateUsername(username string) error {
	if username == "" {
		return oops.Code("PLAYER_INVALID_USERNAME").Errorf("username cannot be empty")
	}
	if len(username) < MinUsernameLength {
		return oops.Code("PLAYER_INVALID_USERNAME").
			With("min", MinUsernameLength).
			Errorf("username must be at least %d characters", MinUsernameLength)
	}
	if len(username) > MaxUsernameLength {
		return oops.Code("PLAYER_INVALID_USERNAME").
			With("max", MaxUsernameLength).
			Errorf("username must be at most %d characters", MaxUsernameLength)
	}
	if !usernameRegex.MatchString(username) {
		return oops.Code("PLAYER_INVALID_USERNAME").
			Errorf("username must start with a letter and contain only letters, numbers, and underscores")
	}
	return nil
}

// Clone returns a deep copy of the record. Mutating the copy never affects
// the original, so two connections can each hold one without cross-talk.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	cp := *r
	cp.Flags = append([]string(nil), r.Flags...)
	cp.Inventory = append([]string(nil), r.Inventory...)
	cp.Equipment = make(map[string]string, len(r.Equipment))
	for slot, item := range r.Equipment {
		cp.Equipment[slot] = item
	}
	return &cp
}

// ClampMana forces Mana into [0, MaxMana].
func (r *Record) ClampMana() {
	if r.Stats.Mana < 0 {
		r.Stats.Mana = 0
	}
	if r.Stats.Mana > r.Stats.MaxMana {
		r.Stats.Mana = r.Stats.MaxMana
	}
}

// Normalize backfills defaults on a possibly-partial record loaded from an
// external source: zero dates, missing inventory/currency containers, and an
// unset mana pool. The username is normalized in place.
func (r *Record) Normalize() {
	r.Username = NormalizeUsername(r.Username)
	now := time.Now()
	if r.JoinedAt.IsZero() {
		r.JoinedAt = now
	}
	if r.LastLogin.IsZero() {
		r.LastLogin = r.JoinedAt
	}
	if r.Flags == nil {
		r.Flags = []string{}
	}
	if r.Inventory == nil {
		r.Inventory = []string{}
	}
	if r.Equipment == nil {
		r.Equipment = map[string]string{}
	}
	if r.RoomID == "" {
		r.RoomID = DefaultRoomID
	}
	if r.Stats.MaxHealth == 0 {
		r.Stats.MaxHealth = DefaultMaxHealth
	}
	if r.Stats.MaxMana == 0 {
		r.Stats.MaxMana = DefaultMaxMana
		if r.Stats.Mana == 0 {
			r.Stats.Mana = DefaultMana
		}
	}
	if r.Stats.Level == 0 {
		r.Stats.Level = DefaultLevel
	}
	r.ClampMana()
}

// HasLegacyCredential reports whether the record still carries a plaintext
// password pending migration to a hash+salt pair.
func (r *Record) HasLegacyCredential() bool {
	return r.LegacyPassword != ""
}
