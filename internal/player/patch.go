// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 EmberMUD Contributors

package player

import "time"

// Patch is a partial update to a record. Nil fields are left untouched.
// Flags, Inventory and Equipment are replaced wholesale, never unioned.
// The username and credential are not patchable; the credential changes
// only through Store.SetCredential.
type Patch struct {
	Health       *int
	MaxHealth    *int
	Mana         *int
	MaxMana      *int
	Level        *int
	Experience   *int
	Strength     *int
	Dexterity    *int
	Constitution *int
	Intelligence *int
	Wisdom       *int

	Flags     *[]string
	Inventory *[]string
	Currency  *Currency
	Equipment *map[string]string
	RoomID    *string

	InCombat   *bool
	Resting    *bool
	Meditating *bool

	LastLogin       *time.Time
	AddPlayTimeSecs int64
}

func (p Patch) apply(rec *Record) {
	if p.Health != nil {
		rec.Stats.Health = *p.Health
	}
	if p.MaxHealth != nil {
		rec.Stats.MaxHealth = *p.MaxHealth
	}
	if p.Mana != nil {
		rec.Stats.Mana = *p.Mana
	}
	if p.MaxMana != nil {
		rec.Stats.MaxMana = *p.MaxMana
	}
	if p.Level != nil {
		rec.Stats.Level = *p.Level
	}
	if p.Experience != nil {
		rec.Stats.Experience = *p.Experience
	}
	if p.Strength != nil {
		rec.Stats.Strength = *p.Strength
	}
	if p.Dexterity != nil {
		rec.Stats.Dexterity = *p.Dexterity
	}
	if p.Constitution != nil {
		rec.Stats.Constitution = *p.Constitution
	}
	if p.Intelligence != nil {
		rec.Stats.Intelligence = *p.Intelligence
	}
	if p.Wisdom != nil {
		rec.Stats.Wisdom = *p.Wisdom
	}
	if p.Flags != nil {
		rec.Flags = append([]string(nil), (*p.Flags)...)
	}
	if p.Inventory != nil {
		rec.Inventory = append([]string(nil), (*p.Inventory)...)
	}
	if p.Currency != nil {
		rec.Currency = *p.Currency
	}
	if p.Equipment != nil {
		eq := make(map[string]string, len(*p.Equipment))
		for slot, item := range *p.Equipment {
			eq[slot] = item
		}
		rec.Equipment = eq
	}
	if p.RoomID != nil {
		rec.RoomID = *p.RoomID
	}
	if p.InCombat != nil {
		rec.InCombat = *p.InCombat
	}
	if p.Resting != nil {
		rec.Resting = *p.Resting
	}
	if p.Meditating != nil {
		rec.Meditating = *p.Meditating
	}
	if p.LastLogin != nil {
		rec.LastLogin = *p.LastLogin
	}
	if p.AddPlayTimeSecs > 0 {
		rec.PlayTimeSecs += p.AddPlayTimeSecs
	}
}
