// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 EmberMUD Contributors

// Package postgres implements the relational persistence backend.
package postgres

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/samber/oops"

	"github.com/embermud/embermud/internal/player"
)

// poolIface is the subset of pgxpool.Pool the repository needs. It lets
// pgxmock stand in for a real pool in tests.
type poolIface interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// PlayerRepository persists player records in PostgreSQL, one full row per
// player keyed by username.
type PlayerRepository struct {
	pool poolIface
}

// NewPlayerRepository creates a PlayerRepository.
func NewPlayerRepository(pool poolIface) *PlayerRepository {
	return &PlayerRepository{pool: pool}
}

// LoadAll reads every player row.
func (r *PlayerRepository) LoadAll(ctx context.Context) ([]*player.Record, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT username, password_hash, password_salt, legacy_password,
		       stats, flags, inventory, gold, silver, copper,
		       equipment, room_id, in_combat, resting, meditating,
		       joined_at, last_login, play_time_seconds
		FROM players
		ORDER BY username
	`)
	if err != nil {
		return nil, oops.Code("PLAYER_LOAD_FAILED").
			With("operation", "query players").
			Wrap(err)
	}
	defer rows.Close()

	var records []*player.Record
	for rows.Next() {
		rec, err := scanPlayer(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, oops.Code("PLAYER_LOAD_FAILED").
			With("operation", "iterate players").
			Wrap(err)
	}
	return records, nil
}

// UpsertOne inserts or fully replaces one player row.
func (r *PlayerRepository) UpsertOne(ctx context.Context, rec *player.Record) error {
	statsJSON, err := json.Marshal(rec.Stats)
	if err != nil {
		return oops.Code("PLAYER_UPSERT_FAILED").
			With("operation", "marshal stats").
			With("username", rec.Username).
			Wrap(err)
	}
	flagsJSON, err := json.Marshal(rec.Flags)
	if err != nil {
		return oops.Code("PLAYER_UPSERT_FAILED").
			With("operation", "marshal flags").
			With("username", rec.Username).
			Wrap(err)
	}
	inventoryJSON, err := json.Marshal(rec.Inventory)
	if err != nil {
		return oops.Code("PLAYER_UPSERT_FAILED").
			With("operation", "marshal inventory").
			With("username", rec.Username).
			Wrap(err)
	}
	equipmentJSON, err := json.Marshal(rec.Equipment)
	if err != nil {
		return oops.Code("PLAYER_UPSERT_FAILED").
			With("operation", "marshal equipment").
			With("username", rec.Username).
			Wrap(err)
	}

	var legacy *string
	if rec.LegacyPassword != "" {
		legacy = &rec.LegacyPassword
	}

	_, err = r.pool.Exec(ctx, `
		INSERT INTO players (
			username, password_hash, password_salt, legacy_password,
			stats, flags, inventory, gold, silver, copper,
			equipment, room_id, in_combat, resting, meditating,
			joined_at, last_login, play_time_seconds
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
		ON CONFLICT (username) DO UPDATE SET
			password_hash = EXCLUDED.password_hash,
			password_salt = EXCLUDED.password_salt,
			legacy_password = EXCLUDED.legacy_password,
			stats = EXCLUDED.stats,
			flags = EXCLUDED.flags,
			inventory = EXCLUDED.inventory,
			gold = EXCLUDED.gold,
			silver = EXCLUDED.silver,
			copper = EXCLUDED.copper,
			equipment = EXCLUDED.equipment,
			room_id = EXCLUDED.room_id,
			in_combat = EXCLUDED.in_combat,
			resting = EXCLUDED.resting,
			meditating = EXCLUDED.meditating,
			joined_at = EXCLUDED.joined_at,
			last_login = EXCLUDED.last_login,
			play_time_seconds = EXCLUDED.play_time_seconds
	`,
		rec.Username,
		rec.PasswordHash,
		rec.PasswordSalt,
		legacy,
		statsJSON,
		flagsJSON,
		inventoryJSON,
		rec.Currency.Gold,
		rec.Currency.Silver,
		rec.Currency.Copper,
		equipmentJSON,
		rec.RoomID,
		rec.InCombat,
		rec.Resting,
		rec.Meditating,
		rec.JoinedAt,
		rec.LastLogin,
		rec.PlayTimeSecs,
	)
	if err != nil {
		return oops.Code("PLAYER_UPSERT_FAILED").
			With("operation", "upsert player").
			With("username", rec.Username).
			Wrap(err)
	}
	return nil
}

func scanPlayer(row pgx.Row) (*player.Record, error) {
	var (
		rec           player.Record
		legacy        *string
		statsJSON     []byte
		flagsJSON     []byte
		inventoryJSON []byte
		equipmentJSON []byte
		joinedAt      time.Time
		lastLogin     time.Time
	)

	err := row.Scan(
		&rec.Username,
		&rec.PasswordHash,
		&rec.PasswordSalt,
		&legacy,
		&statsJSON,
		&flagsJSON,
		&inventoryJSON,
		&rec.Currency.Gold,
		&rec.Currency.Silver,
		&rec.Currency.Copper,
		&equipmentJSON,
		&rec.RoomID,
		&rec.InCombat,
		&rec.Resting,
		&rec.Meditating,
		&joinedAt,
		&lastLogin,
		&rec.PlayTimeSecs,
	)
	if err != nil {
		return nil, oops.Code("PLAYER_SCAN_FAILED").
			With("operation", "scan player row").
			Wrap(err)
	}

	if legacy != nil {
		rec.LegacyPassword = *legacy
	}
	if err := json.Unmarshal(statsJSON, &rec.Stats); err != nil {
		return nil, oops.Code("PLAYER_SCAN_FAILED").
			With("operation", "unmarshal stats").
			With("username", rec.Username).
			Wrap(err)
	}
	if err := json.Unmarshal(flagsJSON, &rec.Flags); err != nil {
		return nil, oops.Code("PLAYER_SCAN_FAILED").
			With("operation", "unmarshal flags").
			With("username", rec.Username).
			Wrap(err)
	}
	if err := json.Unmarshal(inventoryJSON, &rec.Inventory); err != nil {
		return nil, oops.Code("PLAYER_SCAN_FAILED").
			With("operation", "unmarshal inventory").
			With("username", rec.Username).
			Wrap(err)
	}
	if err := json.Unmarshal(equipmentJSON, &rec.Equipment); err != nil {
		return nil, oops.Code("PLAYER_SCAN_FAILED").
			With("operation", "unmarshal equipment").
			With("username", rec.Username).
			Wrap(err)
	}
	rec.JoinedAt = joinedAt
	rec.LastLogin = lastLogin
	return &rec, nil
}
