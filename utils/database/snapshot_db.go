package database

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hakimkaamino/secun0c-bot/model"
	"github.com/jmoiron/sqlx"
)

// SaveSnapshot overwrites the single stored snapshot of a guild.
func SaveSnapshot(db *sqlx.DB, snap *model.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to encode snapshot for guild %s: %w", snap.GuildID, err)
	}
	_, err = db.Exec("INSERT OR REPLACE INTO snapshots (guild_id, captured_at, data) VALUES (?, ?, ?)",
		snap.GuildID, snap.CapturedAt.Unix(), string(data))
	if err != nil {
		return fmt.Errorf("failed to save snapshot for guild %s: %w", snap.GuildID, err)
	}
	return nil
}

// GetSnapshot loads the stored snapshot of a guild. It returns nil, nil when none exists.
func GetSnapshot(db *sqlx.DB, guildID string) (*model.Snapshot, error) {
	var data string
	err := db.Get(&data, "SELECT data FROM snapshots WHERE guild_id = ?", guildID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get snapshot for guild %s: %w", guildID, err)
	}
	var snap model.Snapshot
	if err := json.Unmarshal([]byte(data), &snap); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot for guild %s: %w", guildID, err)
	}
	return &snap, nil
}
