package database

import (
	"fmt"

	"github.com/hakimkaamino/secun0c-bot/model"
	"github.com/jmoiron/sqlx"
)

// SaveRaidLock records the pending auto-deactivation of a guild, replacing
// any earlier one.
func SaveRaidLock(db *sqlx.DB, lock model.RaidLock) error {
	query := `INSERT OR REPLACE INTO raid_locks (guild_id, locked_at, until)
              VALUES (:guild_id, :locked_at, :until)`

	_, err := db.NamedExec(query, lock)
	if err != nil {
		return fmt.Errorf("failed to save raid lock for guild %s: %w", lock.GuildID, err)
	}
	return nil
}

// GetRaidLocks returns every persisted lock, due or not.
func GetRaidLocks(db *sqlx.DB) ([]model.RaidLock, error) {
	var locks []model.RaidLock
	err := db.Select(&locks, "SELECT guild_id, locked_at, until FROM raid_locks")
	if err != nil {
		return nil, fmt.Errorf("failed to get raid locks: %w", err)
	}
	return locks, nil
}

// DeleteRaidLock removes the lock of a guild. Missing rows are not an error.
func DeleteRaidLock(db *sqlx.DB, guildID string) error {
	_, err := db.Exec("DELETE FROM raid_locks WHERE guild_id = ?", guildID)
	if err != nil {
		return fmt.Errorf("failed to delete raid lock for guild %s: %w", guildID, err)
	}
	return nil
}
