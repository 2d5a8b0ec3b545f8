package database

import (
	"fmt"

	"github.com/jmoiron/sqlx"
)

// SettingRow is one persisted per-guild option.
type SettingRow struct {
	GuildID string `db:"guild_id"`
	Key     string `db:"key"`
	Value   string `db:"value"`
}

// LoadGuildSettings returns every persisted per-guild option.
func LoadGuildSettings(db *sqlx.DB) ([]SettingRow, error) {
	var rows []SettingRow
	if err := db.Select(&rows, "SELECT guild_id, key, value FROM guild_settings"); err != nil {
		return nil, fmt.Errorf("failed to load guild settings: %w", err)
	}
	return rows, nil
}

// SaveGuildSetting inserts or replaces one option.
func SaveGuildSetting(db *sqlx.DB, guildID, key, value string) error {
	_, err := db.NamedExec(`
		INSERT INTO guild_settings (guild_id, key, value)
		VALUES (:guild_id, :key, :value)
		ON CONFLICT(guild_id, key) DO UPDATE SET value = excluded.value;`,
		SettingRow{GuildID: guildID, Key: key, Value: value})
	if err != nil {
		return fmt.Errorf("failed to save setting %s for guild %s: %w", key, guildID, err)
	}
	return nil
}

// DeleteGuildSetting removes one option so it falls back to the default.
func DeleteGuildSetting(db *sqlx.DB, guildID, key string) error {
	_, err := db.Exec("DELETE FROM guild_settings WHERE guild_id = ? AND key = ?", guildID, key)
	if err != nil {
		return fmt.Errorf("failed to delete setting %s for guild %s: %w", key, guildID, err)
	}
	return nil
}
