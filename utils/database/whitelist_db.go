package database

import (
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

// GetWhitelistedBots returns all approved automation accounts.
func GetWhitelistedBots(db *sqlx.DB) ([]string, error) {
	var ids []string
	if err := db.Select(&ids, "SELECT bot_id FROM whitelisted_bots"); err != nil {
		return nil, fmt.Errorf("failed to load whitelisted bots: %w", err)
	}
	return ids, nil
}

func AddWhitelistedBot(db *sqlx.DB, botID string) error {
	_, err := db.Exec("INSERT OR REPLACE INTO whitelisted_bots (bot_id, approved_at) VALUES (?, ?)", botID, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to whitelist bot %s: %w", botID, err)
	}
	return nil
}

func RemoveWhitelistedBot(db *sqlx.DB, botID string) error {
	_, err := db.Exec("DELETE FROM whitelisted_bots WHERE bot_id = ?", botID)
	if err != nil {
		return fmt.Errorf("failed to remove bot %s from whitelist: %w", botID, err)
	}
	return nil
}
