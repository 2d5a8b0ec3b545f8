package database

import (
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

// Init opens the database and ensures all necessary tables exist.
func Init(dbPath string) (*sqlx.DB, error) {
	db, err := sqlx.Connect("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	// sqlite serialises writers; one connection avoids SQLITE_BUSY under bursts.
	db.SetMaxOpenConns(1)

	schema := []string{
		`CREATE TABLE IF NOT EXISTS guild_settings (
			guild_id TEXT NOT NULL,
			key TEXT NOT NULL,
			value TEXT NOT NULL,
			PRIMARY KEY (guild_id, key)
		);`,
		`CREATE TABLE IF NOT EXISTS whitelisted_bots (
			bot_id TEXT NOT NULL PRIMARY KEY,
			approved_at INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS violations (
			id TEXT NOT NULL PRIMARY KEY,
			guild_id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			reason TEXT NOT NULL,
			action TEXT DEFAULT '',
			timestamp INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_violations_user ON violations (user_id);`,
		`CREATE TABLE IF NOT EXISTS snapshots (
			guild_id TEXT NOT NULL PRIMARY KEY,
			captured_at INTEGER NOT NULL,
			data TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS raid_locks (
			guild_id TEXT NOT NULL PRIMARY KEY,
			locked_at DATETIME NOT NULL,
			until DATETIME NOT NULL
		);`,
	}
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to execute schema statement: %w", err)
		}
	}

	return db, nil
}
