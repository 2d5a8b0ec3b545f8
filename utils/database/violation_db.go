package database

import (
	"fmt"
	"time"

	"github.com/hakimkaamino/secun0c-bot/model"
	"github.com/jmoiron/sqlx"
)

// AddViolation appends a violation record.
func AddViolation(db *sqlx.DB, v model.Violation) error {
	query := `INSERT INTO violations (id, guild_id, user_id, reason, action, timestamp)
			  VALUES (:id, :guild_id, :user_id, :reason, :action, :timestamp)`
	if _, err := db.NamedExec(query, v); err != nil {
		return fmt.Errorf("failed to insert violation record: %w", err)
	}
	return nil
}

// GetViolationCounts returns the number of violations per user across all guilds.
func GetViolationCounts(db *sqlx.DB) (map[string]int, error) {
	rows, err := db.Query("SELECT user_id, COUNT(*) FROM violations GROUP BY user_id")
	if err != nil {
		return nil, fmt.Errorf("failed to get violation counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var userID string
		var count int
		if err := rows.Scan(&userID, &count); err != nil {
			return nil, fmt.Errorf("failed to scan violation count row: %w", err)
		}
		counts[userID] = count
	}
	return counts, rows.Err()
}

// GetViolationsByUserID retrieves violations for a user, optionally filtered by a start time.
func GetViolationsByUserID(db *sqlx.DB, userID string, since *time.Time) ([]model.Violation, error) {
	var records []model.Violation
	query := "SELECT * FROM violations WHERE user_id = ?"
	args := []interface{}{userID}

	if since != nil {
		query += " AND timestamp >= ?"
		args = append(args, since.Unix())
	}
	query += " ORDER BY timestamp DESC"

	if err := db.Select(&records, query, args...); err != nil {
		return nil, fmt.Errorf("failed to get violations for user %s: %w", userID, err)
	}
	return records, nil
}
