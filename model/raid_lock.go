package model

import "time"

// RaidLock is a pending auto-deactivation persisted so a restart can lift
// the lockdown. The database table is named 'raid_locks'.
type RaidLock struct {
	GuildID  string    `db:"guild_id"`
	LockedAt time.Time `db:"locked_at"`
	Until    time.Time `db:"until"`
}
