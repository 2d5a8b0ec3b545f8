package model

import "time"

// RaidState is the guild-wide lockdown state.
type RaidState int

const (
	RaidNormal RaidState = iota
	RaidLocked
)

func (s RaidState) String() string {
	if s == RaidLocked {
		return "locked"
	}
	return "normal"
}

// RaidStatus is a read-only view of one guild's raid state.
type RaidStatus struct {
	GuildID string
	State   RaidState
	Since   time.Time
	// Until is zero when no auto-deactivation is pending.
	Until time.Time
}
