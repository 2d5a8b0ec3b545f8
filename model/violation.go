package model

// Violation is one remediation or recorded abuse against an actor.
// The database table is named 'violations'.
type Violation struct {
	ID        string `db:"id"` // uuid
	GuildID   string `db:"guild_id"`
	UserID    string `db:"user_id"`
	Reason    string `db:"reason"`
	Action    string `db:"action"` // ban, kick, delete
	Timestamp int64  `db:"timestamp"`
}
