package model

import "time"

// Severity grades a log record for the guild log channel and reporting.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityDanger  Severity = "danger"
	SeveritySuccess Severity = "success"
)

// LogRecord is one entry of the guild-facing audit trail.
type LogRecord struct {
	Time        time.Time `json:"timestamp"`
	GuildID     string    `json:"guild_id"`
	Type        string    `json:"type"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Severity    Severity  `json:"severity"`
}
