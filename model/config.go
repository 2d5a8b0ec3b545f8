package model

import "time"

// Config holds the process-wide settings loaded at startup.
type Config struct {
	BotToken            string
	DatabasePath        string
	LogLevel            string
	MetricsListen       string
	RaidDuration        time.Duration
	AuditLookback       time.Duration
	GuardWebhooks       bool
	WebhookSweep        time.Duration
	DefaultLogChannelID string
	// Thresholds overrides DefaultThresholds process-wide.
	Thresholds map[SignalKind]Threshold
}

// GuildSettings are the recognised per-guild options. Empty fields fall back
// to the process configuration.
type GuildSettings struct {
	GuildID          string
	LogChannelID     string
	TrustedRoleID    string
	QuarantineRoleID string
	GuardWebhooks    *bool
	Thresholds       map[SignalKind]Threshold
}

// Setting keys as persisted in guild_settings.
const (
	SettingLogChannelID     = "log_channel_id"
	SettingTrustedRoleID    = "trusted_role_id"
	SettingQuarantineRoleID = "quarantine_role_id"
	SettingGuardWebhooks    = "guard_webhooks"
	SettingThresholdPrefix  = "threshold."
)
