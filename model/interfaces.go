package model

// ThresholdSource resolves the effective threshold of a kind for a guild.
type ThresholdSource interface {
	Threshold(guildID string, kind SignalKind) Threshold
}
