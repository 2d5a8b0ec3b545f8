package utils

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/hakimkaamino/secun0c-bot/model"
	"github.com/hakimkaamino/secun0c-bot/platform"
	"github.com/hakimkaamino/secun0c-bot/utils/logging"
	"github.com/rs/zerolog"
)

const recentLogSize = 100

// Names tried, in order, when a guild has no configured log channel.
var fallbackLogChannels = []string{"bot-logs", "logs", "security-logs"}

// LogChannels stores the per-guild log destination.
type LogChannels interface {
	LogChannelID(guildID string) string
	SetLogChannelID(guildID, channelID string) error
}

// LogSink is the guild-facing audit trail: every record is kept in a ring of
// the last 100, written to the process log and posted as an embed to the
// guild log channel when one can be found.
type LogSink struct {
	client   platform.Client
	channels LogChannels
	logger   zerolog.Logger

	mu     sync.Mutex
	recent []model.LogRecord
	next   int
	full   bool
}

func NewLogSink(client platform.Client, channels LogChannels) *LogSink {
	return &LogSink{
		client:   client,
		channels: channels,
		logger:   logging.New("audit"),
		recent:   make([]model.LogRecord, recentLogSize),
	}
}

func getColor(sev model.Severity) int {
	switch sev {
	case model.SeverityDanger:
		return 15158332 // Red
	case model.SeverityWarning:
		return 15105570 // Orange
	case model.SeveritySuccess:
		return 3066993 // Green
	default:
		return 3447003 // Blue
	}
}

// Log records rec and posts it. Delivery failures are logged, never returned.
func (s *LogSink) Log(ctx context.Context, rec model.LogRecord) {
	if rec.Time.IsZero() {
		rec.Time = time.Now().UTC()
	}
	if rec.Severity == "" {
		rec.Severity = model.SeverityInfo
	}
	s.remember(rec)

	event := s.logger.Info()
	switch rec.Severity {
	case model.SeverityDanger:
		event = s.logger.Error()
	case model.SeverityWarning:
		event = s.logger.Warn()
	}
	event.Str("guild", rec.GuildID).Str("type", rec.Type).Msg(rec.Description)

	channelID, ok := s.LogChannel(ctx, rec.GuildID)
	if !ok {
		return
	}
	embed := &discordgo.MessageEmbed{
		Title:       rec.Title,
		Description: rec.Description,
		Color:       getColor(rec.Severity),
		Timestamp:   rec.Time.Format(time.RFC3339),
		Footer:      &discordgo.MessageEmbedFooter{Text: rec.Type},
	}
	if err := s.client.SendEmbed(ctx, channelID, embed); err != nil {
		s.logger.Warn().Err(err).Str("guild", rec.GuildID).Str("channel", channelID).Msg("failed to post log embed")
	}
}

// Logf is Log for a formatted description.
func (s *LogSink) Logf(ctx context.Context, guildID, typ, title string, sev model.Severity, format string, args ...any) {
	s.Log(ctx, model.LogRecord{
		GuildID:     guildID,
		Type:        typ,
		Title:       title,
		Description: fmt.Sprintf(format, args...),
		Severity:    sev,
	})
}

// LogChannel returns the guild's log channel: the configured one, else the
// first text channel with a well-known name, which is then persisted.
func (s *LogSink) LogChannel(ctx context.Context, guildID string) (string, bool) {
	if id := s.channels.LogChannelID(guildID); id != "" {
		return id, true
	}
	channels, err := s.client.Channels(ctx, guildID)
	if err != nil {
		s.logger.Warn().Err(err).Str("guild", guildID).Msg("failed to list channels for log channel lookup")
		return "", false
	}
	for _, name := range fallbackLogChannels {
		for _, ch := range channels {
			if ch.Type != discordgo.ChannelTypeGuildText || ch.Name != name {
				continue
			}
			if err := s.channels.SetLogChannelID(guildID, ch.ID); err != nil {
				s.logger.Warn().Err(err).Str("guild", guildID).Msg("failed to persist log channel")
			}
			return ch.ID, true
		}
	}
	return "", false
}

func (s *LogSink) remember(rec model.LogRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recent[s.next] = rec
	s.next = (s.next + 1) % len(s.recent)
	if s.next == 0 {
		s.full = true
	}
}

// Recent returns the retained records, oldest first.
func (s *LogSink) Recent() []model.LogRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.full {
		return append([]model.LogRecord(nil), s.recent[:s.next]...)
	}
	out := make([]model.LogRecord, 0, len(s.recent))
	out = append(out, s.recent[s.next:]...)
	return append(out, s.recent[:s.next]...)
}
