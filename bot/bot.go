// Package bot wires the engine together and exposes its operations to the
// command and dashboard layers.
package bot

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/hakimkaamino/secun0c-bot/config"
	"github.com/hakimkaamino/secun0c-bot/handlers"
	"github.com/hakimkaamino/secun0c-bot/model"
	"github.com/hakimkaamino/secun0c-bot/platform"
	"github.com/hakimkaamino/secun0c-bot/raidmode"
	"github.com/hakimkaamino/secun0c-bot/responder"
	"github.com/hakimkaamino/secun0c-bot/snapshot"
	"github.com/hakimkaamino/secun0c-bot/tracker"
	"github.com/hakimkaamino/secun0c-bot/trust"
	"github.com/hakimkaamino/secun0c-bot/utils"
	"github.com/hakimkaamino/secun0c-bot/utils/logging"
	"github.com/jmoiron/sqlx"
)

var logger = logging.New("bot")

const intents = discordgo.IntentsGuilds |
	discordgo.IntentsGuildMembers |
	discordgo.IntentsGuildBans |
	discordgo.IntentsGuildEmojis |
	discordgo.IntentsGuildWebhooks |
	discordgo.IntentsGuildInvites |
	discordgo.IntentsGuildMessages |
	discordgo.IntentsDirectMessages |
	discordgo.IntentMessageContent

type Bot struct {
	Session *discordgo.Session
	DB      *sqlx.DB
	Client  platform.Client

	Settings  *config.Store
	Tracker   *tracker.Tracker
	Trust     *trust.Registry
	Responder *responder.Responder
	Raid      *raidmode.Controller
	Snapshots *snapshot.Store
	Logs      *utils.LogSink
	Handler   *handlers.Handler

	config    atomic.Pointer[model.Config]
	scheduler *Scheduler
	started   time.Time
	closeOnce sync.Once
}

// New creates a bot connected through a discordgo session. The session keeps
// state so update events carry the previous version of what changed.
func New(cfg *model.Config, db *sqlx.DB) (*Bot, error) {
	dg, err := discordgo.New("Bot " + cfg.BotToken)
	if err != nil {
		return nil, err
	}
	dg.Identify.Intents = intents
	dg.StateEnabled = true
	dg.State.TrackRoles = true
	dg.State.TrackChannels = true
	dg.State.TrackMembers = true
	dg.State.TrackEmojis = true

	b := newBot(platform.NewSession(dg), cfg, db)
	b.Session = dg
	return b, nil
}

// newBot wires every component around client. db may be nil.
func newBot(client platform.Client, cfg *model.Config, db *sqlx.DB) *Bot {
	b := &Bot{DB: db, Client: client, started: time.Now()}
	b.config.Store(cfg)

	b.Settings = config.NewStore(db, cfg)
	b.Logs = utils.NewLogSink(client, b.Settings)
	b.Tracker = tracker.New(b.Settings)
	b.Trust = trust.New(client, b.Settings, db)
	b.Responder = responder.New(client, b.Trust, b.Logs, b.Settings, responder.NewLedger(db))
	b.Raid = raidmode.New(client, b.Logs, db, cfg.RaidDuration)
	b.Snapshots = snapshot.New(client, b.Logs, db, nil)
	b.Handler = handlers.New(handlers.Deps{
		Client:    client,
		Settings:  b.Settings,
		Tracker:   b.Tracker,
		Trust:     b.Trust,
		Responder: b.Responder,
		Raid:      b.Raid,
		Snapshots: b.Snapshots,
		Sink:      b.Logs,
		Lookback:  cfg.AuditLookback,
	})
	b.scheduler = NewScheduler(b)
	return b
}

func (b *Bot) GetConfig() *model.Config {
	return b.config.Load()
}

// Load reads the persisted settings, whitelist and violation counters.
func (b *Bot) Load() error {
	if err := b.Settings.LoadAll(); err != nil {
		return fmt.Errorf("failed to load guild settings: %w", err)
	}
	if err := b.Trust.LoadWhitelist(); err != nil {
		return fmt.Errorf("failed to load bot whitelist: %w", err)
	}
	if err := b.Responder.Ledger().Load(); err != nil {
		return fmt.Errorf("failed to load violations: %w", err)
	}
	return nil
}

// Guilds lists the guilds the bot can see.
func (b *Bot) Guilds() []string {
	if b.Session != nil && b.Session.State != nil {
		b.Session.State.RLock()
		defer b.Session.State.RUnlock()
		ids := make([]string, 0, len(b.Session.State.Guilds))
		for _, g := range b.Session.State.Guilds {
			ids = append(ids, g.ID)
		}
		return ids
	}
	return b.Settings.Guilds()
}

func (b *Bot) Close() {
	b.closeOnce.Do(func() {
		logger.Info().Msg("Gracefully shutting down.")
		b.scheduler.Stop()
		// No new events are dispatched once the session is closed, so the
		// handlers drain before the raid timers stop.
		if b.Session != nil {
			if err := b.Session.Close(); err != nil {
				logger.Warn().Err(err).Msg("failed to close session")
			}
		}
		b.Handler.Wait()
		b.Raid.Close()
	})
}

// logf sends a record to the guild-facing audit trail.
func (b *Bot) logf(ctx context.Context, guildID, typ, title string, sev model.Severity, format string, args ...any) {
	b.Logs.Logf(ctx, guildID, typ, title, sev, format, args...)
}
