// Package handlers turns platform events into signals: it attributes each
// change to an actor, drops exempt actors, feeds the tracker and remediates
// on breach.
package handlers

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/hakimkaamino/secun0c-bot/config"
	"github.com/hakimkaamino/secun0c-bot/model"
	"github.com/hakimkaamino/secun0c-bot/platform"
	"github.com/hakimkaamino/secun0c-bot/raidmode"
	"github.com/hakimkaamino/secun0c-bot/responder"
	"github.com/hakimkaamino/secun0c-bot/snapshot"
	"github.com/hakimkaamino/secun0c-bot/tracker"
	"github.com/hakimkaamino/secun0c-bot/trust"
	"github.com/hakimkaamino/secun0c-bot/utils/logging"
	"github.com/puzpuzpuz/xsync/v3"
)

var logger = logging.New("handlers")

const (
	eventTimeout   = 2 * time.Minute
	restoreTimeout = 10 * time.Minute
)

// Sink receives the guild-facing log records.
type Sink interface {
	Log(ctx context.Context, rec model.LogRecord)
}

// Deps are the components a Handler drives.
type Deps struct {
	Client    platform.Client
	Settings  *config.Store
	Tracker   *tracker.Tracker
	Trust     *trust.Registry
	Responder *responder.Responder
	Raid      *raidmode.Controller
	Snapshots *snapshot.Store
	Sink      Sink
	// Lookback bounds audit-log attribution; zero selects DefaultLookback.
	Lookback time.Duration
}

type Handler struct {
	client    platform.Client
	settings  *config.Store
	tracker   *tracker.Tracker
	trust     *trust.Registry
	responder *responder.Responder
	raid      *raidmode.Controller
	snapshots *snapshot.Store
	sink      Sink
	attr      *Attributor

	roles   *roleCache
	emojis  *xsync.MapOf[string, map[string]string]
	created *creationBuffer

	now     func() time.Time
	timeout time.Duration
	// bg tracks restores started from event handlers.
	bg sync.WaitGroup
}

func New(d Deps) *Handler {
	return &Handler{
		client:    d.Client,
		settings:  d.Settings,
		tracker:   d.Tracker,
		trust:     d.Trust,
		responder: d.Responder,
		raid:      d.Raid,
		snapshots: d.Snapshots,
		sink:      d.Sink,
		attr:      NewAttributor(d.Client, d.Lookback),
		roles:     newRoleCache(),
		emojis:    xsync.NewMapOf[string, map[string]string](),
		created:   newCreationBuffer(),
		now:       time.Now,
		timeout:   eventTimeout,
	}
}

// Register subscribes the handler to the session's event stream. discordgo
// runs every handler call in its own goroutine.
func (h *Handler) Register(s *discordgo.Session) {
	s.AddHandler(func(_ *discordgo.Session, e *discordgo.GuildCreate) {
		h.guard("guild_create", e.ID, func(ctx context.Context) { h.handleGuildCreate(ctx, e.Guild) })
	})
	s.AddHandler(func(_ *discordgo.Session, e *discordgo.GuildMemberAdd) {
		h.guard("member_add", e.GuildID, func(ctx context.Context) { h.handleMemberAdd(ctx, e.Member) })
	})
	s.AddHandler(func(_ *discordgo.Session, e *discordgo.GuildMemberUpdate) {
		h.guard("member_update", e.GuildID, func(ctx context.Context) { h.handleMemberUpdate(ctx, e.BeforeUpdate, e.Member) })
	})
	s.AddHandler(func(_ *discordgo.Session, e *discordgo.GuildRoleCreate) {
		h.guard("role_create", e.GuildID, func(ctx context.Context) { h.handleRoleCreate(ctx, e.GuildID, e.Role) })
	})
	s.AddHandler(func(_ *discordgo.Session, e *discordgo.GuildRoleUpdate) {
		h.guard("role_update", e.GuildID, func(ctx context.Context) { h.handleRoleUpdate(ctx, e.GuildID, e.Role) })
	})
	s.AddHandler(func(_ *discordgo.Session, e *discordgo.GuildRoleDelete) {
		h.guard("role_delete", e.GuildID, func(ctx context.Context) { h.handleRoleDelete(ctx, e.GuildID, e.RoleID) })
	})
	s.AddHandler(func(_ *discordgo.Session, e *discordgo.ChannelCreate) {
		h.guard("channel_create", e.GuildID, func(ctx context.Context) { h.handleChannelCreate(ctx, e.Channel) })
	})
	s.AddHandler(func(_ *discordgo.Session, e *discordgo.ChannelUpdate) {
		h.guard("channel_update", e.GuildID, func(ctx context.Context) { h.handleChannelUpdate(ctx, e.BeforeUpdate, e.Channel) })
	})
	s.AddHandler(func(_ *discordgo.Session, e *discordgo.ChannelDelete) {
		h.guard("channel_delete", e.GuildID, func(ctx context.Context) { h.handleChannelDelete(ctx, e.Channel) })
	})
	s.AddHandler(func(_ *discordgo.Session, e *discordgo.GuildEmojisUpdate) {
		h.guard("emojis_update", e.GuildID, func(ctx context.Context) { h.handleEmojisUpdate(ctx, e.GuildID, e.Emojis) })
	})
	s.AddHandler(func(_ *discordgo.Session, e *discordgo.InviteCreate) {
		h.guard("invite_create", e.GuildID, func(ctx context.Context) { h.handleInviteCreate(ctx, e.GuildID, e.Invite) })
	})
	s.AddHandler(func(_ *discordgo.Session, e *discordgo.MessageCreate) {
		h.guard("message_create", e.GuildID, func(ctx context.Context) { h.handleMessage(ctx, e.Message) })
	})
	s.AddHandler(func(_ *discordgo.Session, e *discordgo.WebhooksUpdate) {
		h.guard("webhooks_update", e.GuildID, func(ctx context.Context) { h.handleWebhooksUpdate(ctx, e.GuildID, e.ChannelID) })
	})
}

// guard runs one unit of event work under a bounded context. A panic or
// failure stays inside the event.
func (h *Handler) guard(event, guildID string, fn func(ctx context.Context)) {
	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			handlerPanics.WithLabelValues(event).Inc()
			logger.Error().Str("event", event).Str("guild", guildID).
				Interface("panic", r).Bytes("stack", debug.Stack()).Msg("event handler panicked")
		}
	}()
	eventsHandled.WithLabelValues(event).Inc()
	fn(ctx)
}

// Wait blocks until restores started by handlers have finished.
func (h *Handler) Wait() {
	h.bg.Wait()
}

// resolve attributes a change to an actor and drops it when the actor is
// exempt. ok is false when the event must not be processed further.
func (h *Handler) resolve(ctx context.Context, guildID, targetID string, actions ...discordgo.AuditLogAction) (string, bool) {
	actor, err := h.attr.Actor(ctx, guildID, targetID, actions...)
	if err != nil {
		if errors.Is(err, platform.ErrNotAttributed) {
			eventsDropped.WithLabelValues("not_attributed").Inc()
			logger.Debug().Str("guild", guildID).Str("target", targetID).Msg("event not attributed, dropping")
		} else {
			logger.Warn().Err(err).Str("guild", guildID).Str("target", targetID).Msg("attribution failed")
		}
		return "", false
	}
	return actor, h.accept(ctx, guildID, actor)
}

// accept reports whether actions by actorID are subject to detection.
func (h *Handler) accept(ctx context.Context, guildID, actorID string) bool {
	if h.trust.Exempt(ctx, guildID, actorID) {
		eventsDropped.WithLabelValues("exempt").Inc()
		return false
	}
	return true
}

// record feeds one signal to the tracker and reports a breach.
func (h *Handler) record(sig model.Signal) bool {
	if !h.tracker.Record(sig.GuildID, sig.ActorID, sig.Kind, sig.At) {
		return false
	}
	signalsBreached.WithLabelValues(string(sig.Kind)).Inc()
	logger.Info().Str("guild", sig.GuildID).Str("actor", sig.ActorID).Str("kind", string(sig.Kind)).Msg("threshold breached")
	return true
}

// structureChanged feeds the guild-wide create/delete counter and escalates
// to raid mode when it breaches.
func (h *Handler) structureChanged(ctx context.Context, guildID string, at time.Time) {
	if !h.record(model.Signal{GuildID: guildID, Kind: model.SignalGuildStructure, At: at}) {
		return
	}
	if _, err := h.raid.Trigger(ctx, guildID); err != nil {
		logger.Error().Err(err).Str("guild", guildID).Msg("failed to trigger raid mode")
	}
}

// restoreLater starts a snapshot restore detached from the event context.
func (h *Handler) restoreLater(guildID string) {
	if _, ok := h.snapshots.Get(guildID); !ok {
		return
	}
	h.bg.Add(1)
	go func() {
		defer h.bg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), restoreTimeout)
		defer cancel()
		if _, err := h.snapshots.Restore(ctx, guildID); err != nil {
			logger.Error().Err(err).Str("guild", guildID).Msg("restore after mass deletion failed")
		}
	}()
}

func (h *Handler) logf(ctx context.Context, guildID, typ, title string, sev model.Severity, format string, args ...any) {
	h.sink.Log(ctx, model.LogRecord{
		Time:        h.now(),
		GuildID:     guildID,
		Type:        typ,
		Title:       title,
		Description: fmt.Sprintf(format, args...),
		Severity:    sev,
	})
}

func (h *Handler) handleGuildCreate(ctx context.Context, g *discordgo.Guild) {
	if g == nil || g.Unavailable {
		return
	}
	h.trust.SetOwner(g.ID, g.OwnerID)
	h.roles.prime(g.ID, g.Roles)
	h.primeEmojis(g.ID, g.Emojis)
	logger.Info().Str("guild", g.ID).Int("roles", len(g.Roles)).Int("emojis", len(g.Emojis)).Msg("guild available")
}
