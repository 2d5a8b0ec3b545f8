package handlers

import (
	"context"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/hakimkaamino/secun0c-bot/model"
	"github.com/hakimkaamino/secun0c-bot/platform"
)

const sweepWindow = time.Minute

// Sweep drops creation records older than any detection window.
func (h *Handler) Sweep(at time.Time) {
	h.created.sweep(at, sweepWindow)
}

// objectCreated registers an object made by an attributed actor. On breach the
// actor is neutralized and everything it made inside the window is removed.
func (h *Handler) objectCreated(ctx context.Context, guildID, actorID, objectID string, kind model.SignalKind, at time.Time, undo func(ctx context.Context, id string) error) {
	window := h.settings.Threshold(guildID, kind).Window
	k := creationKey{guildID: guildID, actorID: actorID, kind: kind}
	h.created.add(k, objectID, at, window)

	if h.record(model.Signal{GuildID: guildID, ActorID: actorID, Kind: kind, At: at}) {
		h.responder.Neutralize(ctx, guildID, actorID, "Mass "+describe(kind))
		removed := 0
		for _, id := range h.created.take(k, at, window) {
			if err := undo(ctx, id); err != nil && !platform.Gone(err) {
				logger.Warn().Err(err).Str("guild", guildID).Str("object", id).Msg("failed to undo creation")
				continue
			}
			removed++
		}
		revertsApplied.WithLabelValues(string(kind)).Add(float64(removed))
		h.logf(ctx, guildID, "MASS_CREATE_REVERTED", "Mass creation reverted", model.SeverityWarning,
			"<@%s> %s: removed %d object(s)", actorID, describe(kind), removed)
	}
}

// objectDeleted counts a deletion. A breach neutralizes the actor and starts
// a restore from the guild's snapshot.
func (h *Handler) objectDeleted(ctx context.Context, guildID, actorID string, kind model.SignalKind, at time.Time) {
	if h.record(model.Signal{GuildID: guildID, ActorID: actorID, Kind: kind, At: at}) {
		h.responder.Neutralize(ctx, guildID, actorID, "Mass "+describe(kind))
		h.restoreLater(guildID)
	}
}

func describe(kind model.SignalKind) string {
	switch kind {
	case model.SignalChannelCreate:
		return "channel creation"
	case model.SignalChannelDelete:
		return "channel deletion"
	case model.SignalRoleCreate:
		return "role creation"
	case model.SignalRoleDelete:
		return "role deletion"
	case model.SignalInviteCreate:
		return "invite creation"
	}
	return string(kind)
}

func (h *Handler) handleChannelCreate(ctx context.Context, ch *discordgo.Channel) {
	if ch == nil || ch.GuildID == "" {
		return
	}
	at := h.now()
	if isText(ch) {
		if h.settings.GuardWebhooks(ch.GuildID) {
			h.guardWebhooks(ctx, ch)
		}
		if _, err := h.raid.Enforce(ctx, ch); err != nil {
			logger.Warn().Err(err).Str("channel", ch.ID).Msg("raid enforcement on new channel failed")
		}
	}

	actor, ok := h.resolve(ctx, ch.GuildID, ch.ID, discordgo.AuditLogActionChannelCreate)
	if !ok {
		return
	}
	h.structureChanged(ctx, ch.GuildID, at)
	h.objectCreated(ctx, ch.GuildID, actor, ch.ID, model.SignalChannelCreate, at, func(ctx context.Context, id string) error {
		return h.client.DeleteChannel(ctx, id, "Anti-nuke: revert mass channel creation")
	})
}

func (h *Handler) handleChannelDelete(ctx context.Context, ch *discordgo.Channel) {
	if ch == nil || ch.GuildID == "" {
		return
	}
	at := h.now()
	actor, ok := h.resolve(ctx, ch.GuildID, ch.ID, discordgo.AuditLogActionChannelDelete)
	if !ok {
		return
	}
	h.structureChanged(ctx, ch.GuildID, at)
	h.objectDeleted(ctx, ch.GuildID, actor, model.SignalChannelDelete, at)
}

func (h *Handler) handleRoleCreate(ctx context.Context, guildID string, r *discordgo.Role) {
	if r == nil {
		return
	}
	at := h.now()
	h.roles.swap(guildID, r)
	actor, ok := h.resolve(ctx, guildID, r.ID, discordgo.AuditLogActionRoleCreate)
	if !ok {
		return
	}
	h.structureChanged(ctx, guildID, at)
	h.objectCreated(ctx, guildID, actor, r.ID, model.SignalRoleCreate, at, func(ctx context.Context, id string) error {
		return h.client.DeleteRole(ctx, guildID, id, "Anti-nuke: revert mass role creation")
	})
}

func (h *Handler) handleRoleDelete(ctx context.Context, guildID, roleID string) {
	at := h.now()
	h.roles.remove(guildID, roleID)
	actor, ok := h.resolve(ctx, guildID, roleID, discordgo.AuditLogActionRoleDelete)
	if !ok {
		return
	}
	h.structureChanged(ctx, guildID, at)
	h.objectDeleted(ctx, guildID, actor, model.SignalRoleDelete, at)
}
