package handlers

import (
	"context"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/hakimkaamino/secun0c-bot/model"
	"github.com/hakimkaamino/secun0c-bot/platform"
)

func (h *Handler) handleMemberUpdate(ctx context.Context, before, after *discordgo.Member) {
	if before == nil || after == nil || after.User == nil {
		return
	}
	guildID, userID := after.GuildID, after.User.ID
	at := h.now()

	if before.Nick != after.Nick {
		if actor, ok := h.resolve(ctx, guildID, userID, discordgo.AuditLogActionMemberUpdate); ok &&
			h.record(model.Signal{GuildID: guildID, ActorID: actor, Kind: model.SignalNicknameRename, At: at}) {
			h.responder.Neutralize(ctx, guildID, actor, "Member rename spam")
			h.revert(ctx, guildID, model.SignalNicknameRename, func() error {
				return h.client.SetNickname(ctx, guildID, userID, before.Nick, "Anti-nuke: revert rename spam")
			})
		}
	}

	if !timedOut(before, at) && timedOut(after, at) {
		if actor, ok := h.resolve(ctx, guildID, userID, discordgo.AuditLogActionMemberUpdate); ok &&
			h.record(model.Signal{GuildID: guildID, ActorID: actor, Kind: model.SignalTimeoutApplied, At: at}) {
			h.responder.Neutralize(ctx, guildID, actor, "Member timeout spam")
			h.revert(ctx, guildID, model.SignalTimeoutApplied, func() error {
				return h.client.ClearTimeout(ctx, guildID, userID, "Anti-nuke: revert timeout spam")
			})
		}
	}

	added := addedRoles(before.Roles, after.Roles)
	if len(added) == 0 {
		return
	}
	actor, ok := h.resolve(ctx, guildID, userID, discordgo.AuditLogActionMemberRoleUpdate)
	if !ok {
		return
	}
	previous := append([]string(nil), before.Roles...)
	if h.permissions(ctx, guildID, added)&DangerousPermissions != 0 {
		h.record(model.Signal{GuildID: guildID, ActorID: actor, Kind: model.SignalDangerousPermission, At: at})
		h.responder.Neutralize(ctx, guildID, actor, "Dangerous role granted to "+userID)
		h.revert(ctx, guildID, model.SignalDangerousPermission, func() error {
			return h.client.SetMemberRoles(ctx, guildID, userID, previous, "Anti-nuke: revert dangerous role grant")
		})
		return
	}
	if h.record(model.Signal{GuildID: guildID, ActorID: actor, Kind: model.SignalMassRoleGrant, At: at}) {
		h.responder.Neutralize(ctx, guildID, actor, "Mass role assignment spam")
		h.revert(ctx, guildID, model.SignalMassRoleGrant, func() error {
			return h.client.SetMemberRoles(ctx, guildID, userID, previous, "Anti-nuke: revert role spam")
		})
	}
}

func timedOut(m *discordgo.Member, at time.Time) bool {
	return m.CommunicationDisabledUntil != nil && m.CommunicationDisabledUntil.After(at)
}

func addedRoles(before, after []string) []string {
	had := make(map[string]struct{}, len(before))
	for _, id := range before {
		had[id] = struct{}{}
	}
	var added []string
	for _, id := range after {
		if _, ok := had[id]; !ok {
			added = append(added, id)
		}
	}
	return added
}

// handleMemberAdd screens joining bots. A bot that is not whitelisted is
// banned when it arrives with a dangerous capability and quarantined
// otherwise.
func (h *Handler) handleMemberAdd(ctx context.Context, m *discordgo.Member) {
	if m == nil || m.User == nil || !m.User.Bot || m.User.ID == h.client.SelfID() {
		return
	}
	guildID, botID := m.GuildID, m.User.ID
	if h.trust.IsWhitelisted(botID) {
		logger.Info().Str("guild", guildID).Str("bot", botID).Msg("whitelisted bot joined")
		return
	}

	if perms := h.permissions(ctx, guildID, m.Roles); perms&DangerousPermissions != 0 {
		err := h.client.Ban(ctx, guildID, botID, "ANTI-NUKE: unauthorized bot with dangerous permissions")
		if err != nil && !platform.Gone(err) {
			logger.Error().Err(err).Str("guild", guildID).Str("bot", botID).Msg("failed to ban unauthorized bot")
			h.logf(ctx, guildID, "BOT_BAN_FAILED", "Bot ban failed", model.SeverityWarning,
				"Could not ban <@%s>: %v", botID, err)
			return
		}
		botsScreened.WithLabelValues("banned").Inc()
		h.logf(ctx, guildID, "BOT_BANNED", "Unauthorized bot banned", model.SeverityDanger,
			"<@%s> joined with dangerous permissions and was banned", botID)
		return
	}

	if err := h.responder.Quarantine(ctx, guildID, botID, "Unapproved bot"); err != nil {
		logger.Error().Err(err).Str("guild", guildID).Str("bot", botID).Msg("failed to quarantine bot")
		return
	}
	botsScreened.WithLabelValues("quarantined").Inc()
}
