package handlers

import (
	"context"

	"github.com/bwmarrin/discordgo"
	"github.com/hakimkaamino/secun0c-bot/model"
)

func isText(ch *discordgo.Channel) bool {
	return ch.Type == discordgo.ChannelTypeGuildText || ch.Type == discordgo.ChannelTypeGuildNews
}

// baseOverwrite returns the base role overwrite of a channel.
func baseOverwrite(ch *discordgo.Channel) (allow, deny int64, ok bool) {
	if ch == nil {
		return 0, 0, false
	}
	for _, o := range ch.PermissionOverwrites {
		if o.ID == ch.GuildID && o.Type == discordgo.PermissionOverwriteTypeRole {
			return o.Allow, o.Deny, true
		}
	}
	return 0, 0, false
}

// setBaseOverwrite updates the local copy of ch after a permission write.
func setBaseOverwrite(ch *discordgo.Channel, allow, deny int64) {
	for _, o := range ch.PermissionOverwrites {
		if o.ID == ch.GuildID && o.Type == discordgo.PermissionOverwriteTypeRole {
			o.Allow, o.Deny = allow, deny
			return
		}
	}
	ch.PermissionOverwrites = append(ch.PermissionOverwrites, &discordgo.PermissionOverwrite{
		ID: ch.GuildID, Type: discordgo.PermissionOverwriteTypeRole, Allow: allow, Deny: deny,
	})
}

func sendDenied(ch *discordgo.Channel) bool {
	_, deny, _ := baseOverwrite(ch)
	return deny&discordgo.PermissionSendMessages != 0
}

func (h *Handler) handleChannelUpdate(ctx context.Context, before, after *discordgo.Channel) {
	if after == nil || after.GuildID == "" || !isText(after) {
		return
	}
	guildID := after.GuildID
	locked := h.raid.State(guildID).State == model.RaidLocked
	if locked {
		// Enforcement covers every change while locked, attributed or not.
		if _, err := h.raid.Enforce(ctx, after); err != nil {
			logger.Warn().Err(err).Str("channel", after.ID).Msg("raid enforcement failed")
		}
	}
	if before == nil {
		return
	}
	at := h.now()

	if before.Name != after.Name {
		if actor, ok := h.resolve(ctx, guildID, after.ID, discordgo.AuditLogActionChannelUpdate); ok &&
			h.record(model.Signal{GuildID: guildID, ActorID: actor, Kind: model.SignalChannelRename, At: at}) {
			h.responder.Neutralize(ctx, guildID, actor, "Channel rename spam")
			h.revert(ctx, guildID, model.SignalChannelRename, func() error {
				_, err := h.client.EditChannel(ctx, after.ID, &discordgo.ChannelEdit{Name: before.Name}, "Anti-nuke: revert rename spam")
				return err
			})
		}
	}

	if before.NSFW != after.NSFW {
		if actor, ok := h.resolve(ctx, guildID, after.ID, discordgo.AuditLogActionChannelUpdate); ok &&
			h.record(model.Signal{GuildID: guildID, ActorID: actor, Kind: model.SignalNSFWToggle, At: at}) {
			h.responder.Neutralize(ctx, guildID, actor, "NSFW toggle spam")
			nsfw := before.NSFW
			h.revert(ctx, guildID, model.SignalNSFWToggle, func() error {
				_, err := h.client.EditChannel(ctx, after.ID, &discordgo.ChannelEdit{NSFW: &nsfw}, "Anti-nuke: revert NSFW toggle spam")
				return err
			})
		}
	}

	if !locked && !sendDenied(before) && sendDenied(after) {
		if actor, ok := h.resolve(ctx, guildID, after.ID,
			discordgo.AuditLogActionChannelOverwriteUpdate, discordgo.AuditLogActionChannelOverwriteCreate); ok &&
			h.record(model.Signal{GuildID: guildID, ActorID: actor, Kind: model.SignalLockPermission, At: at}) {
			h.responder.Neutralize(ctx, guildID, actor, "Channel lock spam")
			h.revert(ctx, guildID, model.SignalLockPermission, func() error {
				return h.unlockChannel(ctx, after)
			})
		}
	}
}

// unlockChannel clears the send deny of the base role, leaving the channel
// to inherit the permission.
func (h *Handler) unlockChannel(ctx context.Context, ch *discordgo.Channel) error {
	allow, deny, _ := baseOverwrite(ch)
	deny &^= discordgo.PermissionSendMessages
	const reason = "Anti-nuke: revert channel lock spam"
	if allow == 0 && deny == 0 {
		return h.client.DeleteRolePermission(ctx, ch.ID, ch.GuildID, reason)
	}
	return h.client.SetRolePermission(ctx, ch.ID, ch.GuildID, allow, deny, reason)
}

// revert runs a compensating change and records its outcome.
func (h *Handler) revert(ctx context.Context, guildID string, kind model.SignalKind, fn func() error) bool {
	if err := fn(); err != nil {
		revertErrors.WithLabelValues(string(kind)).Inc()
		logger.Warn().Err(err).Str("guild", guildID).Str("kind", string(kind)).Msg("revert failed")
		return false
	}
	revertsApplied.WithLabelValues(string(kind)).Inc()
	return true
}
