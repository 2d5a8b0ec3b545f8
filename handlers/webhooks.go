package handlers

import (
	"context"

	"github.com/bwmarrin/discordgo"
	"github.com/hakimkaamino/secun0c-bot/model"
	"github.com/hakimkaamino/secun0c-bot/platform"
)

func (h *Handler) handleWebhooksUpdate(ctx context.Context, guildID, channelID string) {
	if guildID == "" || !h.settings.GuardWebhooks(guildID) {
		return
	}
	channels, err := h.client.Channels(ctx, guildID)
	if err != nil {
		logger.Warn().Err(err).Str("guild", guildID).Msg("failed to list channels")
		return
	}
	for _, ch := range channels {
		if ch.ID == channelID {
			h.guardWebhooks(ctx, ch)
			return
		}
	}
}

// GuardWebhooks removes the webhooks of a guild's first text channels and
// denies webhook management to the base role there. It returns the number of
// webhooks removed.
func (h *Handler) GuardWebhooks(ctx context.Context, guildID string, limit int) int {
	channels, err := h.client.Channels(ctx, guildID)
	if err != nil {
		logger.Warn().Err(err).Str("guild", guildID).Msg("failed to list channels")
		return 0
	}
	removed, seen := 0, 0
	for _, ch := range channels {
		if !isText(ch) {
			continue
		}
		if seen == limit {
			break
		}
		seen++
		removed += h.guardWebhooks(ctx, ch)
	}
	return removed
}

// guardWebhooks deletes every webhook of ch and denies the base role
// ManageWebhooks. ch is updated to reflect the new overwrite.
func (h *Handler) guardWebhooks(ctx context.Context, ch *discordgo.Channel) int {
	hooks, err := h.client.Webhooks(ctx, ch.ID)
	if err != nil {
		logger.Warn().Err(err).Str("channel", ch.ID).Msg("failed to list webhooks")
		return 0
	}
	removed := 0
	for _, hook := range hooks {
		err := h.client.DeleteWebhook(ctx, hook.ID, "Anti-nuke: webhook guard")
		if err != nil && !platform.Gone(err) {
			logger.Warn().Err(err).Str("webhook", hook.ID).Msg("failed to delete webhook")
			continue
		}
		removed++
	}
	if removed > 0 {
		webhooksRemoved.Add(float64(removed))
		h.logf(ctx, ch.GuildID, "WEBHOOK_REMOVED", "Webhooks removed", model.SeverityWarning,
			"Removed %d webhook(s) from <#%s>", removed, ch.ID)
	}

	allow, deny, _ := baseOverwrite(ch)
	if deny&discordgo.PermissionManageWebhooks != 0 {
		return removed
	}
	allow &^= discordgo.PermissionManageWebhooks
	deny |= discordgo.PermissionManageWebhooks
	if err := h.client.SetRolePermission(ctx, ch.ID, ch.GuildID, allow, deny, "Anti-nuke: deny webhook management"); err != nil {
		logger.Warn().Err(err).Str("channel", ch.ID).Msg("failed to deny webhook management")
		return removed
	}
	setBaseOverwrite(ch, allow, deny)
	return removed
}
