package handlers

import (
	"context"

	"github.com/bwmarrin/discordgo"
	"github.com/hakimkaamino/secun0c-bot/model"
)

// handleInviteCreate counts invites per inviter. The event names the inviter
// so no audit lookup is needed.
func (h *Handler) handleInviteCreate(ctx context.Context, guildID string, inv *discordgo.Invite) {
	if inv == nil || inv.Inviter == nil || guildID == "" {
		return
	}
	actor := inv.Inviter.ID
	if !h.accept(ctx, guildID, actor) {
		return
	}
	h.objectCreated(ctx, guildID, actor, inv.Code, model.SignalInviteCreate, h.now(), func(ctx context.Context, code string) error {
		return h.client.DeleteInvite(ctx, code, "Anti-nuke: delete spam invite")
	})
}
