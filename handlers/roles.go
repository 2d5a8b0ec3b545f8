package handlers

import (
	"context"

	"github.com/bwmarrin/discordgo"
	"github.com/hakimkaamino/secun0c-bot/model"
)

// DangerousPermissions are the capabilities whose grant is remediated on the
// first occurrence, and which get a joining bot banned outright.
const DangerousPermissions int64 = discordgo.PermissionAdministrator |
	discordgo.PermissionManageGuild |
	discordgo.PermissionManageRoles |
	discordgo.PermissionManageChannels |
	discordgo.PermissionBanMembers |
	discordgo.PermissionKickMembers |
	discordgo.PermissionManageWebhooks

func (h *Handler) handleRoleUpdate(ctx context.Context, guildID string, after *discordgo.Role) {
	if after == nil {
		return
	}
	before, known := h.roles.swap(guildID, after)
	if !known {
		logger.Debug().Str("guild", guildID).Str("role", after.ID).Msg("no previous state for role, skipping")
		return
	}

	gained := after.Permissions &^ before.Permissions & DangerousPermissions
	raised := after.Position > before.Position && h.aboveSelf(ctx, guildID, before.Position, after.Position)
	if gained == 0 && !raised {
		return
	}
	actor, ok := h.resolve(ctx, guildID, after.ID, discordgo.AuditLogActionRoleUpdate)
	if !ok {
		return
	}

	if gained != 0 {
		h.record(model.Signal{GuildID: guildID, ActorID: actor, Kind: model.SignalDangerousPermission, At: h.now()})
		h.responder.Neutralize(ctx, guildID, actor, "Dangerous permission granted to role "+after.Name)
		perms := before.Permissions
		if h.revert(ctx, guildID, model.SignalDangerousPermission, func() error {
			_, err := h.client.EditRole(ctx, guildID, after.ID, &discordgo.RoleParams{Permissions: &perms}, "Anti-nuke: revert dangerous permission grant")
			return err
		}) {
			restored := *after
			restored.Permissions = perms
			h.roles.swap(guildID, &restored)
		}
	}

	if raised {
		h.record(model.Signal{GuildID: guildID, ActorID: actor, Kind: model.SignalHierarchyAttack, At: h.now()})
		h.responder.Neutralize(ctx, guildID, actor, "Role hierarchy attack on "+after.Name)
		if h.revert(ctx, guildID, model.SignalHierarchyAttack, func() error {
			return h.client.MoveRole(ctx, guildID, after.ID, before.Position, "Anti-nuke: revert hierarchy attack")
		}) {
			if r, ok := h.roles.get(guildID, after.ID); ok {
				r.Position = before.Position
				h.roles.swap(guildID, &r)
			}
		}
	}
}

// aboveSelf reports whether a role moved from at or below the automation
// account's highest role to above it.
func (h *Handler) aboveSelf(ctx context.Context, guildID string, from, to int) bool {
	top, ok := h.topPosition(ctx, guildID, h.client.SelfID())
	if !ok {
		return false
	}
	return from <= top && to > top
}
