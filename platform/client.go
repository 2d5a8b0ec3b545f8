// Package platform is the boundary to the chat platform: the REST operations
// the engine consumes, the error taxonomy they map onto, and a discordgo
// backed implementation.
package platform

import (
	"context"

	"github.com/bwmarrin/discordgo"
)

// Client is everything the engine needs from the platform. Implementations
// return errors classified with Classify so callers can use errors.Is against
// ErrPermission, ErrAlreadyGone and ErrTransient.
type Client interface {
	SelfID() string

	Guild(ctx context.Context, guildID string) (*discordgo.Guild, error)
	Member(ctx context.Context, guildID, userID string) (*discordgo.Member, error)
	Members(ctx context.Context, guildID string) ([]*discordgo.Member, error)
	Roles(ctx context.Context, guildID string) ([]*discordgo.Role, error)
	Channels(ctx context.Context, guildID string) ([]*discordgo.Channel, error)
	AuditLog(ctx context.Context, guildID string, action discordgo.AuditLogAction, limit int) ([]*discordgo.AuditLogEntry, error)

	Ban(ctx context.Context, guildID, userID, reason string) error
	Kick(ctx context.Context, guildID, userID, reason string) error
	SetMemberRoles(ctx context.Context, guildID, userID string, roleIDs []string, reason string) error
	AddMemberRole(ctx context.Context, guildID, userID, roleID, reason string) error
	RemoveMemberRole(ctx context.Context, guildID, userID, roleID, reason string) error
	SetNickname(ctx context.Context, guildID, userID, nick, reason string) error
	ClearTimeout(ctx context.Context, guildID, userID, reason string) error

	CreateRole(ctx context.Context, guildID string, params *discordgo.RoleParams, reason string) (*discordgo.Role, error)
	EditRole(ctx context.Context, guildID, roleID string, params *discordgo.RoleParams, reason string) (*discordgo.Role, error)
	MoveRole(ctx context.Context, guildID, roleID string, position int, reason string) error
	DeleteRole(ctx context.Context, guildID, roleID, reason string) error

	CreateChannel(ctx context.Context, guildID string, data discordgo.GuildChannelCreateData, reason string) (*discordgo.Channel, error)
	EditChannel(ctx context.Context, channelID string, data *discordgo.ChannelEdit, reason string) (*discordgo.Channel, error)
	DeleteChannel(ctx context.Context, channelID, reason string) error
	SetRolePermission(ctx context.Context, channelID, roleID string, allow, deny int64, reason string) error
	DeleteRolePermission(ctx context.Context, channelID, roleID, reason string) error

	DeleteMessage(ctx context.Context, channelID, messageID, reason string) error
	DeleteInvite(ctx context.Context, code, reason string) error
	Webhooks(ctx context.Context, channelID string) ([]*discordgo.Webhook, error)
	DeleteWebhook(ctx context.Context, webhookID, reason string) error

	SendEmbed(ctx context.Context, channelID string, embed *discordgo.MessageEmbed) error
}
