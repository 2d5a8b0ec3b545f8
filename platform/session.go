package platform

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/hakimkaamino/secun0c-bot/utils/logging"
)

var logger = logging.New("platform")

const (
	maxTransientRetries = 3
	membersPageSize     = 1000
)

var transientBackoff = 500 * time.Millisecond

// Session implements Client on top of a discordgo session. Rate limits are
// never fatal: the request sleeps for the server-specified duration and is
// retried until the context ends.
type Session struct {
	s *discordgo.Session
}

func NewSession(s *discordgo.Session) *Session {
	s.ShouldRetryOnRateLimit = false
	return &Session{s: s}
}

func (p *Session) SelfID() string {
	if p.s.State != nil && p.s.State.User != nil {
		return p.s.State.User.ID
	}
	return ""
}

// do runs fn with request options bound to ctx and retries transient failures.
func (p *Session) do(ctx context.Context, op string, fn func(opts ...discordgo.RequestOption) error, extra ...discordgo.RequestOption) error {
	opts := append([]discordgo.RequestOption{
		discordgo.WithContext(ctx),
		discordgo.WithRetryOnRatelimit(false),
	}, extra...)

	for attempt := 0; ; attempt++ {
		err := Classify(fn(opts...))
		if err == nil || !errors.Is(err, ErrTransient) {
			return err
		}

		wait, limited := RetryAfter(err)
		if !limited {
			if attempt >= maxTransientRetries {
				return err
			}
			wait = transientBackoff << attempt
		}
		logger.Warn().Err(err).Str("op", op).Dur("wait", wait).Bool("rate_limited", limited).Msg("retrying platform call")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

func reasonOpt(reason string) []discordgo.RequestOption {
	if reason == "" {
		return nil
	}
	return []discordgo.RequestOption{discordgo.WithAuditLogReason(reason)}
}

func (p *Session) Guild(ctx context.Context, guildID string) (*discordgo.Guild, error) {
	if p.s.StateEnabled && p.s.State != nil {
		if g, err := p.s.State.Guild(guildID); err == nil {
			return g, nil
		}
	}
	var g *discordgo.Guild
	err := p.do(ctx, "guild", func(opts ...discordgo.RequestOption) (err error) {
		g, err = p.s.Guild(guildID, opts...)
		return err
	})
	return g, err
}

func (p *Session) Member(ctx context.Context, guildID, userID string) (*discordgo.Member, error) {
	if p.s.StateEnabled && p.s.State != nil {
		if m, err := p.s.State.Member(guildID, userID); err == nil {
			return m, nil
		}
	}
	var m *discordgo.Member
	err := p.do(ctx, "member", func(opts ...discordgo.RequestOption) (err error) {
		m, err = p.s.GuildMember(guildID, userID, opts...)
		return err
	})
	return m, err
}

func (p *Session) Members(ctx context.Context, guildID string) ([]*discordgo.Member, error) {
	var all []*discordgo.Member
	after := ""
	for {
		var page []*discordgo.Member
		err := p.do(ctx, "members", func(opts ...discordgo.RequestOption) (err error) {
			page, err = p.s.GuildMembers(guildID, after, membersPageSize, opts...)
			return err
		})
		if err != nil {
			return all, err
		}
		all = append(all, page...)
		if len(page) < membersPageSize {
			return all, nil
		}
		after = page[len(page)-1].User.ID
	}
}

func (p *Session) Roles(ctx context.Context, guildID string) ([]*discordgo.Role, error) {
	if p.s.StateEnabled && p.s.State != nil {
		if g, err := p.s.State.Guild(guildID); err == nil && len(g.Roles) > 0 {
			return g.Roles, nil
		}
	}
	var roles []*discordgo.Role
	err := p.do(ctx, "roles", func(opts ...discordgo.RequestOption) (err error) {
		roles, err = p.s.GuildRoles(guildID, opts...)
		return err
	})
	return roles, err
}

func (p *Session) Channels(ctx context.Context, guildID string) ([]*discordgo.Channel, error) {
	var channels []*discordgo.Channel
	err := p.do(ctx, "channels", func(opts ...discordgo.RequestOption) (err error) {
		channels, err = p.s.GuildChannels(guildID, opts...)
		return err
	})
	return channels, err
}

func (p *Session) AuditLog(ctx context.Context, guildID string, action discordgo.AuditLogAction, limit int) ([]*discordgo.AuditLogEntry, error) {
	var entries []*discordgo.AuditLogEntry
	err := p.do(ctx, "audit_log", func(opts ...discordgo.RequestOption) error {
		audit, err := p.s.GuildAuditLog(guildID, "", "", int(action), limit, opts...)
		if err != nil {
			return err
		}
		entries = audit.AuditLogEntries
		return nil
	})
	return entries, err
}

func (p *Session) Ban(ctx context.Context, guildID, userID, reason string) error {
	return p.do(ctx, "ban", func(opts ...discordgo.RequestOption) error {
		return p.s.GuildBanCreateWithReason(guildID, userID, reason, 0, opts...)
	})
}

func (p *Session) Kick(ctx context.Context, guildID, userID, reason string) error {
	return p.do(ctx, "kick", func(opts ...discordgo.RequestOption) error {
		return p.s.GuildMemberDeleteWithReason(guildID, userID, reason, opts...)
	})
}

func (p *Session) SetMemberRoles(ctx context.Context, guildID, userID string, roleIDs []string, reason string) error {
	if roleIDs == nil {
		roleIDs = []string{}
	}
	return p.do(ctx, "member_roles", func(opts ...discordgo.RequestOption) error {
		_, err := p.s.GuildMemberEdit(guildID, userID, &discordgo.GuildMemberParams{Roles: &roleIDs}, opts...)
		return err
	}, reasonOpt(reason)...)
}

func (p *Session) AddMemberRole(ctx context.Context, guildID, userID, roleID, reason string) error {
	return p.do(ctx, "member_role_add", func(opts ...discordgo.RequestOption) error {
		return p.s.GuildMemberRoleAdd(guildID, userID, roleID, opts...)
	}, reasonOpt(reason)...)
}

func (p *Session) RemoveMemberRole(ctx context.Context, guildID, userID, roleID, reason string) error {
	return p.do(ctx, "member_role_remove", func(opts ...discordgo.RequestOption) error {
		return p.s.GuildMemberRoleRemove(guildID, userID, roleID, opts...)
	}, reasonOpt(reason)...)
}

func (p *Session) SetNickname(ctx context.Context, guildID, userID, nick, reason string) error {
	return p.do(ctx, "nickname", func(opts ...discordgo.RequestOption) error {
		return p.s.GuildMemberNickname(guildID, userID, nick, opts...)
	}, reasonOpt(reason)...)
}

func (p *Session) ClearTimeout(ctx context.Context, guildID, userID, reason string) error {
	return p.do(ctx, "timeout_clear", func(opts ...discordgo.RequestOption) error {
		return p.s.GuildMemberTimeout(guildID, userID, nil, opts...)
	}, reasonOpt(reason)...)
}

func (p *Session) CreateRole(ctx context.Context, guildID string, params *discordgo.RoleParams, reason string) (*discordgo.Role, error) {
	var role *discordgo.Role
	err := p.do(ctx, "role_create", func(opts ...discordgo.RequestOption) (err error) {
		role, err = p.s.GuildRoleCreate(guildID, params, opts...)
		return err
	}, reasonOpt(reason)...)
	return role, err
}

func (p *Session) EditRole(ctx context.Context, guildID, roleID string, params *discordgo.RoleParams, reason string) (*discordgo.Role, error) {
	var role *discordgo.Role
	err := p.do(ctx, "role_edit", func(opts ...discordgo.RequestOption) (err error) {
		role, err = p.s.GuildRoleEdit(guildID, roleID, params, opts...)
		return err
	}, reasonOpt(reason)...)
	return role, err
}

func (p *Session) MoveRole(ctx context.Context, guildID, roleID string, position int, reason string) error {
	return p.do(ctx, "role_move", func(opts ...discordgo.RequestOption) error {
		_, err := p.s.GuildRoleReorder(guildID, []*discordgo.Role{{ID: roleID, Position: position}}, opts...)
		return err
	}, reasonOpt(reason)...)
}

func (p *Session) DeleteRole(ctx context.Context, guildID, roleID, reason string) error {
	return p.do(ctx, "role_delete", func(opts ...discordgo.RequestOption) error {
		return p.s.GuildRoleDelete(guildID, roleID, opts...)
	}, reasonOpt(reason)...)
}

func (p *Session) CreateChannel(ctx context.Context, guildID string, data discordgo.GuildChannelCreateData, reason string) (*discordgo.Channel, error) {
	var ch *discordgo.Channel
	err := p.do(ctx, "channel_create", func(opts ...discordgo.RequestOption) (err error) {
		ch, err = p.s.GuildChannelCreateComplex(guildID, data, opts...)
		return err
	}, reasonOpt(reason)...)
	return ch, err
}

func (p *Session) EditChannel(ctx context.Context, channelID string, data *discordgo.ChannelEdit, reason string) (*discordgo.Channel, error) {
	var ch *discordgo.Channel
	err := p.do(ctx, "channel_edit", func(opts ...discordgo.RequestOption) (err error) {
		ch, err = p.s.ChannelEdit(channelID, data, opts...)
		return err
	}, reasonOpt(reason)...)
	return ch, err
}

func (p *Session) DeleteChannel(ctx context.Context, channelID, reason string) error {
	return p.do(ctx, "channel_delete", func(opts ...discordgo.RequestOption) error {
		_, err := p.s.ChannelDelete(channelID, opts...)
		return err
	}, reasonOpt(reason)...)
}

func (p *Session) SetRolePermission(ctx context.Context, channelID, roleID string, allow, deny int64, reason string) error {
	return p.do(ctx, "permission_set", func(opts ...discordgo.RequestOption) error {
		return p.s.ChannelPermissionSet(channelID, roleID, discordgo.PermissionOverwriteTypeRole, allow, deny, opts...)
	}, reasonOpt(reason)...)
}

func (p *Session) DeleteRolePermission(ctx context.Context, channelID, roleID, reason string) error {
	return p.do(ctx, "permission_delete", func(opts ...discordgo.RequestOption) error {
		return p.s.ChannelPermissionDelete(channelID, roleID, opts...)
	}, reasonOpt(reason)...)
}

func (p *Session) DeleteMessage(ctx context.Context, channelID, messageID, reason string) error {
	return p.do(ctx, "message_delete", func(opts ...discordgo.RequestOption) error {
		return p.s.ChannelMessageDelete(channelID, messageID, opts...)
	}, reasonOpt(reason)...)
}

func (p *Session) DeleteInvite(ctx context.Context, code, reason string) error {
	return p.do(ctx, "invite_delete", func(opts ...discordgo.RequestOption) error {
		_, err := p.s.InviteDelete(code, opts...)
		return err
	}, reasonOpt(reason)...)
}

func (p *Session) Webhooks(ctx context.Context, channelID string) ([]*discordgo.Webhook, error) {
	var hooks []*discordgo.Webhook
	err := p.do(ctx, "webhooks", func(opts ...discordgo.RequestOption) (err error) {
		hooks, err = p.s.ChannelWebhooks(channelID, opts...)
		return err
	})
	return hooks, err
}

func (p *Session) DeleteWebhook(ctx context.Context, webhookID, reason string) error {
	return p.do(ctx, "webhook_delete", func(opts ...discordgo.RequestOption) error {
		return p.s.WebhookDelete(webhookID, opts...)
	}, reasonOpt(reason)...)
}

func (p *Session) SendEmbed(ctx context.Context, channelID string, embed *discordgo.MessageEmbed) error {
	return p.do(ctx, "send_embed", func(opts ...discordgo.RequestOption) error {
		_, err := p.s.ChannelMessageSendEmbed(channelID, embed, opts...)
		return err
	})
}
