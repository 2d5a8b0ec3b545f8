// Package trust decides which actors are exempt from remediation.
package trust

import (
	"context"

	"github.com/bwmarrin/discordgo"
	"github.com/hakimkaamino/secun0c-bot/platform"
	"github.com/hakimkaamino/secun0c-bot/utils/database"
	"github.com/hakimkaamino/secun0c-bot/utils/logging"
	"github.com/jmoiron/sqlx"
	"github.com/puzpuzpuz/xsync/v3"
)

var logger = logging.New("trust")

// DefaultTrustedRoleName is matched when a guild has no trusted role configured.
const DefaultTrustedRoleName = "Trusted"

// RoleSource returns the configured trusted role of a guild, or "".
type RoleSource interface {
	TrustedRoleID(guildID string) string
}

// Registry holds guild owners, the global bot whitelist and the trusted role
// lookup.
type Registry struct {
	client    platform.Client
	roles     RoleSource
	db        *sqlx.DB
	owners    *xsync.MapOf[string, string]
	whitelist *xsync.MapOf[string, struct{}]
}

// New creates a Registry. db may be nil for a memory-only whitelist.
func New(client platform.Client, roles RoleSource, db *sqlx.DB) *Registry {
	return &Registry{
		client:    client,
		roles:     roles,
		db:        db,
		owners:    xsync.NewMapOf[string, string](),
		whitelist: xsync.NewMapOf[string, struct{}](),
	}
}

// LoadWhitelist fills the whitelist from the database.
func (r *Registry) LoadWhitelist() error {
	if r.db == nil {
		return nil
	}
	ids, err := database.GetWhitelistedBots(r.db)
	if err != nil {
		return err
	}
	for _, id := range ids {
		r.whitelist.Store(id, struct{}{})
	}
	logger.Info().Int("bots", len(ids)).Msg("bot whitelist loaded")
	return nil
}

func (r *Registry) SetOwner(guildID, ownerID string) {
	if ownerID != "" {
		r.owners.Store(guildID, ownerID)
	}
}

// IsProtected reports whether actorID owns the guild. An unknown owner is
// fetched once from the platform.
func (r *Registry) IsProtected(ctx context.Context, guildID, actorID string) bool {
	owner, ok := r.owners.Load(guildID)
	if !ok {
		g, err := r.client.Guild(ctx, guildID)
		if err != nil {
			logger.Warn().Err(err).Str("guild", guildID).Msg("failed to resolve guild owner")
			return false
		}
		owner = g.OwnerID
		r.SetOwner(guildID, owner)
	}
	return owner != "" && owner == actorID
}

// IsTrusted reports whether the member holds the guild's trusted role, or a
// role named "Trusted" when none is configured.
func (r *Registry) IsTrusted(ctx context.Context, guildID string, member *discordgo.Member) bool {
	if member == nil {
		return false
	}
	trusted := r.roles.TrustedRoleID(guildID)
	if trusted == "" {
		roles, err := r.client.Roles(ctx, guildID)
		if err != nil {
			logger.Warn().Err(err).Str("guild", guildID).Msg("failed to list roles for trust check")
			return false
		}
		for _, role := range roles {
			if role.Name == DefaultTrustedRoleName {
				trusted = role.ID
				break
			}
		}
		if trusted == "" {
			return false
		}
	}
	for _, id := range member.Roles {
		if id == trusted {
			return true
		}
	}
	return false
}

// Exempt reports whether actions by actorID must never be remediated: the
// automation account itself, the owner, or a trusted member. Actors that are
// no longer members are not exempt.
func (r *Registry) Exempt(ctx context.Context, guildID, actorID string) bool {
	if actorID == "" || actorID == r.client.SelfID() {
		return true
	}
	if r.IsProtected(ctx, guildID, actorID) {
		return true
	}
	member, err := r.client.Member(ctx, guildID, actorID)
	if err != nil {
		return false
	}
	return r.IsTrusted(ctx, guildID, member)
}

// IsWhitelisted reports whether a bot account was approved. It only affects
// the join flow.
func (r *Registry) IsWhitelisted(botID string) bool {
	_, ok := r.whitelist.Load(botID)
	return ok
}

func (r *Registry) ApproveBot(botID string) error {
	if r.db != nil {
		if err := database.AddWhitelistedBot(r.db, botID); err != nil {
			return err
		}
	}
	r.whitelist.Store(botID, struct{}{})
	return nil
}

func (r *Registry) RevokeBot(botID string) error {
	if r.db != nil {
		if err := database.RemoveWhitelistedBot(r.db, botID); err != nil {
			return err
		}
	}
	r.whitelist.Delete(botID)
	return nil
}

// Whitelist lists the approved bots.
func (r *Registry) Whitelist() []string {
	var ids []string
	r.whitelist.Range(func(id string, _ struct{}) bool {
		ids = append(ids, id)
		return true
	})
	return ids
}
