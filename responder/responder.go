// Package responder executes remediation against actors.
package responder

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/hakimkaamino/secun0c-bot/model"
	"github.com/hakimkaamino/secun0c-bot/platform"
	"github.com/hakimkaamino/secun0c-bot/utils/logging"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"
)

var logger = logging.New("responder")

// QuarantineRoleName is the role given to unapproved bots.
const QuarantineRoleName = "Quarantined"

const quarantineColor = 0x992d22

const (
	recentSize = 1024
	recentTTL  = 30 * time.Second
)

// Trust decides whether an actor is exempt from remediation.
type Trust interface {
	Exempt(ctx context.Context, guildID, actorID string) bool
}

// Sink receives the guild-facing log records.
type Sink interface {
	Log(ctx context.Context, rec model.LogRecord)
}

// QuarantineRoles stores the per-guild quarantine role.
type QuarantineRoles interface {
	QuarantineRoleID(guildID string) string
	SetQuarantineRoleID(guildID, roleID string) error
}

type Responder struct {
	client platform.Client
	trust  Trust
	sink   Sink
	roles  QuarantineRoles
	ledger *Ledger

	group singleflight.Group
	// recent holds guild:actor keys neutralized in the last 30s so racing
	// duplicate signals do not issue a second ban.
	recent *expirable.LRU[string, time.Time]
}

func New(client platform.Client, trust Trust, sink Sink, roles QuarantineRoles, ledger *Ledger) *Responder {
	return &Responder{
		client: client,
		trust:  trust,
		sink:   sink,
		roles:  roles,
		ledger: ledger,
		recent: expirable.NewLRU[string, time.Time](recentSize, nil, recentTTL),
	}
}

func (r *Responder) Ledger() *Ledger {
	return r.ledger
}

// Neutralize bans actorID, or strips its roles and kicks it when the ban is
// not permitted. It returns false without side effects when the actor is
// unresolved or exempt. Concurrent calls for the same actor share one
// attempt and a target that is already gone counts as success.
func (r *Responder) Neutralize(ctx context.Context, guildID, actorID, reason string) bool {
	if actorID == "" {
		return false
	}
	key := guildID + ":" + actorID
	if _, ok := r.recent.Get(key); ok {
		return true
	}
	v, _, _ := r.group.Do(key, func() (interface{}, error) {
		if _, ok := r.recent.Get(key); ok {
			return true, nil
		}
		return r.neutralize(ctx, guildID, actorID, reason), nil
	})
	return v.(bool)
}

func (r *Responder) neutralize(ctx context.Context, guildID, actorID, reason string) bool {
	if r.trust.Exempt(ctx, guildID, actorID) {
		logger.Debug().Str("guild", guildID).Str("actor", actorID).Msg("actor exempt, not neutralizing")
		return false
	}

	action := "ban"
	err := r.client.Ban(ctx, guildID, actorID, "ANTI-NUKE: "+reason)
	switch {
	case err == nil || platform.Gone(err):
	case errors.Is(err, platform.ErrPermission):
		neutralizeErrors.WithLabelValues("ban").Inc()
		action = "kick"
		if err := r.client.SetMemberRoles(ctx, guildID, actorID, nil, reason); err != nil && !platform.Gone(err) {
			neutralizeErrors.WithLabelValues("strip").Inc()
			logger.Warn().Err(err).Str("guild", guildID).Str("actor", actorID).Msg("failed to strip roles")
		}
		err = r.client.Kick(ctx, guildID, actorID, "ANTI-NUKE: "+reason+" (ban failed)")
		if err != nil && !platform.Gone(err) {
			neutralizeErrors.WithLabelValues("kick").Inc()
			logger.Error().Err(err).Str("guild", guildID).Str("actor", actorID).Msg("failed to neutralize actor")
			r.sink.Log(ctx, model.LogRecord{
				GuildID:     guildID,
				Type:        "NEUTRALIZE_FAILED",
				Title:       "Neutralize failed",
				Description: fmt.Sprintf("<@%s> (%s) could not be banned or kicked: %s", actorID, actorID, reason),
				Severity:    model.SeverityWarning,
			})
			return false
		}
	default:
		neutralizeErrors.WithLabelValues("ban").Inc()
		logger.Error().Err(err).Str("guild", guildID).Str("actor", actorID).Msg("failed to ban actor")
		return false
	}

	r.recent.Add(guildID+":"+actorID, time.Now())
	r.ledger.Record(guildID, actorID, reason, action)
	neutralizeCount.WithLabelValues(action).Inc()

	title, typ := "IMMEDIATE BAN", "IMMEDIATE_BAN"
	if action == "kick" {
		title, typ = "KICKED", "KICK_FALLBACK"
	}
	r.sink.Log(ctx, model.LogRecord{
		GuildID:     guildID,
		Type:        typ,
		Title:       title,
		Description: fmt.Sprintf("<@%s> (%s) was neutralized (%s) for: %s", actorID, actorID, action, reason),
		Severity:    model.SeverityDanger,
	})
	return true
}

// RecordViolation logs a non-ban offence, such as a deleted spam message.
func (r *Responder) RecordViolation(ctx context.Context, guildID, actorID, reason string) {
	r.ledger.Record(guildID, actorID, reason, "delete")
	r.sink.Log(ctx, model.LogRecord{
		GuildID:     guildID,
		Type:        "VIOLATION",
		Title:       "Violation",
		Description: fmt.Sprintf("<@%s> (%s): %s", actorID, actorID, reason),
		Severity:    model.SeverityWarning,
	})
}

// EnsureQuarantineRole returns the guild's quarantine role, adopting a role
// named "Quarantined" or creating one that can only view channels.
func (r *Responder) EnsureQuarantineRole(ctx context.Context, guildID string) (string, error) {
	if id := r.roles.QuarantineRoleID(guildID); id != "" {
		return id, nil
	}
	roles, err := r.client.Roles(ctx, guildID)
	if err != nil {
		return "", fmt.Errorf("failed to list roles: %w", err)
	}
	id := ""
	for _, role := range roles {
		if role.Name == QuarantineRoleName {
			id = role.ID
			break
		}
	}
	if id == "" {
		perms, color := int64(discordgo.PermissionViewChannel), quarantineColor
		role, err := r.client.CreateRole(ctx, guildID, &discordgo.RoleParams{
			Name:        QuarantineRoleName,
			Color:       &color,
			Permissions: &perms,
		}, "Auto-created quarantine role")
		if err != nil {
			return "", fmt.Errorf("failed to create quarantine role: %w", err)
		}
		id = role.ID
	}
	if err := r.roles.SetQuarantineRoleID(guildID, id); err != nil {
		logger.Warn().Err(err).Str("guild", guildID).Msg("failed to persist quarantine role")
	}
	return id, nil
}

// Quarantine gives userID the quarantine role.
func (r *Responder) Quarantine(ctx context.Context, guildID, userID, reason string) error {
	roleID, err := r.EnsureQuarantineRole(ctx, guildID)
	if err != nil {
		return err
	}
	if err := r.client.AddMemberRole(ctx, guildID, userID, roleID, reason); err != nil {
		return fmt.Errorf("failed to quarantine %s: %w", userID, err)
	}
	r.sink.Log(ctx, model.LogRecord{
		GuildID:     guildID,
		Type:        "BOT_QUARANTINED",
		Title:       "Bot quarantined",
		Description: fmt.Sprintf("<@%s> (%s) was quarantined: %s", userID, userID, reason),
		Severity:    model.SeverityWarning,
	})
	return nil
}

// Release removes the quarantine role from userID.
func (r *Responder) Release(ctx context.Context, guildID, userID string) error {
	roleID := r.roles.QuarantineRoleID(guildID)
	if roleID == "" {
		return nil
	}
	err := r.client.RemoveMemberRole(ctx, guildID, userID, roleID, "Bot approved")
	if err != nil && !platform.Gone(err) {
		return fmt.Errorf("failed to release %s: %w", userID, err)
	}
	return nil
}
