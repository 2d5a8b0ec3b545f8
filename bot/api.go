package bot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/hakimkaamino/secun0c-bot/model"
	"github.com/hakimkaamino/secun0c-bot/platform"
	"github.com/hakimkaamino/secun0c-bot/trust"
)

// DefaultLockdown is used when Lockdown is called without a duration.
const DefaultLockdown = 5 * time.Minute

// TriggerRaidMode locks the guild. It reports false when it was already locked.
func (b *Bot) TriggerRaidMode(ctx context.Context, guildID string) (bool, error) {
	return b.Raid.Trigger(ctx, guildID)
}

// DeactivateRaidMode unlocks the guild. It reports false when it was not locked.
func (b *Bot) DeactivateRaidMode(ctx context.Context, guildID string) (bool, error) {
	return b.Raid.Deactivate(ctx, guildID)
}

// Lockdown locks the guild for minutes, or DefaultLockdown when minutes <= 0.
func (b *Bot) Lockdown(ctx context.Context, guildID string, minutes int) error {
	d := DefaultLockdown
	if minutes > 0 {
		d = time.Duration(minutes) * time.Minute
	}
	return b.Raid.Lockdown(ctx, guildID, d)
}

func (b *Bot) RaidState(guildID string) model.RaidStatus {
	return b.Raid.State(guildID)
}

// CaptureSnapshot replaces the guild's snapshot with its current structure.
func (b *Bot) CaptureSnapshot(ctx context.Context, guildID string) (bool, error) {
	snap, err := b.Snapshots.Capture(ctx, guildID)
	if err != nil {
		return false, err
	}
	b.logf(ctx, guildID, "SNAPSHOT", "Snapshot taken", model.SeverityInfo,
		"Captured %d roles, %d categories and %d channels", len(snap.Roles), len(snap.Categories), len(snap.Channels))
	return true, nil
}

// RestoreSnapshot recreates what is missing from the guild's snapshot. It
// reports false when the guild has no snapshot.
func (b *Bot) RestoreSnapshot(ctx context.Context, guildID string) (bool, error) {
	return b.Snapshots.Restore(ctx, guildID)
}

// ApproveBot whitelists botID and lifts its quarantine in guildID.
func (b *Bot) ApproveBot(ctx context.Context, guildID, botID string) error {
	if err := b.Trust.ApproveBot(botID); err != nil {
		return fmt.Errorf("failed to whitelist %s: %w", botID, err)
	}
	if guildID != "" {
		if err := b.Responder.Release(ctx, guildID, botID); err != nil {
			return err
		}
	}
	b.logf(ctx, guildID, "BOT_APPROVED", "Bot approved", model.SeveritySuccess,
		"<@%s> (%s) was added to the whitelist", botID, botID)
	return nil
}

// RevokeBot removes botID from the whitelist and quarantines it if it is a
// member of guildID.
func (b *Bot) RevokeBot(ctx context.Context, guildID, botID string) error {
	if err := b.Trust.RevokeBot(botID); err != nil {
		return fmt.Errorf("failed to unwhitelist %s: %w", botID, err)
	}
	if guildID == "" {
		return nil
	}
	if _, err := b.Client.Member(ctx, guildID, botID); err != nil {
		if platform.Gone(err) {
			return nil
		}
		return err
	}
	return b.Responder.Quarantine(ctx, guildID, botID, "Whitelist revoked")
}

func (b *Bot) LogChannel(ctx context.Context, guildID string) (string, bool) {
	return b.Logs.LogChannel(ctx, guildID)
}

func (b *Bot) SetLogChannel(guildID, channelID string) error {
	return b.Settings.SetLogChannelID(guildID, channelID)
}

// Violations returns the violation counters of every actor.
func (b *Bot) Violations() map[string]int {
	return b.Responder.Ledger().Snapshot()
}

// ViolationHistory lists the violations of userID since the given time. A zero
// since returns the whole history.
func (b *Bot) ViolationHistory(userID string, since time.Time) ([]model.Violation, error) {
	var from *time.Time
	if !since.IsZero() {
		from = &since
	}
	return b.Responder.Ledger().History(userID, from)
}

func (b *Bot) RecentLogs() []model.LogRecord {
	return b.Logs.Recent()
}

// SetupResult lists what Setup created or adopted.
type SetupResult struct {
	TrustedRoleID    string
	QuarantineRoleID string
	LogChannelID     string
	Hardened         bool
	Snapshot         bool
}

const (
	trustedColor     = 0xf1c40f
	logCategoryName  = "Security Logs"
	logChannelName   = "bot-logs"
	unsafeEveryone   = int64(discordgo.PermissionAdministrator | discordgo.PermissionManageChannels | discordgo.PermissionManageRoles)
	setupAuditReason = "Anti-nuke setup"
)

// Setup prepares a guild: trusted and quarantine roles, a log channel, a
// hardened base role and an initial snapshot. Steps run independently and
// their failures are joined.
func (b *Bot) Setup(ctx context.Context, guildID string) (SetupResult, error) {
	var res SetupResult
	var errs []error

	id, err := b.ensureTrustedRole(ctx, guildID)
	if err != nil {
		errs = append(errs, err)
	}
	res.TrustedRoleID = id

	if res.QuarantineRoleID, err = b.Responder.EnsureQuarantineRole(ctx, guildID); err != nil {
		errs = append(errs, err)
	}

	if res.LogChannelID, err = b.ensureLogChannel(ctx, guildID); err != nil {
		errs = append(errs, err)
	}

	if res.Hardened, err = b.hardenEveryone(ctx, guildID); err != nil {
		errs = append(errs, err)
	}

	if _, err := b.Snapshots.Capture(ctx, guildID); err != nil {
		errs = append(errs, fmt.Errorf("failed to capture snapshot: %w", err))
	} else {
		res.Snapshot = true
	}

	err = errors.Join(errs...)
	sev := model.SeveritySuccess
	if err != nil {
		sev = model.SeverityWarning
	}
	b.logf(ctx, guildID, "SETUP", "Guild setup", sev,
		"Trusted role: %s\nQuarantine role: %s\nLog channel: %s\nBase role hardened: %t\nSnapshot: %t",
		orNone(res.TrustedRoleID), orNone(res.QuarantineRoleID), orNone(res.LogChannelID), res.Hardened, res.Snapshot)
	return res, err
}

func (b *Bot) ensureTrustedRole(ctx context.Context, guildID string) (string, error) {
	if id := b.Settings.TrustedRoleID(guildID); id != "" {
		return id, nil
	}
	roles, err := b.Client.Roles(ctx, guildID)
	if err != nil {
		return "", fmt.Errorf("failed to list roles: %w", err)
	}
	id := ""
	for _, r := range roles {
		if r.Name == trust.DefaultTrustedRoleName {
			id = r.ID
			break
		}
	}
	if id == "" {
		color := trustedColor
		role, err := b.Client.CreateRole(ctx, guildID, &discordgo.RoleParams{
			Name:  trust.DefaultTrustedRoleName,
			Color: &color,
		}, "Auto-created trusted role")
		if err != nil {
			return "", fmt.Errorf("failed to create trusted role: %w", err)
		}
		id = role.ID
	}
	if err := b.Settings.SetTrustedRoleID(guildID, id); err != nil {
		return id, fmt.Errorf("failed to persist trusted role: %w", err)
	}
	return id, nil
}

func (b *Bot) ensureLogChannel(ctx context.Context, guildID string) (string, error) {
	if id, ok := b.Logs.LogChannel(ctx, guildID); ok {
		return id, nil
	}
	category, err := b.Client.CreateChannel(ctx, guildID, discordgo.GuildChannelCreateData{
		Name: logCategoryName,
		Type: discordgo.ChannelTypeGuildCategory,
	}, setupAuditReason)
	if err != nil {
		return "", fmt.Errorf("failed to create log category: %w", err)
	}
	ch, err := b.Client.CreateChannel(ctx, guildID, discordgo.GuildChannelCreateData{
		Name:     logChannelName,
		Type:     discordgo.ChannelTypeGuildText,
		ParentID: category.ID,
	}, setupAuditReason)
	if err != nil {
		return "", fmt.Errorf("failed to create log channel: %w", err)
	}
	if err := b.Settings.SetLogChannelID(guildID, ch.ID); err != nil {
		return ch.ID, fmt.Errorf("failed to persist log channel: %w", err)
	}
	return ch.ID, nil
}

// hardenEveryone strips administrator and the channel and role management
// permissions from the base role. It reports whether the role is now safe.
func (b *Bot) hardenEveryone(ctx context.Context, guildID string) (bool, error) {
	roles, err := b.Client.Roles(ctx, guildID)
	if err != nil {
		return false, fmt.Errorf("failed to list roles: %w", err)
	}
	for _, r := range roles {
		if r.ID != guildID {
			continue
		}
		if r.Permissions&unsafeEveryone == 0 {
			return true, nil
		}
		perms := r.Permissions &^ unsafeEveryone
		if _, err := b.Client.EditRole(ctx, guildID, r.ID, &discordgo.RoleParams{Permissions: &perms}, setupAuditReason); err != nil {
			return false, fmt.Errorf("failed to harden base role: %w", err)
		}
		return true, nil
	}
	return false, fmt.Errorf("base role of %s not found", guildID)
}

func orNone(s string) string {
	if s == "" {
		return "none"
	}
	return s
}
