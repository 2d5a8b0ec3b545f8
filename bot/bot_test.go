package bot

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/hakimkaamino/secun0c-bot/model"
	"github.com/hakimkaamino/secun0c-bot/platform/platformtest"
	"github.com/hakimkaamino/secun0c-bot/raidmode"
	"github.com/hakimkaamino/secun0c-bot/responder"
	"github.com/hakimkaamino/secun0c-bot/trust"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBot(t *testing.T) (*Bot, *platformtest.Fake) {
	t.Helper()
	fake := platformtest.New("self")
	fake.AddGuild("g", "owner")
	fake.AddRole("g", &discordgo.Role{ID: "botrole", Name: "secun0c", Position: 5})
	fake.AddMember("g", "self", true, "botrole")
	fake.AddMember("g", "owner", false)

	b := newBot(fake, &model.Config{RaidDuration: time.Hour}, nil)
	t.Cleanup(b.Close)
	return b, fake
}

func TestSetupPreparesGuild(t *testing.T) {
	b, fake := newTestBot(t)
	ctx := context.Background()
	admin := int64(discordgo.PermissionAdministrator | discordgo.PermissionSendMessages)
	_, err := fake.EditRole(ctx, "g", "g", &discordgo.RoleParams{Permissions: &admin}, "")
	require.NoError(t, err)

	res, err := b.Setup(ctx, "g")
	require.NoError(t, err)

	trusted, ok := fake.RoleByName("g", trust.DefaultTrustedRoleName)
	require.True(t, ok)
	assert.Equal(t, trusted.ID, res.TrustedRoleID)
	assert.Equal(t, 0xf1c40f, trusted.Color)
	assert.Equal(t, trusted.ID, b.Settings.TrustedRoleID("g"))

	quarantine, ok := fake.RoleByName("g", responder.QuarantineRoleName)
	require.True(t, ok)
	assert.Equal(t, quarantine.ID, res.QuarantineRoleID)

	category, ok := fake.ChannelByName("g", "Security Logs")
	require.True(t, ok)
	logs, ok := fake.ChannelByName("g", "bot-logs")
	require.True(t, ok)
	assert.Equal(t, category.ID, logs.ParentID)
	assert.Equal(t, logs.ID, res.LogChannelID)
	assert.Equal(t, logs.ID, b.Settings.LogChannelID("g"))

	everyone, ok := fake.RoleByID("g", "g")
	require.True(t, ok)
	assert.True(t, res.Hardened)
	assert.Zero(t, everyone.Permissions&discordgo.PermissionAdministrator)
	assert.NotZero(t, everyone.Permissions&discordgo.PermissionSendMessages)

	assert.True(t, res.Snapshot)
	_, ok = b.Snapshots.Get("g")
	assert.True(t, ok)

	embeds := fake.Embeds()
	require.NotEmpty(t, embeds)
	assert.Equal(t, logs.ID, embeds[len(embeds)-1].ChannelID)
}

func TestSetupIsIdempotent(t *testing.T) {
	b, fake := newTestBot(t)
	ctx := context.Background()

	_, err := b.Setup(ctx, "g")
	require.NoError(t, err)
	_, err = b.Setup(ctx, "g")
	require.NoError(t, err)

	assert.Equal(t, 2, fake.Calls("CreateRole"))
	assert.Equal(t, 2, fake.Calls("CreateChannel"))
	assert.Equal(t, 0, fake.Calls("EditRole"))
}

func TestSetupJoinsFailures(t *testing.T) {
	b, fake := newTestBot(t)
	fake.FailNext("CreateRole", assert.AnError)

	res, err := b.Setup(context.Background(), "g")
	require.Error(t, err)
	assert.ErrorIs(t, err, assert.AnError)
	assert.Empty(t, res.TrustedRoleID)
	assert.NotEmpty(t, res.QuarantineRoleID)
	assert.NotEmpty(t, res.LogChannelID)
	assert.True(t, res.Snapshot)
}

func TestLockdownDefaultsToFiveMinutes(t *testing.T) {
	b, _ := newTestBot(t)
	ctx := context.Background()

	require.NoError(t, b.Lockdown(ctx, "g", 0))
	st := b.RaidState("g")
	assert.Equal(t, model.RaidLocked, st.State)
	assert.WithinDuration(t, time.Now().Add(DefaultLockdown), st.Until, 30*time.Second)

	ok, err := b.DeactivateRaidMode(ctx, "g")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, model.RaidNormal, b.RaidState("g").State)

	ok, err = b.DeactivateRaidMode(ctx, "g")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRevokeAndApproveBot(t *testing.T) {
	b, fake := newTestBot(t)
	ctx := context.Background()
	fake.AddMember("g", "helper", true)

	require.NoError(t, b.ApproveBot(ctx, "g", "helper"))
	assert.True(t, b.Trust.IsWhitelisted("helper"))

	require.NoError(t, b.RevokeBot(ctx, "g", "helper"))
	assert.False(t, b.Trust.IsWhitelisted("helper"))
	quarantine := b.Settings.QuarantineRoleID("g")
	require.NotEmpty(t, quarantine)
	assert.Contains(t, fake.MemberRoles("g", "helper"), quarantine)

	require.NoError(t, b.ApproveBot(ctx, "g", "helper"))
	assert.NotContains(t, fake.MemberRoles("g", "helper"), quarantine)
}

func TestRevokeBotNotInGuild(t *testing.T) {
	b, fake := newTestBot(t)

	require.NoError(t, b.RevokeBot(context.Background(), "g", "stranger"))
	assert.Equal(t, 0, fake.Calls("AddMemberRole"))
}

func TestSnapshotRoundTrip(t *testing.T) {
	b, fake := newTestBot(t)
	ctx := context.Background()
	fake.AddChannel("g", &discordgo.Channel{Name: "general", Type: discordgo.ChannelTypeGuildText})

	ok, err := b.RestoreSnapshot(ctx, "g")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = b.CaptureSnapshot(ctx, "g")
	require.NoError(t, err)
	assert.True(t, ok)

	ch, found := fake.ChannelByName("g", "general")
	require.True(t, found)
	fake.RemoveChannel(ch.ID)

	ok, err = b.RestoreSnapshot(ctx, "g")
	require.NoError(t, err)
	assert.True(t, ok)
	_, found = fake.ChannelByName("g", "general")
	assert.True(t, found)
}

func TestStatusCountsEngineState(t *testing.T) {
	b, _ := newTestBot(t)
	ctx := context.Background()
	require.NoError(t, b.Trust.ApproveBot("helper"))
	_, err := b.TriggerRaidMode(ctx, "g")
	require.NoError(t, err)

	st := b.Status(ctx)
	assert.Equal(t, 1, st.LockedGuilds)
	assert.Equal(t, 1, st.Whitelisted)
	assert.Positive(t, st.Goroutines)
	assert.NotNil(t, st.Embed())
}

func TestSchedulerCleanup(t *testing.T) {
	b, _ := newTestBot(t)
	old := time.Now().Add(-time.Hour)
	b.Tracker.Record("g", "a", model.SignalChannelCreate, old)
	require.Equal(t, 1, b.Tracker.Len())

	b.scheduler.cleanup(time.Now())
	assert.Equal(t, 0, b.Tracker.Len())
}

func TestSchedulerStopIsIdempotent(t *testing.T) {
	b, _ := newTestBot(t)
	b.scheduler.Start()
	b.scheduler.Stop()
	b.scheduler.Stop()
}

func TestCloseStopsRaidControllerLast(t *testing.T) {
	b, _ := newTestBot(t)
	ctx := context.Background()
	ok, err := b.TriggerRaidMode(ctx, "g")
	require.NoError(t, err)
	require.True(t, ok)

	b.Close()
	b.Close()

	assert.Equal(t, model.RaidLocked, b.RaidState("g").State)
	_, err = b.TriggerRaidMode(ctx, "g")
	assert.ErrorIs(t, err, raidmode.ErrClosed)
	_, err = b.DeactivateRaidMode(ctx, "g")
	assert.ErrorIs(t, err, raidmode.ErrClosed)
}
