package trust

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/bwmarrin/discordgo"
	"github.com/hakimkaamino/secun0c-bot/config"
	"github.com/hakimkaamino/secun0c-bot/platform/platformtest"
	"github.com/hakimkaamino/secun0c-bot/utils/database"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setup(t *testing.T) (*platformtest.Fake, *config.Store, *Registry) {
	t.Helper()
	fake := platformtest.New("self")
	fake.AddGuild("g", "owner")
	fake.AddMember("g", "owner", false)
	store := config.NewStore(nil, nil)
	return fake, store, New(fake, store, nil)
}

func TestOwnerIsAlwaysProtected(t *testing.T) {
	ctx := context.Background()
	_, _, reg := setup(t)

	assert.True(t, reg.IsProtected(ctx, "g", "owner"))
	assert.False(t, reg.IsProtected(ctx, "g", "someone"))
	assert.True(t, reg.Exempt(ctx, "g", "owner"))
	assert.True(t, reg.Exempt(ctx, "g", "self"))

	reg.SetOwner("g", "new-owner")
	assert.True(t, reg.IsProtected(ctx, "g", "new-owner"))
}

func TestTrustedRoleByNameWhenUnconfigured(t *testing.T) {
	ctx := context.Background()
	fake, _, reg := setup(t)
	fake.AddRole("g", &discordgo.Role{ID: "r-trusted", Name: "Trusted"})
	fake.AddMember("g", "mod", false, "r-trusted")
	fake.AddMember("g", "user", false)

	assert.True(t, reg.Exempt(ctx, "g", "mod"))
	assert.False(t, reg.Exempt(ctx, "g", "user"))
	assert.False(t, reg.Exempt(ctx, "g", "departed"))
}

func TestConfiguredTrustedRoleWins(t *testing.T) {
	ctx := context.Background()
	fake, store, reg := setup(t)
	fake.AddRole("g", &discordgo.Role{ID: "r-trusted", Name: "Trusted"})
	fake.AddRole("g", &discordgo.Role{ID: "r-staff", Name: "Staff"})
	require.NoError(t, store.SetTrustedRoleID("g", "r-staff"))

	assert.True(t, reg.IsTrusted(ctx, "g", &discordgo.Member{Roles: []string{"r-staff"}}))
	assert.False(t, reg.IsTrusted(ctx, "g", &discordgo.Member{Roles: []string{"r-trusted"}}))
	assert.False(t, reg.IsTrusted(ctx, "g", nil))
}

func TestWhitelistPersists(t *testing.T) {
	db, err := database.Init(filepath.Join(t.TempDir(), "trust.db"))
	require.NoError(t, err)
	defer db.Close()

	fake := platformtest.New("self")
	store := config.NewStore(nil, nil)
	reg := New(fake, store, db)

	require.NoError(t, reg.ApproveBot("bot-1"))
	require.NoError(t, reg.ApproveBot("bot-2"))
	require.NoError(t, reg.RevokeBot("bot-2"))
	assert.True(t, reg.IsWhitelisted("bot-1"))
	assert.False(t, reg.IsWhitelisted("bot-2"))

	reloaded := New(fake, store, db)
	require.NoError(t, reloaded.LoadWhitelist())
	assert.Equal(t, []string{"bot-1"}, reloaded.Whitelist())
}
