package raidmode

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/hakimkaamino/secun0c-bot/model"
	"github.com/hakimkaamino/secun0c-bot/platform/platformtest"
	"github.com/hakimkaamino/secun0c-bot/utils/database"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memSink struct {
	mu      sync.Mutex
	records []model.LogRecord
}

func (s *memSink) Log(_ context.Context, rec model.LogRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, rec)
}

func (s *memSink) count(title string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, r := range s.records {
		if r.Title == title {
			n++
		}
	}
	return n
}

func setup(t *testing.T, duration time.Duration) (*platformtest.Fake, *memSink, *Controller) {
	t.Helper()
	fake := platformtest.New("self")
	fake.AddGuild("g", "owner")
	fake.AddChannel("g", &discordgo.Channel{ID: "general", Name: "general", Type: discordgo.ChannelTypeGuildText})
	fake.AddChannel("g", &discordgo.Channel{ID: "news", Name: "news", Type: discordgo.ChannelTypeGuildText,
		PermissionOverwrites: []*discordgo.PermissionOverwrite{
			{ID: "g", Type: discordgo.PermissionOverwriteTypeRole, Allow: discordgo.PermissionSendMessages, Deny: discordgo.PermissionManageWebhooks},
		}})
	fake.AddChannel("g", &discordgo.Channel{ID: "voice", Name: "voice", Type: discordgo.ChannelTypeGuildVoice})

	sink := &memSink{}
	c := New(fake, sink, nil, duration)
	t.Cleanup(c.Close)
	return fake, sink, c
}

func locked(fake *platformtest.Fake, channelID string) bool {
	allow, deny, ok := fake.Overwrite(channelID, "g")
	return ok && deny&discordgo.PermissionSendMessages != 0 && allow&discordgo.PermissionSendMessages == 0
}

func TestTriggerTwiceLocksOnce(t *testing.T) {
	ctx := context.Background()
	fake, sink, c := setup(t, time.Hour)

	acted, err := c.Trigger(ctx, "g")
	require.NoError(t, err)
	assert.True(t, acted)
	first := c.State("g")

	acted, err = c.Trigger(ctx, "g")
	require.NoError(t, err)
	assert.False(t, acted)

	assert.Equal(t, model.RaidLocked, c.State("g").State)
	assert.Equal(t, first.Until, c.State("g").Until)
	assert.Equal(t, 2, fake.Calls("SetRolePermission"))
	assert.Equal(t, 1, sink.count("RAID MODE ACTIVATED"))

	a, _ := c.guilds.Load("g")
	assert.Equal(t, uint64(1), a.status.Load().gen)

	assert.True(t, locked(fake, "general"))
	assert.True(t, locked(fake, "news"))
	_, _, ok := fake.Overwrite("voice", "g")
	assert.False(t, ok)
}

func TestDeactivateClearsDenyOnly(t *testing.T) {
	ctx := context.Background()
	fake, sink, c := setup(t, time.Hour)

	_, err := c.Trigger(ctx, "g")
	require.NoError(t, err)
	acted, err := c.Deactivate(ctx, "g")
	require.NoError(t, err)
	assert.True(t, acted)

	status := c.State("g")
	assert.Equal(t, model.RaidNormal, status.State)
	assert.True(t, status.Until.IsZero())

	// the overwrite created by the lock is removed, not turned into an allow
	_, _, ok := fake.Overwrite("general", "g")
	assert.False(t, ok)

	// the pre-existing overwrite keeps its other bits
	allow, deny, ok := fake.Overwrite("news", "g")
	require.True(t, ok)
	assert.Zero(t, allow&discordgo.PermissionSendMessages)
	assert.Equal(t, int64(discordgo.PermissionManageWebhooks), deny)
	assert.Equal(t, 1, sink.count("Raid mode deactivated"))

	acted, err = c.Deactivate(ctx, "g")
	require.NoError(t, err)
	assert.False(t, acted)
}

func TestTimerDeactivates(t *testing.T) {
	fake, sink, c := setup(t, 50*time.Millisecond)

	_, err := c.Trigger(context.Background(), "g")
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		return c.State("g").State == model.RaidNormal
	}, 2*time.Second, 10*time.Millisecond)
	assert.False(t, locked(fake, "general"))
	assert.Equal(t, 1, sink.count("Raid mode expired"))
}

func TestLockdownReplacesTimer(t *testing.T) {
	ctx := context.Background()
	_, sink, c := setup(t, 50*time.Millisecond)

	_, err := c.Trigger(ctx, "g")
	require.NoError(t, err)
	require.NoError(t, c.Lockdown(ctx, "g", time.Hour))

	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, model.RaidLocked, c.State("g").State)
	assert.Zero(t, sink.count("Raid mode expired"))
	assert.WithinDuration(t, time.Now().Add(time.Hour), c.State("g").Until, time.Minute)

	assert.Error(t, c.Lockdown(ctx, "g", 0))
}

func TestEnforceRevertsWhileLocked(t *testing.T) {
	ctx := context.Background()
	fake, _, c := setup(t, time.Hour)

	ch, _ := fake.ChannelByID("general")
	acted, err := c.Enforce(ctx, ch)
	require.NoError(t, err)
	assert.False(t, acted)

	_, err = c.Trigger(ctx, "g")
	require.NoError(t, err)

	// someone re-enables sending
	require.NoError(t, fake.SetRolePermission(ctx, "general", "g", discordgo.PermissionSendMessages, 0, ""))
	ch, _ = fake.ChannelByID("general")
	acted, err = c.Enforce(ctx, ch)
	require.NoError(t, err)
	assert.True(t, acted)
	assert.True(t, locked(fake, "general"))

	// already locked channels are left alone
	ch, _ = fake.ChannelByID("general")
	acted, err = c.Enforce(ctx, ch)
	require.NoError(t, err)
	assert.False(t, acted)
}

func TestConcurrentTriggers(t *testing.T) {
	fake, sink, c := setup(t, time.Hour)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = c.Trigger(context.Background(), "g")
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, sink.count("RAID MODE ACTIVATED"))
	assert.Equal(t, 2, fake.Calls("SetRolePermission"))
}

func TestResumeAfterRestart(t *testing.T) {
	ctx := context.Background()
	db, err := database.Init(filepath.Join(t.TempDir(), "raid.db"))
	require.NoError(t, err)
	defer db.Close()

	fake := platformtest.New("self")
	fake.AddGuild("g", "owner")
	fake.AddChannel("g", &discordgo.Channel{ID: "general", Name: "general", Type: discordgo.ChannelTypeGuildText})

	first := New(fake, &memSink{}, db, time.Hour)
	_, err = first.Trigger(ctx, "g")
	require.NoError(t, err)
	first.Close()

	second := New(fake, &memSink{}, db, time.Hour)
	defer second.Close()
	require.NoError(t, second.Resume(ctx))
	assert.Equal(t, model.RaidLocked, second.State("g").State)

	acted, err := second.Deactivate(ctx, "g")
	require.NoError(t, err)
	assert.True(t, acted)

	locks, err := database.GetRaidLocks(db)
	require.NoError(t, err)
	assert.Empty(t, locks)
}
