package handlers

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/hakimkaamino/secun0c-bot/config"
	"github.com/hakimkaamino/secun0c-bot/model"
	"github.com/hakimkaamino/secun0c-bot/platform"
	"github.com/hakimkaamino/secun0c-bot/platform/platformtest"
	"github.com/hakimkaamino/secun0c-bot/raidmode"
	"github.com/hakimkaamino/secun0c-bot/responder"
	"github.com/hakimkaamino/secun0c-bot/snapshot"
	"github.com/hakimkaamino/secun0c-bot/tracker"
	"github.com/hakimkaamino/secun0c-bot/trust"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
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

func (s *memSink) count(typ string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, r := range s.records {
		if r.Type == typ {
			n++
		}
	}
	return n
}

type harness struct {
	fake  *platformtest.Fake
	sink  *memSink
	trust *trust.Registry
	resp  *responder.Responder
	raid  *raidmode.Controller
	snaps *snapshot.Store
	h     *Handler
}

func setup(t *testing.T, cfg *model.Config) *harness {
	t.Helper()
	fake := platformtest.New("self")
	fake.AddGuild("g", "owner")
	fake.AddRole("g", &discordgo.Role{ID: "botrole", Name: "secun0c", Position: 5})
	fake.AddMember("g", "self", true, "botrole")
	for _, id := range []string{"owner", "a", "b", "c", "d"} {
		fake.AddMember("g", id, false)
	}

	if cfg == nil {
		cfg = &model.Config{}
	}
	settings := config.NewStore(nil, cfg)
	sink := &memSink{}
	reg := trust.New(fake, settings, nil)
	resp := responder.New(fake, reg, sink, settings, responder.NewLedger(nil))
	raid := raidmode.New(fake, sink, nil, time.Hour)
	t.Cleanup(raid.Close)
	snaps := snapshot.New(fake, sink, nil, rate.NewLimiter(rate.Inf, 1))

	h := New(Deps{
		Client:    fake,
		Settings:  settings,
		Tracker:   tracker.New(settings),
		Trust:     reg,
		Responder: resp,
		Raid:      raid,
		Snapshots: snaps,
		Sink:      sink,
	})
	hs := &harness{fake: fake, sink: sink, trust: reg, resp: resp, raid: raid, snaps: snaps, h: h}
	hs.prime(t)
	return hs
}

// prime replays the guild-available event with the fake's current state.
func (hs *harness) prime(t *testing.T, emojis ...*discordgo.Emoji) {
	t.Helper()
	g, err := hs.fake.Guild(context.Background(), "g")
	require.NoError(t, err)
	g.Emojis = emojis
	hs.h.handleGuildCreate(context.Background(), g)
}

func (hs *harness) createChannel(t *testing.T, actor, name string) *discordgo.Channel {
	t.Helper()
	ch := hs.fake.AddChannel("g", &discordgo.Channel{Name: name, Type: discordgo.ChannelTypeGuildText})
	hs.fake.AddAudit("g", discordgo.AuditLogActionChannelCreate, actor, ch.ID, time.Now())
	hs.h.handleChannelCreate(context.Background(), ch)
	return ch
}

func TestMassChannelCreateBansOnceThenEscalates(t *testing.T) {
	hs := setup(t, nil)

	for i := 0; i < 3; i++ {
		hs.createChannel(t, "a", fmt.Sprintf("spam-%d", i))
	}
	assert.True(t, hs.fake.Banned("g", "a"))
	assert.Equal(t, 1, hs.fake.Calls("Ban"))
	for i := 0; i < 3; i++ {
		_, ok := hs.fake.ChannelByName("g", fmt.Sprintf("spam-%d", i))
		assert.False(t, ok, "spam-%d should be deleted", i)
	}
	assert.Equal(t, model.RaidNormal, hs.raid.State("g").State)

	for _, actor := range []string{"b", "c", "d"} {
		hs.createChannel(t, actor, "chan-"+actor)
	}
	assert.Equal(t, model.RaidLocked, hs.raid.State("g").State)
	assert.Equal(t, 1, hs.fake.Calls("Ban"))
	for _, actor := range []string{"b", "c", "d"} {
		assert.True(t, hs.fake.HasMember("g", actor))
	}
}

func TestUnattributedEventsAreDropped(t *testing.T) {
	hs := setup(t, nil)

	for i := 0; i < 3; i++ {
		ch := hs.fake.AddChannel("g", &discordgo.Channel{Name: fmt.Sprintf("x-%d", i), Type: discordgo.ChannelTypeGuildText})
		hs.h.handleChannelCreate(context.Background(), ch)
	}
	// Entries older than the lookback do not attribute either.
	for i := 0; i < 3; i++ {
		ch := hs.fake.AddChannel("g", &discordgo.Channel{Name: fmt.Sprintf("y-%d", i), Type: discordgo.ChannelTypeGuildText})
		hs.fake.AddAudit("g", discordgo.AuditLogActionChannelCreate, "a", ch.ID, time.Now().Add(-time.Minute))
		hs.h.handleChannelCreate(context.Background(), ch)
	}

	assert.Equal(t, 0, hs.fake.Calls("Ban"))
	assert.Equal(t, 0, hs.fake.Calls("DeleteChannel"))
	assert.Equal(t, 0, hs.h.tracker.Len())
}

func TestOwnerAndTrustedActorsAreIgnored(t *testing.T) {
	hs := setup(t, nil)
	trusted := hs.fake.AddRole("g", &discordgo.Role{Name: trust.DefaultTrustedRoleName})
	hs.fake.AddMember("g", "b", false, trusted.ID)

	for i := 0; i < 3; i++ {
		hs.createChannel(t, "owner", fmt.Sprintf("owner-%d", i))
		hs.createChannel(t, "b", fmt.Sprintf("trusted-%d", i))
	}
	assert.Equal(t, 0, hs.fake.Calls("Ban"))
	assert.Equal(t, 0, hs.fake.Calls("DeleteChannel"))
	assert.Equal(t, model.RaidNormal, hs.raid.State("g").State)
}

func TestMassChannelDeleteRestoresSnapshot(t *testing.T) {
	hs := setup(t, nil)
	var names []string
	var channels []*discordgo.Channel
	for i := 0; i < 3; i++ {
		name := fmt.Sprintf("room-%d", i)
		names = append(names, name)
		channels = append(channels, hs.fake.AddChannel("g", &discordgo.Channel{Name: name, Type: discordgo.ChannelTypeGuildText}))
	}
	_, err := hs.snaps.Capture(context.Background(), "g")
	require.NoError(t, err)

	for _, ch := range channels {
		hs.fake.RemoveChannel(ch.ID)
		hs.fake.AddAudit("g", discordgo.AuditLogActionChannelDelete, "a", ch.ID, time.Now())
		hs.h.handleChannelDelete(context.Background(), ch)
	}
	hs.h.Wait()

	assert.True(t, hs.fake.Banned("g", "a"))
	for _, name := range names {
		_, ok := hs.fake.ChannelByName("g", name)
		assert.True(t, ok, "%s should be restored", name)
	}
	assert.Equal(t, 1, hs.sink.count("RESTORE"))
}

func TestDirectMessageGate(t *testing.T) {
	hs := setup(t, nil)
	clock := time.Now()
	hs.h.now = func() time.Time { return clock }

	dm := func() bool {
		return hs.h.handleMessage(context.Background(), &discordgo.Message{
			ID: "m", ChannelID: "dm", Content: "hello", Author: &discordgo.User{ID: "spammer"},
		})
	}
	for i := 0; i < 5; i++ {
		assert.True(t, dm(), "message %d should pass", i+1)
		clock = clock.Add(time.Second)
	}
	assert.False(t, dm(), "sixth message within the window is dropped")

	clock = clock.Add(61 * time.Second)
	assert.True(t, dm(), "a message after the window drains passes")
}

func TestDangerousPermissionGrantRevertedOnFirstOccurrence(t *testing.T) {
	hs := setup(t, nil)
	hs.fake.AddRole("g", &discordgo.Role{ID: "mods", Name: "mods", Position: 2, Permissions: discordgo.PermissionSendMessages})
	hs.prime(t)

	after := &discordgo.Role{ID: "mods", Name: "mods", Position: 2,
		Permissions: discordgo.PermissionSendMessages | discordgo.PermissionAdministrator}
	hs.fake.AddRole("g", after)
	hs.fake.AddAudit("g", discordgo.AuditLogActionRoleUpdate, "a", "mods", time.Now())
	hs.h.handleRoleUpdate(context.Background(), "g", after)

	assert.True(t, hs.fake.Banned("g", "a"))
	role, ok := hs.fake.RoleByID("g", "mods")
	require.True(t, ok)
	assert.Equal(t, int64(discordgo.PermissionSendMessages), role.Permissions)
	assert.Equal(t, 1, hs.fake.Calls("EditRole"))
}

func TestHarmlessRoleEditIsIgnored(t *testing.T) {
	hs := setup(t, nil)
	hs.fake.AddRole("g", &discordgo.Role{ID: "fans", Name: "fans", Position: 1})
	hs.prime(t)

	after := &discordgo.Role{ID: "fans", Name: "superfans", Position: 1, Permissions: discordgo.PermissionSendMessages}
	hs.fake.AddAudit("g", discordgo.AuditLogActionRoleUpdate, "a", "fans", time.Now())
	hs.h.handleRoleUpdate(context.Background(), "g", after)

	assert.Equal(t, 0, hs.fake.Calls("Ban"))
	assert.Equal(t, 0, hs.fake.Calls("AuditLog"))
}

func TestHierarchyAttackMovesRoleBack(t *testing.T) {
	hs := setup(t, nil)
	hs.fake.AddRole("g", &discordgo.Role{ID: "x", Name: "x", Position: 2})
	hs.prime(t)

	after := &discordgo.Role{ID: "x", Name: "x", Position: 7}
	hs.fake.AddAudit("g", discordgo.AuditLogActionRoleUpdate, "a", "x", time.Now())
	hs.h.handleRoleUpdate(context.Background(), "g", after)

	assert.True(t, hs.fake.Banned("g", "a"))
	role, ok := hs.fake.RoleByID("g", "x")
	require.True(t, ok)
	assert.Equal(t, 2, role.Position)
	assert.Equal(t, 1, hs.fake.Calls("MoveRole"))
}

func TestDangerousRoleAssignmentReverted(t *testing.T) {
	hs := setup(t, nil)
	hs.fake.AddRole("g", &discordgo.Role{ID: "admins", Name: "admins", Position: 3, Permissions: discordgo.PermissionAdministrator})
	hs.fake.AddMember("g", "c", false, "admins")
	hs.prime(t)

	before := &discordgo.Member{GuildID: "g", User: &discordgo.User{ID: "c"}}
	after := &discordgo.Member{GuildID: "g", User: &discordgo.User{ID: "c"}, Roles: []string{"admins"}}
	hs.fake.AddAudit("g", discordgo.AuditLogActionMemberRoleUpdate, "a", "c", time.Now())
	hs.h.handleMemberUpdate(context.Background(), before, after)

	assert.True(t, hs.fake.Banned("g", "a"))
	assert.Empty(t, hs.fake.MemberRoles("g", "c"))
}

func TestNicknameSpamReverted(t *testing.T) {
	hs := setup(t, nil)
	for _, target := range []string{"b", "c", "d"} {
		before := &discordgo.Member{GuildID: "g", User: &discordgo.User{ID: target}, Nick: "nice"}
		after := &discordgo.Member{GuildID: "g", User: &discordgo.User{ID: target}, Nick: "pwned"}
		hs.fake.AddAudit("g", discordgo.AuditLogActionMemberUpdate, "a", target, time.Now())
		hs.h.handleMemberUpdate(context.Background(), before, after)
	}
	assert.True(t, hs.fake.Banned("g", "a"))
	assert.Equal(t, 1, hs.fake.Calls("Ban"))
	assert.Equal(t, 1, hs.fake.Calls("SetNickname"))
}

func TestEmojiMassDeletion(t *testing.T) {
	hs := setup(t, nil)
	hs.prime(t,
		&discordgo.Emoji{ID: "e1", Name: "one"},
		&discordgo.Emoji{ID: "e2", Name: "two"},
		&discordgo.Emoji{ID: "e3", Name: "three"},
		&discordgo.Emoji{ID: "e4", Name: "four"},
	)
	hs.fake.AddAudit("g", discordgo.AuditLogActionEmojiDelete, "a", "e1", time.Now())
	hs.h.handleEmojisUpdate(context.Background(), "g", []*discordgo.Emoji{{ID: "e4", Name: "four"}})

	assert.True(t, hs.fake.Banned("g", "a"))
	assert.Equal(t, 1, hs.sink.count("EMOJI_DELETE"))
}

func TestEmojiDeletionCountsUpdatesNotEmojis(t *testing.T) {
	hs := setup(t, nil)
	hs.prime(t,
		&discordgo.Emoji{ID: "e1", Name: "one"},
		&discordgo.Emoji{ID: "e2", Name: "two"},
		&discordgo.Emoji{ID: "e3", Name: "three"},
		&discordgo.Emoji{ID: "e4", Name: "four"},
	)
	hs.fake.AddAudit("g", discordgo.AuditLogActionEmojiDelete, "a", "e1", time.Now())
	hs.h.handleEmojisUpdate(context.Background(), "g", []*discordgo.Emoji{
		{ID: "e3", Name: "three"},
		{ID: "e4", Name: "four"},
	})
	assert.False(t, hs.fake.Banned("g", "a"))
	assert.Zero(t, hs.sink.count("EMOJI_DELETE"))

	hs.fake.AddAudit("g", discordgo.AuditLogActionEmojiDelete, "a", "e3", time.Now())
	hs.h.handleEmojisUpdate(context.Background(), "g", []*discordgo.Emoji{{ID: "e4", Name: "four"}})
	assert.True(t, hs.fake.Banned("g", "a"))
	assert.Equal(t, 1, hs.fake.Calls("Ban"))
	assert.Equal(t, 1, hs.sink.count("EMOJI_DELETE"))
}

func TestWindowedUpdateSpamReverted(t *testing.T) {
	until := time.Now().Add(time.Hour)

	cases := []struct {
		name   string
		kind   model.SignalKind
		op     string
		event  func(t *testing.T, hs *harness, i int) string
		revert func(t *testing.T, hs *harness, target string)
	}{
		{
			name: "channel rename",
			kind: model.SignalChannelRename,
			op:   "EditChannel",
			event: func(t *testing.T, hs *harness, i int) string {
				after := hs.fake.AddChannel("g", &discordgo.Channel{Name: fmt.Sprintf("raided-%d", i), Type: discordgo.ChannelTypeGuildText})
				before := *after
				before.Name = fmt.Sprintf("general-%d", i)
				hs.fake.AddAudit("g", discordgo.AuditLogActionChannelUpdate, "a", after.ID, time.Now())
				hs.h.handleChannelUpdate(context.Background(), &before, after)
				return after.ID
			},
			revert: func(t *testing.T, hs *harness, target string) {
				ch, ok := hs.fake.ChannelByID(target)
				require.True(t, ok)
				assert.True(t, strings.HasPrefix(ch.Name, "general-"))
			},
		},
		{
			name: "nsfw toggle",
			kind: model.SignalNSFWToggle,
			op:   "EditChannel",
			event: func(t *testing.T, hs *harness, i int) string {
				after := hs.fake.AddChannel("g", &discordgo.Channel{Name: fmt.Sprintf("chat-%d", i), Type: discordgo.ChannelTypeGuildText, NSFW: true})
				before := *after
				before.NSFW = false
				hs.fake.AddAudit("g", discordgo.AuditLogActionChannelUpdate, "a", after.ID, time.Now())
				hs.h.handleChannelUpdate(context.Background(), &before, after)
				return after.ID
			},
			revert: func(t *testing.T, hs *harness, target string) {
				ch, ok := hs.fake.ChannelByID(target)
				require.True(t, ok)
				assert.False(t, ch.NSFW)
			},
		},
		{
			name: "timeout applied",
			kind: model.SignalTimeoutApplied,
			op:   "ClearTimeout",
			event: func(t *testing.T, hs *harness, i int) string {
				target := fmt.Sprintf("m%d", i)
				hs.fake.AddMember("g", target, false)
				before := &discordgo.Member{GuildID: "g", User: &discordgo.User{ID: target}}
				after := &discordgo.Member{GuildID: "g", User: &discordgo.User{ID: target}, CommunicationDisabledUntil: &until}
				hs.fake.AddAudit("g", discordgo.AuditLogActionMemberUpdate, "a", target, time.Now())
				hs.h.handleMemberUpdate(context.Background(), before, after)
				return target
			},
			revert: func(t *testing.T, hs *harness, target string) {
				m, err := hs.fake.Member(context.Background(), "g", target)
				require.NoError(t, err)
				assert.Nil(t, m.CommunicationDisabledUntil)
			},
		},
		{
			name: "mass role grant",
			kind: model.SignalMassRoleGrant,
			op:   "SetMemberRoles",
			event: func(t *testing.T, hs *harness, i int) string {
				target := fmt.Sprintf("m%d", i)
				hs.fake.AddMember("g", target, false, "base", "plain")
				before := &discordgo.Member{GuildID: "g", User: &discordgo.User{ID: target}, Roles: []string{"base"}}
				after := &discordgo.Member{GuildID: "g", User: &discordgo.User{ID: target}, Roles: []string{"base", "plain"}}
				hs.fake.AddAudit("g", discordgo.AuditLogActionMemberRoleUpdate, "a", target, time.Now())
				hs.h.handleMemberUpdate(context.Background(), before, after)
				return target
			},
			revert: func(t *testing.T, hs *harness, target string) {
				assert.Equal(t, []string{"base"}, hs.fake.MemberRoles("g", target))
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			count := model.DefaultThresholds[tc.kind].Count

			below := setup(t, nil)
			below.fake.AddRole("g", &discordgo.Role{ID: "base", Name: "base", Permissions: discordgo.PermissionSendMessages})
			below.fake.AddRole("g", &discordgo.Role{ID: "plain", Name: "plain", Permissions: discordgo.PermissionSendMessages})
			for i := 0; i < count-1; i++ {
				tc.event(t, below, i)
			}
			assert.False(t, below.fake.Banned("g", "a"))
			assert.Zero(t, below.fake.Calls(tc.op))

			hs := setup(t, nil)
			hs.fake.AddRole("g", &discordgo.Role{ID: "base", Name: "base", Permissions: discordgo.PermissionSendMessages})
			hs.fake.AddRole("g", &discordgo.Role{ID: "plain", Name: "plain", Permissions: discordgo.PermissionSendMessages})
			var last string
			for i := 0; i < count; i++ {
				last = tc.event(t, hs, i)
			}
			assert.True(t, hs.fake.Banned("g", "a"))
			assert.Equal(t, 1, hs.fake.Calls("Ban"))
			assert.Equal(t, 1, hs.fake.Calls(tc.op))
			tc.revert(t, hs, last)
		})
	}
}

func TestInviteSpamDeletesInvites(t *testing.T) {
	hs := setup(t, nil)
	var codes []string
	for i := 0; i < 10; i++ {
		code := fmt.Sprintf("inv%d", i)
		codes = append(codes, code)
		hs.fake.AddInvite(code)
		hs.h.handleInviteCreate(context.Background(), "g", &discordgo.Invite{Code: code, Inviter: &discordgo.User{ID: "a"}})
	}
	assert.True(t, hs.fake.Banned("g", "a"))
	for _, code := range codes {
		assert.False(t, hs.fake.InviteExists(code))
	}
}

func TestEmojiSpamDeletedWithoutBan(t *testing.T) {
	hs := setup(t, nil)
	ctx := context.Background()

	spam := &discordgo.Message{ID: "1", ChannelID: "general", GuildID: "g",
		Author: &discordgo.User{ID: "a"}, Content: strings.Repeat("😀 ", 10)}
	assert.False(t, hs.h.handleMessage(ctx, spam))

	custom := &discordgo.Message{ID: "2", ChannelID: "general", GuildID: "g",
		Author: &discordgo.User{ID: "a"}, Content: strings.Repeat("<:pog:123456>", 6),
		Embeds: []*discordgo.MessageEmbed{{Description: strings.Repeat("<a:dance:42>", 4)}}}
	assert.False(t, hs.h.handleMessage(ctx, custom))

	chatty := &discordgo.Message{ID: "3", ChannelID: "general", GuildID: "g",
		Author: &discordgo.User{ID: "a"}, Content: strings.Repeat("😀", 10) + strings.Repeat("word ", 30)}
	assert.True(t, hs.h.handleMessage(ctx, chatty))

	assert.Equal(t, []string{"general/1", "general/2"}, hs.fake.DeletedMessages())
	assert.Equal(t, 0, hs.fake.Calls("Ban"))
	assert.Equal(t, 2, hs.resp.Ledger().Count("a"))
}

func TestCountEmojis(t *testing.T) {
	tests := []struct {
		name   string
		text   string
		emojis int
		other  int
	}{
		{"plain", "hello world", 0, 10},
		{"faces", "😀😃 😄", 3, 0},
		{"custom", "<:pog:1> <a:dance:22> hi", 2, 2},
		{"keycap", "1️⃣", 1, 0},
		{"digits", "123", 0, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			emojis, other := countEmojis(tt.text)
			assert.Equal(t, tt.emojis, emojis)
			assert.Equal(t, tt.other, other)
		})
	}
}

func TestJoiningBots(t *testing.T) {
	hs := setup(t, nil)
	ctx := context.Background()
	hs.fake.AddRole("g", &discordgo.Role{ID: "evilrole", Name: "evil", Managed: true, Permissions: discordgo.PermissionAdministrator})
	hs.prime(t)

	hs.fake.AddMember("g", "evil", true, "evilrole")
	hs.h.handleMemberAdd(ctx, &discordgo.Member{GuildID: "g", User: &discordgo.User{ID: "evil", Bot: true}, Roles: []string{"evilrole"}})
	assert.True(t, hs.fake.Banned("g", "evil"))
	assert.Equal(t, 1, hs.sink.count("BOT_BANNED"))

	hs.fake.AddMember("g", "meh", true)
	hs.h.handleMemberAdd(ctx, &discordgo.Member{GuildID: "g", User: &discordgo.User{ID: "meh", Bot: true}})
	q, ok := hs.fake.RoleByName("g", responder.QuarantineRoleName)
	require.True(t, ok)
	assert.Contains(t, hs.fake.MemberRoles("g", "meh"), q.ID)
	assert.Equal(t, 1, hs.sink.count("BOT_QUARANTINED"))

	require.NoError(t, hs.trust.ApproveBot("good"))
	hs.fake.AddMember("g", "good", true)
	hs.h.handleMemberAdd(ctx, &discordgo.Member{GuildID: "g", User: &discordgo.User{ID: "good", Bot: true}})
	assert.Empty(t, hs.fake.MemberRoles("g", "good"))
	assert.Equal(t, 1, hs.fake.Calls("Ban"))

	hs.h.handleMemberAdd(ctx, &discordgo.Member{GuildID: "g", User: &discordgo.User{ID: "human"}})
	assert.Equal(t, 1, hs.fake.Calls("AddMemberRole"))
}

func TestRaidModeEnforcedOnChannelUpdate(t *testing.T) {
	hs := setup(t, nil)
	ctx := context.Background()
	ch := hs.fake.AddChannel("g", &discordgo.Channel{ID: "general", Name: "general", Type: discordgo.ChannelTypeGuildText})

	_, err := hs.raid.Trigger(ctx, "g")
	require.NoError(t, err)
	before, _ := hs.fake.ChannelByID(ch.ID)

	require.NoError(t, hs.fake.SetRolePermission(ctx, ch.ID, "g", discordgo.PermissionSendMessages, 0, "attacker"))
	after, _ := hs.fake.ChannelByID(ch.ID)
	hs.h.handleChannelUpdate(ctx, before, after)

	_, deny, ok := hs.fake.Overwrite(ch.ID, "g")
	require.True(t, ok)
	assert.NotZero(t, deny&discordgo.PermissionSendMessages)
}

func TestChannelLockSpamReverted(t *testing.T) {
	hs := setup(t, nil)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		ch := hs.fake.AddChannel("g", &discordgo.Channel{Name: fmt.Sprintf("c%d", i), Type: discordgo.ChannelTypeGuildText})
		before, _ := hs.fake.ChannelByID(ch.ID)
		require.NoError(t, hs.fake.SetRolePermission(ctx, ch.ID, "g", 0, discordgo.PermissionSendMessages, "attacker"))
		after, _ := hs.fake.ChannelByID(ch.ID)
		hs.fake.AddAudit("g", discordgo.AuditLogActionChannelOverwriteCreate, "a", ch.ID, time.Now())
		hs.h.handleChannelUpdate(ctx, before, after)

		if i == 2 {
			_, _, ok := hs.fake.Overwrite(ch.ID, "g")
			assert.False(t, ok, "overwrite left empty should be removed")
		}
	}
	assert.True(t, hs.fake.Banned("g", "a"))
	assert.Equal(t, 1, hs.fake.Calls("DeleteRolePermission"))
}

func TestWebhookGuard(t *testing.T) {
	hs := setup(t, &model.Config{GuardWebhooks: true})
	ctx := context.Background()
	ch := hs.fake.AddChannel("g", &discordgo.Channel{ID: "general", Name: "general", Type: discordgo.ChannelTypeGuildText})
	hs.fake.AddWebhook("g", ch.ID, "hook1")
	hs.fake.AddWebhook("g", ch.ID, "hook2")

	hs.h.handleWebhooksUpdate(ctx, "g", ch.ID)

	assert.Equal(t, 0, hs.fake.WebhookCount(ch.ID))
	_, deny, ok := hs.fake.Overwrite(ch.ID, "g")
	require.True(t, ok)
	assert.NotZero(t, deny&discordgo.PermissionManageWebhooks)
	assert.Equal(t, 1, hs.sink.count("WEBHOOK_REMOVED"))

	// Already denied: the sweep only lists webhooks.
	assert.Equal(t, 0, hs.h.GuardWebhooks(ctx, "g", 10))
	assert.Equal(t, 1, hs.fake.Calls("SetRolePermission"))
}

func TestWebhookGuardDisabled(t *testing.T) {
	hs := setup(t, nil)
	ch := hs.fake.AddChannel("g", &discordgo.Channel{ID: "general", Name: "general", Type: discordgo.ChannelTypeGuildText})
	hs.fake.AddWebhook("g", ch.ID, "hook1")

	hs.h.handleWebhooksUpdate(context.Background(), "g", ch.ID)
	assert.Equal(t, 1, hs.fake.WebhookCount(ch.ID))
}

func TestAttributorRefetchesStalePage(t *testing.T) {
	fake := platformtest.New("self")
	fake.AddGuild("g", "owner")
	a := NewAttributor(fake, 0)
	ctx := context.Background()

	fake.AddAudit("g", discordgo.AuditLogActionRoleCreate, "a", "r1", time.Now())
	actor, err := a.Actor(ctx, "g", "r1", discordgo.AuditLogActionRoleCreate)
	require.NoError(t, err)
	assert.Equal(t, "a", actor)

	// Cached page hit.
	_, err = a.Actor(ctx, "g", "r1", discordgo.AuditLogActionRoleCreate)
	require.NoError(t, err)
	assert.Equal(t, 1, fake.Calls("AuditLog"))

	// The cached page lacks r2, so it is fetched again.
	fake.AddAudit("g", discordgo.AuditLogActionRoleCreate, "b", "r2", time.Now())
	actor, err = a.Actor(ctx, "g", "r2", discordgo.AuditLogActionRoleCreate)
	require.NoError(t, err)
	assert.Equal(t, "b", actor)
	assert.Equal(t, 2, fake.Calls("AuditLog"))

	_, err = a.Actor(ctx, "g", "r3", discordgo.AuditLogActionRoleCreate)
	assert.ErrorIs(t, err, platform.ErrNotAttributed)
}
