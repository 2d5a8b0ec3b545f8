package responder

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/bwmarrin/discordgo"
	"github.com/hakimkaamino/secun0c-bot/config"
	"github.com/hakimkaamino/secun0c-bot/model"
	"github.com/hakimkaamino/secun0c-bot/platform"
	"github.com/hakimkaamino/secun0c-bot/platform/platformtest"
	"github.com/hakimkaamino/secun0c-bot/trust"
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

func (s *memSink) types() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, r := range s.records {
		out = append(out, r.Type)
	}
	return out
}

func setup(t *testing.T) (*platformtest.Fake, *memSink, *Responder) {
	t.Helper()
	fake := platformtest.New("self")
	fake.AddGuild("g", "owner")
	fake.AddMember("g", "owner", false)
	fake.AddRole("g", &discordgo.Role{ID: "r-admin", Name: "Admin"})
	fake.AddMember("g", "mallory", false, "r-admin")

	store := config.NewStore(nil, nil)
	sink := &memSink{}
	r := New(fake, trust.New(fake, store, nil), sink, store, NewLedger(nil))
	return fake, sink, r
}

func TestNeutralizeOwnerIsNoop(t *testing.T) {
	fake, sink, r := setup(t)

	for i := 0; i < 5; i++ {
		assert.False(t, r.Neutralize(context.Background(), "g", "owner", "mass channel delete"))
	}
	assert.Zero(t, fake.Calls("Ban"))
	assert.Zero(t, fake.Calls("Kick"))
	assert.Zero(t, r.Ledger().Count("owner"))
	assert.Empty(t, sink.types())
}

func TestNeutralizeUnresolvedActor(t *testing.T) {
	fake, _, r := setup(t)
	assert.False(t, r.Neutralize(context.Background(), "g", "", "x"))
	assert.Zero(t, fake.Calls("Ban"))
}

func TestNeutralizeBans(t *testing.T) {
	fake, sink, r := setup(t)

	assert.True(t, r.Neutralize(context.Background(), "g", "mallory", "mass channel delete"))
	assert.True(t, fake.Banned("g", "mallory"))
	assert.Equal(t, 1, r.Ledger().Count("mallory"))
	assert.Equal(t, []string{"IMMEDIATE_BAN"}, sink.types())
	assert.Equal(t, model.SeverityDanger, sink.records[0].Severity)
}

func TestNeutralizeFallsBackToKick(t *testing.T) {
	fake, sink, r := setup(t)
	fake.FailNext("Ban", fmt.Errorf("%w: missing permissions", platform.ErrPermission))

	assert.True(t, r.Neutralize(context.Background(), "g", "mallory", "role delete"))
	assert.False(t, fake.Banned("g", "mallory"))
	assert.False(t, fake.HasMember("g", "mallory"))
	assert.Equal(t, 1, fake.Calls("SetMemberRoles"))
	assert.Equal(t, 1, fake.Calls("Kick"))
	assert.Equal(t, 1, r.Ledger().Count("mallory"))
	assert.Equal(t, []string{"KICK_FALLBACK"}, sink.types())
}

func TestNeutralizeFallbackFailure(t *testing.T) {
	fake, sink, r := setup(t)
	fake.FailNext("Ban", fmt.Errorf("%w: missing permissions", platform.ErrPermission))
	fake.FailNext("Kick", fmt.Errorf("%w: missing permissions", platform.ErrPermission))

	assert.False(t, r.Neutralize(context.Background(), "g", "mallory", "role delete"))
	assert.Zero(t, r.Ledger().Count("mallory"))
	assert.Equal(t, []string{"NEUTRALIZE_FAILED"}, sink.types())
}

func TestNeutralizeAlreadyGoneIsSuccess(t *testing.T) {
	fake, _, r := setup(t)
	fake.FailNext("Ban", fmt.Errorf("%w: unknown ban", platform.ErrAlreadyGone))

	assert.True(t, r.Neutralize(context.Background(), "g", "mallory", "x"))
	assert.Equal(t, 1, r.Ledger().Count("mallory"))
}

func TestConcurrentDuplicatesBanOnce(t *testing.T) {
	fake, _, r := setup(t)

	var wg sync.WaitGroup
	results := make([]bool, 20)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = r.Neutralize(context.Background(), "g", "mallory", "channel create")
		}(i)
	}
	wg.Wait()

	for _, acted := range results {
		assert.True(t, acted)
	}
	assert.Equal(t, 1, fake.Calls("Ban"))
	assert.Equal(t, 1, r.Ledger().Count("mallory"))
}

func TestQuarantineAndRelease(t *testing.T) {
	ctx := context.Background()
	fake, sink, r := setup(t)
	fake.AddMember("g", "newbot", true)

	require.NoError(t, r.Quarantine(ctx, "g", "newbot", "unapproved bot"))
	role, ok := fake.RoleByName("g", QuarantineRoleName)
	require.True(t, ok)
	assert.Equal(t, int64(discordgo.PermissionViewChannel), role.Permissions)
	assert.Contains(t, fake.MemberRoles("g", "newbot"), role.ID)
	assert.Equal(t, []string{"BOT_QUARANTINED"}, sink.types())

	// the role is reused, not created again
	fake.AddMember("g", "otherbot", true)
	require.NoError(t, r.Quarantine(ctx, "g", "otherbot", "unapproved bot"))
	assert.Equal(t, 1, fake.Calls("CreateRole"))

	require.NoError(t, r.Release(ctx, "g", "newbot"))
	assert.NotContains(t, fake.MemberRoles("g", "newbot"), role.ID)
}

func TestRecordViolation(t *testing.T) {
	_, sink, r := setup(t)
	r.RecordViolation(context.Background(), "g", "spammer", "emoji spam")
	r.RecordViolation(context.Background(), "g", "spammer", "emoji spam")

	assert.Equal(t, 2, r.Ledger().Count("spammer"))
	assert.Equal(t, map[string]int{"spammer": 2}, r.Ledger().Snapshot())
	assert.Equal(t, []string{"VIOLATION", "VIOLATION"}, sink.types())
}

func TestLedgerPersists(t *testing.T) {
	db, err := database.Init(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	defer db.Close()

	l := NewLedger(db)
	l.Record("g", "a", "mass delete", "ban")
	l.Record("h", "a", "spam", "delete")
	l.Record("g", "b", "spam", "delete")

	reloaded := NewLedger(db)
	require.NoError(t, reloaded.Load())
	assert.Equal(t, 2, reloaded.Count("a"))
	assert.Equal(t, 1, reloaded.Count("b"))

	history, err := reloaded.History("a", nil)
	require.NoError(t, err)
	assert.Len(t, history, 2)
}
