// Package snapshot captures a guild's structure and rebuilds what is missing.
// Structures are matched by name because platform ids cannot be reissued; two
// structures sharing a name are indistinguishable to a restore.
package snapshot

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/hakimkaamino/secun0c-bot/model"
	"github.com/hakimkaamino/secun0c-bot/platform"
	"github.com/hakimkaamino/secun0c-bot/utils/database"
	"github.com/hakimkaamino/secun0c-bot/utils/logging"
	"github.com/jmoiron/sqlx"
	"github.com/puzpuzpuz/xsync/v3"
	"golang.org/x/time/rate"
)

var logger = logging.New("snapshot")

// Sink receives the guild-facing log records.
type Sink interface {
	Log(ctx context.Context, rec model.LogRecord)
}

// Store keeps one snapshot per guild in memory and in the database.
type Store struct {
	client  platform.Client
	sink    Sink
	db      *sqlx.DB
	limiter *rate.Limiter

	slots *xsync.MapOf[string, *model.Snapshot]
	locks *xsync.MapOf[string, *sync.Mutex]
}

// New creates a Store. A nil limiter paces restore mutations at 5 per second.
func New(client platform.Client, sink Sink, db *sqlx.DB, limiter *rate.Limiter) *Store {
	if limiter == nil {
		limiter = rate.NewLimiter(rate.Every(200*time.Millisecond), 5)
	}
	return &Store{
		client:  client,
		sink:    sink,
		db:      db,
		limiter: limiter,
		slots:   xsync.NewMapOf[string, *model.Snapshot](),
		locks:   xsync.NewMapOf[string, *sync.Mutex](),
	}
}

// Capture reads the guild's current structure and replaces its snapshot.
func (s *Store) Capture(ctx context.Context, guildID string) (*model.Snapshot, error) {
	g, err := s.client.Guild(ctx, guildID)
	if err != nil {
		return nil, fmt.Errorf("failed to get guild: %w", err)
	}
	roles, err := s.client.Roles(ctx, guildID)
	if err != nil {
		return nil, fmt.Errorf("failed to list roles: %w", err)
	}
	channels, err := s.client.Channels(ctx, guildID)
	if err != nil {
		return nil, fmt.Errorf("failed to list channels: %w", err)
	}
	members, err := s.client.Members(ctx, guildID)
	if err != nil {
		return nil, fmt.Errorf("failed to list members: %w", err)
	}

	snap := &model.Snapshot{
		GuildID:     guildID,
		GuildName:   g.Name,
		CapturedAt:  time.Now().UTC(),
		MemberRoles: make(map[string][]string, len(members)),
	}
	for _, r := range roles {
		snap.Roles = append(snap.Roles, model.RoleSnapshot{
			ID:          r.ID,
			Name:        r.Name,
			Color:       r.Color,
			Permissions: r.Permissions,
			Position:    r.Position,
			Hoist:       r.Hoist,
			Mentionable: r.Mentionable,
			Managed:     r.Managed,
		})
	}
	for _, ch := range channels {
		if ch.Type == discordgo.ChannelTypeGuildCategory {
			snap.Categories = append(snap.Categories, model.CategorySnapshot{ID: ch.ID, Name: ch.Name, Position: ch.Position})
			continue
		}
		snap.Channels = append(snap.Channels, model.ChannelSnapshot{
			ID:       ch.ID,
			Name:     ch.Name,
			Type:     int(ch.Type),
			ParentID: ch.ParentID,
			Position: ch.Position,
		})
	}
	for _, m := range members {
		if m.User == nil {
			continue
		}
		var held []string
		for _, id := range m.Roles {
			if id != guildID {
				held = append(held, id)
			}
		}
		snap.MemberRoles[m.User.ID] = held
	}

	s.slots.Store(guildID, snap)
	if s.db != nil {
		if err := database.SaveSnapshot(s.db, snap); err != nil {
			return snap, err
		}
	}
	snapshotOps.WithLabelValues("capture").Inc()
	logger.Info().Str("guild", guildID).Int("roles", len(snap.Roles)).Int("channels", len(snap.Channels)).
		Int("members", len(snap.MemberRoles)).Msg("snapshot captured")
	return snap, nil
}

// Get returns the guild's snapshot, loading it from the database on a miss.
func (s *Store) Get(guildID string) (*model.Snapshot, bool) {
	if snap, ok := s.slots.Load(guildID); ok {
		return snap, true
	}
	if s.db == nil {
		return nil, false
	}
	snap, err := database.GetSnapshot(s.db, guildID)
	if err != nil {
		logger.Warn().Err(err).Str("guild", guildID).Msg("failed to load snapshot")
		return nil, false
	}
	if snap == nil {
		return nil, false
	}
	s.slots.Store(guildID, snap)
	return snap, true
}

// Result counts what a restore created or granted.
type Result struct {
	Roles      int
	Categories int
	Channels   int
	Grants     int
	Failures   int
}

func (r Result) String() string {
	return fmt.Sprintf("%d roles, %d categories, %d channels, %d role grants (%d failures)",
		r.Roles, r.Categories, r.Channels, r.Grants, r.Failures)
}

// Restore recreates every snapshot role, category and text channel whose
// name is missing and grants members the snapshot roles they lack. It never
// deletes or revokes anything. It returns false when the guild has no
// snapshot. Restores of one guild run one at a time.
func (s *Store) Restore(ctx context.Context, guildID string) (bool, error) {
	snap, ok := s.Get(guildID)
	if !ok {
		return false, nil
	}
	mu, _ := s.locks.LoadOrCompute(guildID, func() *sync.Mutex { return &sync.Mutex{} })
	mu.Lock()
	defer mu.Unlock()

	res, err := s.restore(ctx, snap)
	snapshotOps.WithLabelValues("restore").Inc()
	sev := model.SeveritySuccess
	if err != nil || res.Failures > 0 {
		sev = model.SeverityWarning
	}
	desc := "Restored " + res.String() + "."
	if err != nil {
		desc += " Stopped early: " + err.Error()
	}
	s.sink.Log(ctx, model.LogRecord{
		GuildID:     guildID,
		Type:        "RESTORE",
		Title:       "Snapshot restore",
		Description: desc,
		Severity:    sev,
	})
	return true, err
}

func (s *Store) restore(ctx context.Context, snap *model.Snapshot) (Result, error) {
	var res Result
	guildID := snap.GuildID

	roles, err := s.client.Roles(ctx, guildID)
	if err != nil {
		return res, fmt.Errorf("failed to list roles: %w", err)
	}
	roleByName := make(map[string]string, len(roles))
	for _, r := range roles {
		if _, dup := roleByName[r.Name]; !dup {
			roleByName[r.Name] = r.ID
		}
	}
	for _, r := range snap.Roles {
		if r.ID == guildID || r.Managed {
			continue
		}
		if _, ok := roleByName[r.Name]; ok {
			continue
		}
		if err := s.limiter.Wait(ctx); err != nil {
			return res, err
		}
		color, perms, hoist, mention := r.Color, r.Permissions, r.Hoist, r.Mentionable
		created, err := s.client.CreateRole(ctx, guildID, &discordgo.RoleParams{
			Name:        r.Name,
			Color:       &color,
			Permissions: &perms,
			Hoist:       &hoist,
			Mentionable: &mention,
		}, "Snapshot restore")
		if err != nil {
			res.Failures++
			logger.Warn().Err(err).Str("guild", guildID).Str("role", r.Name).Msg("failed to recreate role")
			continue
		}
		roleByName[r.Name] = created.ID
		res.Roles++
	}

	channels, err := s.client.Channels(ctx, guildID)
	if err != nil {
		return res, fmt.Errorf("failed to list channels: %w", err)
	}
	categoryByName := make(map[string]string)
	textByName := make(map[string]bool)
	for _, ch := range channels {
		switch {
		case ch.Type == discordgo.ChannelTypeGuildCategory:
			if _, dup := categoryByName[ch.Name]; !dup {
				categoryByName[ch.Name] = ch.ID
			}
		case isText(ch.Type):
			textByName[ch.Name] = true
		}
	}
	for _, c := range snap.Categories {
		if _, ok := categoryByName[c.Name]; ok {
			continue
		}
		if err := s.limiter.Wait(ctx); err != nil {
			return res, err
		}
		created, err := s.client.CreateChannel(ctx, guildID, discordgo.GuildChannelCreateData{
			Name:     c.Name,
			Type:     discordgo.ChannelTypeGuildCategory,
			Position: c.Position,
		}, "Snapshot restore")
		if err != nil {
			res.Failures++
			logger.Warn().Err(err).Str("guild", guildID).Str("category", c.Name).Msg("failed to recreate category")
			continue
		}
		categoryByName[c.Name] = created.ID
		res.Categories++
	}
	for _, c := range snap.Channels {
		if !isText(discordgo.ChannelType(c.Type)) || textByName[c.Name] {
			continue
		}
		parentID := ""
		if name, ok := snap.CategoryName(c.ParentID); ok {
			parentID = categoryByName[name]
		}
		if err := s.limiter.Wait(ctx); err != nil {
			return res, err
		}
		_, err := s.client.CreateChannel(ctx, guildID, discordgo.GuildChannelCreateData{
			Name:     c.Name,
			Type:     discordgo.ChannelType(c.Type),
			Position: c.Position,
			ParentID: parentID,
		}, "Snapshot restore")
		if err != nil {
			res.Failures++
			logger.Warn().Err(err).Str("guild", guildID).Str("channel", c.Name).Msg("failed to recreate channel")
			continue
		}
		textByName[c.Name] = true
		res.Channels++
	}

	members, err := s.client.Members(ctx, guildID)
	if err != nil {
		return res, fmt.Errorf("failed to list members: %w", err)
	}
	for _, m := range members {
		if m.User == nil {
			continue
		}
		want, ok := snap.MemberRoles[m.User.ID]
		if !ok {
			continue
		}
		held := make(map[string]bool, len(m.Roles))
		for _, id := range m.Roles {
			held[id] = true
		}
		for _, oldID := range want {
			name, ok := snap.RoleName(oldID)
			if !ok {
				continue
			}
			liveID, ok := roleByName[name]
			if !ok || held[liveID] || isManaged(snap, oldID) {
				continue
			}
			if err := s.limiter.Wait(ctx); err != nil {
				return res, err
			}
			if err := s.client.AddMemberRole(ctx, guildID, m.User.ID, liveID, "Snapshot restore"); err != nil {
				res.Failures++
				logger.Warn().Err(err).Str("guild", guildID).Str("member", m.User.ID).Str("role", name).Msg("failed to grant role")
				continue
			}
			held[liveID] = true
			res.Grants++
		}
	}
	return res, nil
}

func isText(t discordgo.ChannelType) bool {
	return t == discordgo.ChannelTypeGuildText || t == discordgo.ChannelTypeGuildNews
}

func isManaged(snap *model.Snapshot, roleID string) bool {
	for _, r := range snap.Roles {
		if r.ID == roleID {
			return r.Managed
		}
	}
	return false
}
