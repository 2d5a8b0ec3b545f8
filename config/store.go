package config

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/hakimkaamino/secun0c-bot/model"
	"github.com/hakimkaamino/secun0c-bot/utils/database"
	"github.com/jmoiron/sqlx"
	"github.com/puzpuzpuz/xsync/v3"
)

// Store holds the per-guild settings. Reads resolve guild value, then the
// process configuration, then the built-in defaults. Cached values are
// replaced, never mutated, so readers need no lock.
type Store struct {
	db     *sqlx.DB
	cfg    *model.Config
	guilds *xsync.MapOf[string, *model.GuildSettings]
}

// NewStore creates a Store. db may be nil for a memory-only store.
func NewStore(db *sqlx.DB, cfg *model.Config) *Store {
	if cfg == nil {
		cfg = &model.Config{}
	}
	return &Store{
		db:     db,
		cfg:    cfg,
		guilds: xsync.NewMapOf[string, *model.GuildSettings](),
	}
}

// LoadAll fills the cache from the database. Invalid rows are logged and
// skipped.
func (s *Store) LoadAll() error {
	if s.db == nil {
		return nil
	}
	rows, err := database.LoadGuildSettings(s.db)
	if err != nil {
		return err
	}
	for _, row := range rows {
		err := s.update(row.GuildID, func(gs *model.GuildSettings) error {
			return apply(gs, row.Key, row.Value)
		})
		if err != nil {
			logger.Warn().Err(err).Str("guild", row.GuildID).Str("key", row.Key).Msg("skipping invalid guild setting")
		}
	}
	logger.Info().Int("rows", len(rows)).Msg("guild settings loaded")
	return nil
}

// Get returns a copy of the guild's explicit settings.
func (s *Store) Get(guildID string) model.GuildSettings {
	gs, ok := s.guilds.Load(guildID)
	if !ok {
		return model.GuildSettings{GuildID: guildID}
	}
	return *clone(gs)
}

// Set validates, persists and caches one option.
func (s *Store) Set(guildID, key, value string) error {
	check := &model.GuildSettings{GuildID: guildID}
	if err := apply(check, key, value); err != nil {
		return err
	}
	if s.db != nil {
		if err := database.SaveGuildSetting(s.db, guildID, key, value); err != nil {
			return err
		}
	}
	return s.update(guildID, func(gs *model.GuildSettings) error {
		return apply(gs, key, value)
	})
}

// Unset removes one option so reads fall back to the defaults.
func (s *Store) Unset(guildID, key string) error {
	if s.db != nil {
		if err := database.DeleteGuildSetting(s.db, guildID, key); err != nil {
			return err
		}
	}
	return s.update(guildID, func(gs *model.GuildSettings) error {
		return remove(gs, key)
	})
}

func (s *Store) update(guildID string, fn func(*model.GuildSettings) error) error {
	var err error
	s.guilds.Compute(guildID, func(old *model.GuildSettings, loaded bool) (*model.GuildSettings, bool) {
		next := &model.GuildSettings{GuildID: guildID}
		if loaded {
			next = clone(old)
		}
		if err = fn(next); err != nil {
			return old, !loaded
		}
		return next, false
	})
	return err
}

// Threshold implements model.ThresholdSource.
func (s *Store) Threshold(guildID string, kind model.SignalKind) model.Threshold {
	if gs, ok := s.guilds.Load(guildID); ok {
		if th, ok := gs.Thresholds[kind]; ok {
			return th
		}
	}
	if th, ok := s.cfg.Thresholds[kind]; ok {
		return th
	}
	return model.DefaultThresholds[kind]
}

func (s *Store) LogChannelID(guildID string) string {
	if gs, ok := s.guilds.Load(guildID); ok && gs.LogChannelID != "" {
		return gs.LogChannelID
	}
	return s.cfg.DefaultLogChannelID
}

func (s *Store) SetLogChannelID(guildID, channelID string) error {
	return s.Set(guildID, model.SettingLogChannelID, channelID)
}

func (s *Store) TrustedRoleID(guildID string) string {
	if gs, ok := s.guilds.Load(guildID); ok {
		return gs.TrustedRoleID
	}
	return ""
}

func (s *Store) SetTrustedRoleID(guildID, roleID string) error {
	return s.Set(guildID, model.SettingTrustedRoleID, roleID)
}

func (s *Store) QuarantineRoleID(guildID string) string {
	if gs, ok := s.guilds.Load(guildID); ok {
		return gs.QuarantineRoleID
	}
	return ""
}

func (s *Store) SetQuarantineRoleID(guildID, roleID string) error {
	return s.Set(guildID, model.SettingQuarantineRoleID, roleID)
}

// GuardWebhooks reports whether webhook creation is blocked in the guild.
func (s *Store) GuardWebhooks(guildID string) bool {
	if gs, ok := s.guilds.Load(guildID); ok && gs.GuardWebhooks != nil {
		return *gs.GuardWebhooks
	}
	return s.cfg.GuardWebhooks
}

// Guilds lists the guild ids with explicit settings.
func (s *Store) Guilds() []string {
	var ids []string
	s.guilds.Range(func(id string, _ *model.GuildSettings) bool {
		ids = append(ids, id)
		return true
	})
	return ids
}

func apply(gs *model.GuildSettings, key, value string) error {
	switch {
	case key == model.SettingLogChannelID:
		gs.LogChannelID = value
	case key == model.SettingTrustedRoleID:
		gs.TrustedRoleID = value
	case key == model.SettingQuarantineRoleID:
		gs.QuarantineRoleID = value
	case key == model.SettingGuardWebhooks:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid %s value %q: %w", key, value, err)
		}
		gs.GuardWebhooks = &b
	case strings.HasPrefix(key, model.SettingThresholdPrefix):
		kind := model.SignalKind(strings.TrimPrefix(key, model.SettingThresholdPrefix))
		if _, known := model.DefaultThresholds[kind]; !known {
			return fmt.Errorf("unknown threshold kind %q", kind)
		}
		th, err := model.ParseThreshold(value)
		if err != nil {
			return err
		}
		if gs.Thresholds == nil {
			gs.Thresholds = make(map[model.SignalKind]model.Threshold)
		}
		gs.Thresholds[kind] = th
	default:
		return fmt.Errorf("unknown setting %q", key)
	}
	return nil
}

func remove(gs *model.GuildSettings, key string) error {
	switch {
	case key == model.SettingLogChannelID:
		gs.LogChannelID = ""
	case key == model.SettingTrustedRoleID:
		gs.TrustedRoleID = ""
	case key == model.SettingQuarantineRoleID:
		gs.QuarantineRoleID = ""
	case key == model.SettingGuardWebhooks:
		gs.GuardWebhooks = nil
	case strings.HasPrefix(key, model.SettingThresholdPrefix):
		delete(gs.Thresholds, model.SignalKind(strings.TrimPrefix(key, model.SettingThresholdPrefix)))
	default:
		return fmt.Errorf("unknown setting %q", key)
	}
	return nil
}

func clone(gs *model.GuildSettings) *model.GuildSettings {
	c := *gs
	if gs.Thresholds != nil {
		c.Thresholds = make(map[model.SignalKind]model.Threshold, len(gs.Thresholds))
		for k, v := range gs.Thresholds {
			c.Thresholds[k] = v
		}
	}
	if gs.GuardWebhooks != nil {
		b := *gs.GuardWebhooks
		c.GuardWebhooks = &b
	}
	return &c
}
