package handlers

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/hakimkaamino/secun0c-bot/platform"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"
)

const (
	// DefaultLookback bounds how old a matching audit entry may be.
	DefaultLookback = 15 * time.Second

	auditLimit    = 5
	auditPageTTL  = 2 * time.Second
	auditPageSize = 512
)

type pageKey struct {
	guildID string
	action  discordgo.AuditLogAction
}

// Attributor resolves the actor behind an event from the audit log. The log
// is eventually consistent, so a result is a best-effort guess bounded by the
// lookback and an exact target match; anything else is not attributed.
type Attributor struct {
	client   platform.Client
	lookback time.Duration
	now      func() time.Time

	pages *expirable.LRU[pageKey, []*discordgo.AuditLogEntry]
	group singleflight.Group
}

func NewAttributor(client platform.Client, lookback time.Duration) *Attributor {
	if lookback <= 0 {
		lookback = DefaultLookback
	}
	return &Attributor{
		client:   client,
		lookback: lookback,
		now:      time.Now,
		pages:    expirable.NewLRU[pageKey, []*discordgo.AuditLogEntry](auditPageSize, nil, auditPageTTL),
	}
}

// Actor returns the user behind the newest entry of one of the actions that
// targets targetID. Actions are tried in order.
func (a *Attributor) Actor(ctx context.Context, guildID, targetID string, actions ...discordgo.AuditLogAction) (string, error) {
	for _, action := range actions {
		actor, err := a.actor(ctx, guildID, targetID, action)
		if err == nil {
			return actor, nil
		}
		if !isNotAttributed(err) {
			return "", err
		}
	}
	return "", fmt.Errorf("%w: guild %s target %s", platform.ErrNotAttributed, guildID, targetID)
}

func (a *Attributor) actor(ctx context.Context, guildID, targetID string, action discordgo.AuditLogAction) (string, error) {
	key := pageKey{guildID: guildID, action: action}
	entries, cached := a.pages.Get(key)
	if !cached {
		var err error
		if entries, err = a.fetch(ctx, key); err != nil {
			return "", err
		}
	}
	if actor, ok := a.match(entries, targetID); ok {
		return actor, nil
	}
	if !cached {
		return "", platform.ErrNotAttributed
	}

	// The cached page predates the event; look once more.
	a.pages.Remove(key)
	entries, err := a.fetch(ctx, key)
	if err != nil {
		return "", err
	}
	if actor, ok := a.match(entries, targetID); ok {
		return actor, nil
	}
	return "", platform.ErrNotAttributed
}

func (a *Attributor) fetch(ctx context.Context, key pageKey) ([]*discordgo.AuditLogEntry, error) {
	sfKey := key.guildID + ":" + strconv.Itoa(int(key.action))
	v, err, _ := a.group.Do(sfKey, func() (interface{}, error) {
		entries, err := a.client.AuditLog(ctx, key.guildID, key.action, auditLimit)
		if err != nil {
			return nil, err
		}
		a.pages.Add(key, entries)
		return entries, nil
	})
	if err != nil {
		return nil, fmt.Errorf("audit log %d for guild %s: %w", key.action, key.guildID, err)
	}
	return v.([]*discordgo.AuditLogEntry), nil
}

func (a *Attributor) match(entries []*discordgo.AuditLogEntry, targetID string) (string, bool) {
	now := a.now()
	for _, e := range entries {
		if e == nil || e.UserID == "" || e.TargetID != targetID {
			continue
		}
		at, err := discordgo.SnowflakeTimestamp(e.ID)
		if err != nil || now.Sub(at) > a.lookback {
			continue
		}
		return e.UserID, true
	}
	return "", false
}

func isNotAttributed(err error) bool {
	return errors.Is(err, platform.ErrNotAttributed)
}
