package handlers

import (
	"context"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/hakimkaamino/secun0c-bot/model"
	"github.com/puzpuzpuz/xsync/v3"
)

// roleCache keeps the last seen state of every role. Role update events
// carry only the new state, so the previous permissions and position come
// from here.
type roleCache struct {
	roles *xsync.MapOf[string, discordgo.Role]
}

func newRoleCache() *roleCache {
	return &roleCache{roles: xsync.NewMapOf[string, discordgo.Role]()}
}

func roleKey(guildID, roleID string) string {
	return guildID + "/" + roleID
}

func (c *roleCache) prime(guildID string, roles []*discordgo.Role) {
	for _, r := range roles {
		if r != nil {
			c.roles.Store(roleKey(guildID, r.ID), *r)
		}
	}
}

func (c *roleCache) get(guildID, roleID string) (discordgo.Role, bool) {
	return c.roles.Load(roleKey(guildID, roleID))
}

// swap stores the new state of a role and returns the previous one.
func (c *roleCache) swap(guildID string, r *discordgo.Role) (discordgo.Role, bool) {
	return c.roles.LoadAndStore(roleKey(guildID, r.ID), *r)
}

func (c *roleCache) remove(guildID, roleID string) {
	c.roles.Delete(roleKey(guildID, roleID))
}

// role returns a role from the cache, refreshing the guild's roles from the
// platform on a miss.
func (h *Handler) role(ctx context.Context, guildID, roleID string) (discordgo.Role, bool) {
	if r, ok := h.roles.get(guildID, roleID); ok {
		return r, true
	}
	roles, err := h.client.Roles(ctx, guildID)
	if err != nil {
		logger.Warn().Err(err).Str("guild", guildID).Msg("failed to refresh roles")
		return discordgo.Role{}, false
	}
	h.roles.prime(guildID, roles)
	return h.roles.get(guildID, roleID)
}

// permissions is the union of the base role and the given roles.
func (h *Handler) permissions(ctx context.Context, guildID string, roleIDs []string) int64 {
	var perms int64
	if base, ok := h.role(ctx, guildID, guildID); ok {
		perms |= base.Permissions
	}
	for _, id := range roleIDs {
		if r, ok := h.role(ctx, guildID, id); ok {
			perms |= r.Permissions
		}
	}
	return perms
}

// topPosition is the highest role position held by userID.
func (h *Handler) topPosition(ctx context.Context, guildID, userID string) (int, bool) {
	m, err := h.client.Member(ctx, guildID, userID)
	if err != nil {
		logger.Warn().Err(err).Str("guild", guildID).Str("user", userID).Msg("failed to fetch member")
		return 0, false
	}
	top := 0
	for _, id := range m.Roles {
		if r, ok := h.role(ctx, guildID, id); ok && r.Position > top {
			top = r.Position
		}
	}
	return top, true
}

func (h *Handler) primeEmojis(guildID string, emojis []*discordgo.Emoji) {
	h.emojis.Store(guildID, emojiNames(emojis))
}

func emojiNames(emojis []*discordgo.Emoji) map[string]string {
	m := make(map[string]string, len(emojis))
	for _, e := range emojis {
		if e != nil {
			m[e.ID] = e.Name
		}
	}
	return m
}

type creationKey struct {
	guildID string
	actorID string
	kind    model.SignalKind
}

type created struct {
	id string
	at time.Time
}

type creations struct {
	mu    sync.Mutex
	items []created
	dead  bool
}

// creationBuffer remembers what each actor created recently so a breach can
// undo the whole burst, not only the object that crossed the threshold.
type creationBuffer struct {
	byActor *xsync.MapOf[creationKey, *creations]
}

func newCreationBuffer() *creationBuffer {
	return &creationBuffer{byActor: xsync.NewMapOf[creationKey, *creations]()}
}

func (b *creationBuffer) add(k creationKey, id string, at time.Time, window time.Duration) {
	for {
		c, _ := b.byActor.LoadOrCompute(k, func() *creations { return &creations{} })
		c.mu.Lock()
		if c.dead {
			c.mu.Unlock()
			continue
		}
		c.items = trimCreated(c.items, at, window)
		c.items = append(c.items, created{id: id, at: at})
		c.mu.Unlock()
		return
	}
}

// take removes and returns the ids created within window before at.
func (b *creationBuffer) take(k creationKey, at time.Time, window time.Duration) []string {
	c, ok := b.byActor.Load(k)
	if !ok {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	items := trimCreated(c.items, at, window)
	c.items = nil
	ids := make([]string, 0, len(items))
	for _, it := range items {
		ids = append(ids, it.id)
	}
	return ids
}

// sweep forgets actors with nothing created within window before at.
func (b *creationBuffer) sweep(at time.Time, window time.Duration) {
	b.byActor.Range(func(k creationKey, _ *creations) bool {
		b.byActor.Compute(k, func(c *creations, loaded bool) (*creations, bool) {
			if !loaded {
				return nil, true
			}
			c.mu.Lock()
			defer c.mu.Unlock()
			c.items = trimCreated(c.items, at, window)
			c.dead = len(c.items) == 0
			return c, c.dead
		})
		return true
	})
}

func trimCreated(items []created, at time.Time, window time.Duration) []created {
	i := 0
	for i < len(items) && at.Sub(items[i].at) >= window {
		i++
	}
	return items[i:]
}
