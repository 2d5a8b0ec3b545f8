package model

import "time"

// RoleSnapshot is the restorable shape of a role.
type RoleSnapshot struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Color       int    `json:"color"`
	Permissions int64  `json:"permissions"`
	Position    int    `json:"position"`
	Hoist       bool   `json:"hoist"`
	Mentionable bool   `json:"mentionable"`
	Managed     bool   `json:"managed"`
}

// CategorySnapshot is the restorable shape of a channel category.
type CategorySnapshot struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Position int    `json:"position"`
}

// ChannelSnapshot is the restorable shape of a non-category channel.
type ChannelSnapshot struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Type     int    `json:"type"`
	ParentID string `json:"parent_id"`
	Position int    `json:"position"`
}

// Snapshot is a point-in-time structural description of a guild. A guild has
// at most one; capturing replaces it. It is never mutated after capture.
type Snapshot struct {
	GuildID     string              `json:"guild_id"`
	GuildName   string              `json:"guild_name"`
	CapturedAt  time.Time           `json:"captured_at"`
	Roles       []RoleSnapshot      `json:"roles"`
	Categories  []CategorySnapshot  `json:"categories"`
	Channels    []ChannelSnapshot   `json:"channels"`
	MemberRoles map[string][]string `json:"member_roles"`
}

// RoleName resolves a snapshot role id to its captured name.
func (s *Snapshot) RoleName(roleID string) (string, bool) {
	for _, r := range s.Roles {
		if r.ID == roleID {
			return r.Name, true
		}
	}
	return "", false
}

// CategoryName resolves a snapshot category id to its captured name.
func (s *Snapshot) CategoryName(categoryID string) (string, bool) {
	for _, c := range s.Categories {
		if c.ID == categoryID {
			return c.Name, true
		}
	}
	return "", false
}
