// Package platformtest provides an in-memory platform.Client for tests.
package platformtest

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/hakimkaamino/secun0c-bot/platform"
)

const discordEpoch = 1420070400000

// Snowflake returns an id whose embedded timestamp is at.
func Snowflake(at time.Time, seq int64) string {
	return strconv.FormatInt((at.UnixMilli()-discordEpoch)<<22|seq&0x3fffff, 10)
}

type guild struct {
	g        *discordgo.Guild
	roles    map[string]*discordgo.Role
	channels map[string]*discordgo.Channel
	members  map[string]*discordgo.Member
	bans     map[string]string
	audit    []*discordgo.AuditLogEntry
}

// Embed is a message embed posted through SendEmbed.
type Embed struct {
	ChannelID string
	Embed     *discordgo.MessageEmbed
}

// Fake is a platform.Client backed by maps. Unknown targets return errors
// wrapping platform.ErrAlreadyGone; errors queued with FailNext are returned
// before the operation runs.
type Fake struct {
	mu       sync.Mutex
	self     string
	seq      int64
	guilds   map[string]*guild
	webhooks map[string][]*discordgo.Webhook
	invites  map[string]bool
	embeds   []Embed
	deleted  []string
	calls    map[string]int
	failures map[string][]error
}

func New(selfID string) *Fake {
	return &Fake{
		self:     selfID,
		guilds:   make(map[string]*guild),
		webhooks: make(map[string][]*discordgo.Webhook),
		invites:  make(map[string]bool),
		calls:    make(map[string]int),
		failures: make(map[string][]error),
	}
}

func (f *Fake) nextID() string {
	f.seq++
	return Snowflake(time.Now(), f.seq)
}

func gone(kind, id string) error {
	return fmt.Errorf("%w: unknown %s %s", platform.ErrAlreadyGone, kind, id)
}

// call counts op and pops a queued failure. Callers hold f.mu.
func (f *Fake) call(op string) error {
	f.calls[op]++
	if q := f.failures[op]; len(q) > 0 {
		f.failures[op] = q[1:]
		return q[0]
	}
	return nil
}

func (f *Fake) guild(guildID string) (*guild, error) {
	g, ok := f.guilds[guildID]
	if !ok {
		return nil, gone("guild", guildID)
	}
	return g, nil
}

func (f *Fake) channelGuild(channelID string) (*guild, *discordgo.Channel, error) {
	for _, g := range f.guilds {
		if ch, ok := g.channels[channelID]; ok {
			return g, ch, nil
		}
	}
	return nil, nil, gone("channel", channelID)
}

// AddGuild registers a guild with its base role, whose id equals the guild id.
func (f *Fake) AddGuild(guildID, ownerID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.guilds[guildID] = &guild{
		g:        &discordgo.Guild{ID: guildID, Name: "guild-" + guildID, OwnerID: ownerID},
		roles:    map[string]*discordgo.Role{guildID: {ID: guildID, Name: "@everyone", Permissions: discordgo.PermissionSendMessages}},
		channels: make(map[string]*discordgo.Channel),
		members:  make(map[string]*discordgo.Member),
		bans:     make(map[string]string),
	}
}

func (f *Fake) AddRole(guildID string, role *discordgo.Role) *discordgo.Role {
	f.mu.Lock()
	defer f.mu.Unlock()
	if role.ID == "" {
		role.ID = f.nextID()
	}
	r := *role
	f.guilds[guildID].roles[r.ID] = &r
	return &r
}

func (f *Fake) AddChannel(guildID string, ch *discordgo.Channel) *discordgo.Channel {
	f.mu.Lock()
	defer f.mu.Unlock()
	if ch.ID == "" {
		ch.ID = f.nextID()
	}
	c := copyChannel(ch)
	c.GuildID = guildID
	f.guilds[guildID].channels[c.ID] = c
	return copyChannel(c)
}

func (f *Fake) AddMember(guildID, userID string, bot bool, roleIDs ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.guilds[guildID].members[userID] = &discordgo.Member{
		GuildID: guildID,
		User:    &discordgo.User{ID: userID, Username: "user-" + userID, Bot: bot},
		Roles:   append([]string(nil), roleIDs...),
	}
}

// AddAudit records an audit entry by actor against target at the given time.
// Entries are returned newest first.
func (f *Fake) AddAudit(guildID string, action discordgo.AuditLogAction, actorID, targetID string, at time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	a := action
	g := f.guilds[guildID]
	g.audit = append(g.audit, &discordgo.AuditLogEntry{
		ID:         Snowflake(at, f.seq),
		ActionType: &a,
		UserID:     actorID,
		TargetID:   targetID,
	})
}

func (f *Fake) AddWebhook(guildID, channelID, webhookID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.webhooks[channelID] = append(f.webhooks[channelID], &discordgo.Webhook{ID: webhookID, GuildID: guildID, ChannelID: channelID})
}

func (f *Fake) AddInvite(code string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.invites[code] = true
}

// FailNext queues err as the result of the next call of op (the method name).
func (f *Fake) FailNext(op string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[op] = append(f.failures[op], err)
}

// Calls returns how many times op was invoked.
func (f *Fake) Calls(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

func (f *Fake) Banned(guildID, userID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.guilds[guildID].bans[userID]
	return ok
}

func (f *Fake) HasMember(guildID, userID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.guilds[guildID].members[userID]
	return ok
}

func (f *Fake) MemberRoles(guildID, userID string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.guilds[guildID].members[userID]
	if !ok {
		return nil
	}
	return append([]string(nil), m.Roles...)
}

func (f *Fake) RoleByName(guildID, name string) (*discordgo.Role, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.guilds[guildID].roles {
		if r.Name == name {
			c := *r
			return &c, true
		}
	}
	return nil, false
}

func (f *Fake) RoleByID(guildID, roleID string) (*discordgo.Role, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.guilds[guildID].roles[roleID]
	if !ok {
		return nil, false
	}
	c := *r
	return &c, true
}

func (f *Fake) ChannelByName(guildID, name string) (*discordgo.Channel, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, ch := range f.guilds[guildID].channels {
		if ch.Name == name {
			return copyChannel(ch), true
		}
	}
	return nil, false
}

func (f *Fake) ChannelByID(channelID string) (*discordgo.Channel, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ch, err := f.channelGuild(channelID)
	if err != nil {
		return nil, false
	}
	return copyChannel(ch), true
}

// RemoveChannel deletes a channel without counting a call, as an attacker would.
func (f *Fake) RemoveChannel(channelID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if g, _, err := f.channelGuild(channelID); err == nil {
		delete(g.channels, channelID)
	}
}

func (f *Fake) WebhookCount(channelID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.webhooks[channelID])
}

func (f *Fake) InviteExists(code string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.invites[code]
}

// DeletedMessages lists "channel/message" ids removed through DeleteMessage.
func (f *Fake) DeletedMessages() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.deleted...)
}

func (f *Fake) Embeds() []Embed {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Embed(nil), f.embeds...)
}

// Overwrite returns the base-role style overwrite for roleID on a channel.
func (f *Fake) Overwrite(channelID, roleID string) (allow, deny int64, ok bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ch, err := f.channelGuild(channelID)
	if err != nil {
		return 0, 0, false
	}
	for _, o := range ch.PermissionOverwrites {
		if o.ID == roleID && o.Type == discordgo.PermissionOverwriteTypeRole {
			return o.Allow, o.Deny, true
		}
	}
	return 0, 0, false
}

func copyChannel(ch *discordgo.Channel) *discordgo.Channel {
	c := *ch
	c.PermissionOverwrites = make([]*discordgo.PermissionOverwrite, 0, len(ch.PermissionOverwrites))
	for _, o := range ch.PermissionOverwrites {
		oc := *o
		c.PermissionOverwrites = append(c.PermissionOverwrites, &oc)
	}
	return &c
}

func (f *Fake) SelfID() string { return f.self }

func (f *Fake) Guild(_ context.Context, guildID string) (*discordgo.Guild, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.call("Guild"); err != nil {
		return nil, err
	}
	g, err := f.guild(guildID)
	if err != nil {
		return nil, err
	}
	out := *g.g
	out.Roles = f.sortedRoles(g)
	return &out, nil
}

func (f *Fake) Member(_ context.Context, guildID, userID string) (*discordgo.Member, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.call("Member"); err != nil {
		return nil, err
	}
	g, err := f.guild(guildID)
	if err != nil {
		return nil, err
	}
	m, ok := g.members[userID]
	if !ok {
		return nil, gone("member", userID)
	}
	c := *m
	c.Roles = append([]string(nil), m.Roles...)
	return &c, nil
}

func (f *Fake) Members(_ context.Context, guildID string) ([]*discordgo.Member, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.call("Members"); err != nil {
		return nil, err
	}
	g, err := f.guild(guildID)
	if err != nil {
		return nil, err
	}
	out := make([]*discordgo.Member, 0, len(g.members))
	for _, m := range g.members {
		c := *m
		c.Roles = append([]string(nil), m.Roles...)
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].User.ID < out[j].User.ID })
	return out, nil
}

func (f *Fake) sortedRoles(g *guild) []*discordgo.Role {
	out := make([]*discordgo.Role, 0, len(g.roles))
	for _, r := range g.roles {
		c := *r
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Position != out[j].Position {
			return out[i].Position < out[j].Position
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (f *Fake) Roles(_ context.Context, guildID string) ([]*discordgo.Role, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.call("Roles"); err != nil {
		return nil, err
	}
	g, err := f.guild(guildID)
	if err != nil {
		return nil, err
	}
	return f.sortedRoles(g), nil
}

func (f *Fake) Channels(_ context.Context, guildID string) ([]*discordgo.Channel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.call("Channels"); err != nil {
		return nil, err
	}
	g, err := f.guild(guildID)
	if err != nil {
		return nil, err
	}
	out := make([]*discordgo.Channel, 0, len(g.channels))
	for _, ch := range g.channels {
		out = append(out, copyChannel(ch))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Position != out[j].Position {
			return out[i].Position < out[j].Position
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (f *Fake) AuditLog(_ context.Context, guildID string, action discordgo.AuditLogAction, limit int) ([]*discordgo.AuditLogEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.call("AuditLog"); err != nil {
		return nil, err
	}
	g, err := f.guild(guildID)
	if err != nil {
		return nil, err
	}
	var out []*discordgo.AuditLogEntry
	for i := len(g.audit) - 1; i >= 0 && len(out) < limit; i-- {
		if *g.audit[i].ActionType == action {
			c := *g.audit[i]
			out = append(out, &c)
		}
	}
	return out, nil
}

func (f *Fake) Ban(_ context.Context, guildID, userID, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.call("Ban"); err != nil {
		return err
	}
	g, err := f.guild(guildID)
	if err != nil {
		return err
	}
	g.bans[userID] = reason
	delete(g.members, userID)
	return nil
}

func (f *Fake) Kick(_ context.Context, guildID, userID, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.call("Kick"); err != nil {
		return err
	}
	g, err := f.guild(guildID)
	if err != nil {
		return err
	}
	if _, ok := g.members[userID]; !ok {
		return gone("member", userID)
	}
	delete(g.members, userID)
	return nil
}

func (f *Fake) member(guildID, userID string) (*discordgo.Member, error) {
	g, err := f.guild(guildID)
	if err != nil {
		return nil, err
	}
	m, ok := g.members[userID]
	if !ok {
		return nil, gone("member", userID)
	}
	return m, nil
}

func (f *Fake) SetMemberRoles(_ context.Context, guildID, userID string, roleIDs []string, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.call("SetMemberRoles"); err != nil {
		return err
	}
	m, err := f.member(guildID, userID)
	if err != nil {
		return err
	}
	m.Roles = append([]string(nil), roleIDs...)
	return nil
}

func (f *Fake) AddMemberRole(_ context.Context, guildID, userID, roleID, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.call("AddMemberRole"); err != nil {
		return err
	}
	m, err := f.member(guildID, userID)
	if err != nil {
		return err
	}
	if _, ok := f.guilds[guildID].roles[roleID]; !ok {
		return gone("role", roleID)
	}
	for _, r := range m.Roles {
		if r == roleID {
			return nil
		}
	}
	m.Roles = append(m.Roles, roleID)
	return nil
}

func (f *Fake) RemoveMemberRole(_ context.Context, guildID, userID, roleID, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.call("RemoveMemberRole"); err != nil {
		return err
	}
	m, err := f.member(guildID, userID)
	if err != nil {
		return err
	}
	kept := m.Roles[:0]
	for _, r := range m.Roles {
		if r != roleID {
			kept = append(kept, r)
		}
	}
	m.Roles = kept
	return nil
}

func (f *Fake) SetNickname(_ context.Context, guildID, userID, nick, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.call("SetNickname"); err != nil {
		return err
	}
	m, err := f.member(guildID, userID)
	if err != nil {
		return err
	}
	m.Nick = nick
	return nil
}

func (f *Fake) ClearTimeout(_ context.Context, guildID, userID, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.call("ClearTimeout"); err != nil {
		return err
	}
	m, err := f.member(guildID, userID)
	if err != nil {
		return err
	}
	m.CommunicationDisabledUntil = nil
	return nil
}

func (f *Fake) CreateRole(_ context.Context, guildID string, params *discordgo.RoleParams, _ string) (*discordgo.Role, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.call("CreateRole"); err != nil {
		return nil, err
	}
	g, err := f.guild(guildID)
	if err != nil {
		return nil, err
	}
	r := &discordgo.Role{ID: f.nextID(), Name: "new role", Position: 1}
	applyRoleParams(r, params)
	g.roles[r.ID] = r
	c := *r
	return &c, nil
}

func applyRoleParams(r *discordgo.Role, params *discordgo.RoleParams) {
	if params == nil {
		return
	}
	if params.Name != "" {
		r.Name = params.Name
	}
	if params.Color != nil {
		r.Color = *params.Color
	}
	if params.Hoist != nil {
		r.Hoist = *params.Hoist
	}
	if params.Permissions != nil {
		r.Permissions = *params.Permissions
	}
	if params.Mentionable != nil {
		r.Mentionable = *params.Mentionable
	}
}

func (f *Fake) EditRole(_ context.Context, guildID, roleID string, params *discordgo.RoleParams, _ string) (*discordgo.Role, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.call("EditRole"); err != nil {
		return nil, err
	}
	g, err := f.guild(guildID)
	if err != nil {
		return nil, err
	}
	r, ok := g.roles[roleID]
	if !ok {
		return nil, gone("role", roleID)
	}
	applyRoleParams(r, params)
	c := *r
	return &c, nil
}

func (f *Fake) MoveRole(_ context.Context, guildID, roleID string, position int, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.call("MoveRole"); err != nil {
		return err
	}
	g, err := f.guild(guildID)
	if err != nil {
		return err
	}
	r, ok := g.roles[roleID]
	if !ok {
		return gone("role", roleID)
	}
	r.Position = position
	return nil
}

func (f *Fake) DeleteRole(_ context.Context, guildID, roleID, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.call("DeleteRole"); err != nil {
		return err
	}
	g, err := f.guild(guildID)
	if err != nil {
		return err
	}
	if _, ok := g.roles[roleID]; !ok {
		return gone("role", roleID)
	}
	delete(g.roles, roleID)
	for _, m := range g.members {
		kept := m.Roles[:0]
		for _, r := range m.Roles {
			if r != roleID {
				kept = append(kept, r)
			}
		}
		m.Roles = kept
	}
	return nil
}

func (f *Fake) CreateChannel(_ context.Context, guildID string, data discordgo.GuildChannelCreateData, _ string) (*discordgo.Channel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.call("CreateChannel"); err != nil {
		return nil, err
	}
	g, err := f.guild(guildID)
	if err != nil {
		return nil, err
	}
	ch := &discordgo.Channel{
		ID:                   f.nextID(),
		GuildID:              guildID,
		Name:                 data.Name,
		Type:                 data.Type,
		Position:             data.Position,
		ParentID:             data.ParentID,
		NSFW:                 data.NSFW,
		PermissionOverwrites: data.PermissionOverwrites,
	}
	ch = copyChannel(ch)
	g.channels[ch.ID] = ch
	return copyChannel(ch), nil
}

func (f *Fake) EditChannel(_ context.Context, channelID string, data *discordgo.ChannelEdit, _ string) (*discordgo.Channel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.call("EditChannel"); err != nil {
		return nil, err
	}
	_, ch, err := f.channelGuild(channelID)
	if err != nil {
		return nil, err
	}
	if data.Name != "" {
		ch.Name = data.Name
	}
	if data.NSFW != nil {
		ch.NSFW = *data.NSFW
	}
	if data.Position != nil {
		ch.Position = *data.Position
	}
	if data.ParentID != "" {
		ch.ParentID = data.ParentID
	}
	return copyChannel(ch), nil
}

func (f *Fake) DeleteChannel(_ context.Context, channelID, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.call("DeleteChannel"); err != nil {
		return err
	}
	g, _, err := f.channelGuild(channelID)
	if err != nil {
		return err
	}
	delete(g.channels, channelID)
	return nil
}

func (f *Fake) SetRolePermission(_ context.Context, channelID, roleID string, allow, deny int64, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.call("SetRolePermission"); err != nil {
		return err
	}
	_, ch, err := f.channelGuild(channelID)
	if err != nil {
		return err
	}
	for _, o := range ch.PermissionOverwrites {
		if o.ID == roleID && o.Type == discordgo.PermissionOverwriteTypeRole {
			o.Allow, o.Deny = allow, deny
			return nil
		}
	}
	ch.PermissionOverwrites = append(ch.PermissionOverwrites, &discordgo.PermissionOverwrite{
		ID: roleID, Type: discordgo.PermissionOverwriteTypeRole, Allow: allow, Deny: deny,
	})
	return nil
}

func (f *Fake) DeleteRolePermission(_ context.Context, channelID, roleID, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.call("DeleteRolePermission"); err != nil {
		return err
	}
	_, ch, err := f.channelGuild(channelID)
	if err != nil {
		return err
	}
	kept := ch.PermissionOverwrites[:0]
	for _, o := range ch.PermissionOverwrites {
		if o.ID != roleID {
			kept = append(kept, o)
		}
	}
	ch.PermissionOverwrites = kept
	return nil
}

func (f *Fake) DeleteMessage(_ context.Context, channelID, messageID, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.call("DeleteMessage"); err != nil {
		return err
	}
	f.deleted = append(f.deleted, channelID+"/"+messageID)
	return nil
}

func (f *Fake) DeleteInvite(_ context.Context, code, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.call("DeleteInvite"); err != nil {
		return err
	}
	if !f.invites[code] {
		return gone("invite", code)
	}
	delete(f.invites, code)
	return nil
}

func (f *Fake) Webhooks(_ context.Context, channelID string) ([]*discordgo.Webhook, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.call("Webhooks"); err != nil {
		return nil, err
	}
	return append([]*discordgo.Webhook(nil), f.webhooks[channelID]...), nil
}

func (f *Fake) DeleteWebhook(_ context.Context, webhookID, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.call("DeleteWebhook"); err != nil {
		return err
	}
	for ch, hooks := range f.webhooks {
		for i, h := range hooks {
			if h.ID == webhookID {
				f.webhooks[ch] = append(hooks[:i:i], hooks[i+1:]...)
				return nil
			}
		}
	}
	return gone("webhook", webhookID)
}

func (f *Fake) SendEmbed(_ context.Context, channelID string, embed *discordgo.MessageEmbed) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.call("SendEmbed"); err != nil {
		return err
	}
	f.embeds = append(f.embeds, Embed{ChannelID: channelID, Embed: embed})
	return nil
}

var _ platform.Client = (*Fake)(nil)
