package model

import "time"

// SignalKind names a class of abuse-relevant event tracked per actor.
type SignalKind string

const (
	SignalChannelRename       SignalKind = "channel-rename"
	SignalNSFWToggle          SignalKind = "nsfw-toggle"
	SignalLockPermission      SignalKind = "lock-permission-change"
	SignalEmojiDelete         SignalKind = "emoji-delete"
	SignalNicknameRename      SignalKind = "nickname-rename"
	SignalTimeoutApplied      SignalKind = "timeout-applied"
	SignalMassRoleGrant       SignalKind = "mass-role-grant"
	SignalInviteCreate        SignalKind = "invite-create"
	SignalChannelCreate       SignalKind = "channel-create"
	SignalChannelDelete       SignalKind = "channel-delete"
	SignalRoleCreate          SignalKind = "role-create"
	SignalRoleDelete          SignalKind = "role-delete"
	SignalDirectMessage       SignalKind = "direct-message"
	SignalGuildStructure      SignalKind = "guild-structure-change"
	SignalHierarchyAttack     SignalKind = "hierarchy-attack"
	SignalDangerousPermission SignalKind = "dangerous-permission"
)

// Windowed reports whether occurrences of the kind are counted over a window.
// Hierarchy attacks and dangerous permission grants remediate on first sight.
func (k SignalKind) Windowed() bool {
	return k != SignalHierarchyAttack && k != SignalDangerousPermission
}

// Signal is a classified event. It is created by the ingress and consumed
// immediately by the tracker; it is never persisted.
type Signal struct {
	GuildID string
	ActorID string
	Kind    SignalKind
	At      time.Time
}
