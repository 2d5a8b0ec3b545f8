package raidmode

import (
	"github.com/bwmarrin/discordgo"
	"github.com/hakimkaamino/secun0c-bot/model"
)

func isText(ch *discordgo.Channel) bool {
	return ch.Type == discordgo.ChannelTypeGuildText || ch.Type == discordgo.ChannelTypeGuildNews
}

// baseOverwrite returns the overwrite of the base role, whose id is the
// guild id.
func baseOverwrite(ch *discordgo.Channel, guildID string) (allow, deny int64, ok bool) {
	for _, o := range ch.PermissionOverwrites {
		if o.ID == guildID && o.Type == discordgo.PermissionOverwriteTypeRole {
			return o.Allow, o.Deny, true
		}
	}
	return 0, 0, false
}

func (c *Controller) textChannels(guildID string) []*discordgo.Channel {
	channels, err := c.client.Channels(c.ctx, guildID)
	if err != nil {
		logger.Error().Err(err).Str("guild", guildID).Msg("failed to list channels")
		return nil
	}
	var out []*discordgo.Channel
	for _, ch := range channels {
		if isText(ch) {
			out = append(out, ch)
		}
	}
	return out
}

// lock denies sending to the base role on every text channel and returns
// the number of channels changed.
func (c *Controller) lock(guildID, reason string) int {
	n := 0
	for _, ch := range c.textChannels(guildID) {
		allow, deny, _ := baseOverwrite(ch, guildID)
		if deny&discordgo.PermissionSendMessages != 0 && allow&discordgo.PermissionSendMessages == 0 {
			continue
		}
		err := c.client.SetRolePermission(c.ctx, ch.ID, guildID,
			allow&^discordgo.PermissionSendMessages, deny|discordgo.PermissionSendMessages, reason)
		if err != nil {
			logger.Warn().Err(err).Str("guild", guildID).Str("channel", ch.ID).Msg("failed to lock channel")
			continue
		}
		n++
	}
	return n
}

// unlock clears the explicit send deny so the channel inherits again. An
// overwrite left empty is removed.
func (c *Controller) unlock(guildID, reason string) int {
	n := 0
	for _, ch := range c.textChannels(guildID) {
		allow, deny, ok := baseOverwrite(ch, guildID)
		if !ok || deny&discordgo.PermissionSendMessages == 0 {
			continue
		}
		deny &^= discordgo.PermissionSendMessages
		var err error
		if allow == 0 && deny == 0 {
			err = c.client.DeleteRolePermission(c.ctx, ch.ID, guildID, reason)
		} else {
			err = c.client.SetRolePermission(c.ctx, ch.ID, guildID, allow, deny, reason)
		}
		if err != nil {
			logger.Warn().Err(err).Str("guild", guildID).Str("channel", ch.ID).Msg("failed to unlock channel")
			continue
		}
		n++
	}
	return n
}

func (c *Controller) enforce(guildID string, ch *discordgo.Channel) bool {
	allow, deny, _ := baseOverwrite(ch, guildID)
	if deny&discordgo.PermissionSendMessages != 0 && allow&discordgo.PermissionSendMessages == 0 {
		return false
	}
	err := c.client.SetRolePermission(c.ctx, ch.ID, guildID,
		allow&^discordgo.PermissionSendMessages, deny|discordgo.PermissionSendMessages, "Raid mode enforcement")
	if err != nil {
		logger.Warn().Err(err).Str("guild", guildID).Str("channel", ch.ID).Msg("failed to enforce lock")
		return false
	}
	raidTransitions.WithLabelValues("enforce").Inc()
	c.sink.Log(c.ctx, model.LogRecord{
		GuildID:     guildID,
		Type:        "LOCK_ENFORCED",
		Title:       "Lock enforced",
		Description: "Reverted a permission change that re-enabled sending in <#" + ch.ID + ">.",
		Severity:    model.SeverityWarning,
	})
	return true
}
