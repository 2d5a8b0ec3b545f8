package handlers

import (
	"context"
	"sort"

	"github.com/bwmarrin/discordgo"
	"github.com/hakimkaamino/secun0c-bot/model"
)

// massEmojiDelete is the number of emojis removed in one update that breaches
// regardless of the window.
const massEmojiDelete = 3

func (h *Handler) handleEmojisUpdate(ctx context.Context, guildID string, emojis []*discordgo.Emoji) {
	current := emojiNames(emojis)
	previous, known := h.emojis.LoadAndStore(guildID, current)
	if !known {
		return
	}
	var deleted []string
	for id := range previous {
		if _, ok := current[id]; !ok {
			deleted = append(deleted, id)
		}
	}
	if len(deleted) == 0 {
		return
	}
	sort.Strings(deleted)

	at := h.now()
	actor, ok := h.resolve(ctx, guildID, deleted[0], discordgo.AuditLogActionEmojiDelete)
	if !ok {
		return
	}
	// One update is one signal however many emojis it removed.
	breached := h.record(model.Signal{GuildID: guildID, ActorID: actor, Kind: model.SignalEmojiDelete, At: at})
	if !breached && len(deleted) < massEmojiDelete {
		return
	}
	updates := h.tracker.Evaluate(guildID, actor, model.SignalEmojiDelete, at)
	h.responder.Neutralize(ctx, guildID, actor, "Emoji deletion spam")
	h.logf(ctx, guildID, "EMOJI_DELETE", "Emoji deletion detected", model.SeverityDanger,
		"<@%s> deleted %d emoji(s) in this update, %d deleting update(s) in the window", actor, len(deleted), updates)
}
