package handlers

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"github.com/bwmarrin/discordgo"
	"github.com/hakimkaamino/secun0c-bot/model"
	"github.com/rivo/uniseg"
)

const (
	spamEmojiCount = 10
	spamTextLimit  = 100
)

var customEmoji = regexp.MustCompile(`<a?:\w+:\d+>`)

// handleMessage applies the direct-message gate and the emoji spam filter.
// It reports whether the message was let through.
func (h *Handler) handleMessage(ctx context.Context, m *discordgo.Message) bool {
	if m == nil || m.Author == nil || m.Author.ID == h.client.SelfID() {
		return false
	}
	if m.GuildID == "" {
		return h.gateDirectMessage(m)
	}

	emojis, other := emojiStats(m)
	if emojis < spamEmojiCount || other >= spamTextLimit {
		return true
	}
	if !h.accept(ctx, m.GuildID, m.Author.ID) {
		return true
	}
	if err := h.client.DeleteMessage(ctx, m.ChannelID, m.ID, "Anti-nuke: emoji spam"); err != nil {
		logger.Warn().Err(err).Str("guild", m.GuildID).Str("message", m.ID).Msg("failed to delete emoji spam")
		return false
	}
	messagesDropped.WithLabelValues("emoji_spam").Inc()
	h.responder.RecordViolation(ctx, m.GuildID, m.Author.ID, fmt.Sprintf("Emoji spam (%d emojis)", emojis))
	return false
}

// gateDirectMessage admits the first messages of a sender inside the window
// and drops the rest until the window drains.
func (h *Handler) gateDirectMessage(m *discordgo.Message) bool {
	count, th := h.tracker.RecordCount("", m.Author.ID, model.SignalDirectMessage, h.now())
	if count > th.Count {
		messagesDropped.WithLabelValues("dm_gate").Inc()
		logger.Debug().Str("user", m.Author.ID).Int("count", count).Msg("direct message dropped")
		return false
	}
	return true
}

// emojiStats counts emoji glyphs in the message content and embed
// descriptions, and the non-space characters that are not emoji.
func emojiStats(m *discordgo.Message) (emojis, other int) {
	texts := []string{m.Content}
	for _, e := range m.Embeds {
		if e != nil && e.Description != "" {
			texts = append(texts, e.Description)
		}
	}
	for _, text := range texts {
		e, o := countEmojis(text)
		emojis += e
		other += o
	}
	return emojis, other
}

func countEmojis(text string) (emojis, other int) {
	emojis = len(customEmoji.FindAllStringIndex(text, -1))
	text = customEmoji.ReplaceAllString(text, " ")

	g := uniseg.NewGraphemes(text)
	for g.Next() {
		runes := g.Runes()
		switch {
		case isEmoji(runes):
			emojis++
		case strings.TrimSpace(g.Str()) != "":
			other++
		}
	}
	return emojis, other
}

// isEmoji reports whether a grapheme cluster is a pictographic emoji,
// including flags and keycap sequences.
func isEmoji(cluster []rune) bool {
	if len(cluster) == 0 {
		return false
	}
	r := cluster[0]
	switch {
	case r >= 0x1F000 && r <= 0x1FAFF, // pictographs, emoticons, transport, flags, supplemental
		r >= 0x2600 && r <= 0x27BF, // misc symbols, dingbats
		r >= 0x2B00 && r <= 0x2BFF, // stars, squares
		r == 0x00A9 || r == 0x00AE || r == 0x203C || r == 0x2049 || r == 0x2122 || r == 0x2139:
		return true
	}
	// Keycaps: a digit, '#' or '*' followed by the combining enclosing keycap.
	if len(cluster) > 1 && (unicode.IsDigit(r) || r == '#' || r == '*') {
		return cluster[len(cluster)-1] == 0x20E3
	}
	return false
}
