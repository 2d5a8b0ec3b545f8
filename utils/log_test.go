package utils

import (
	"context"
	"fmt"
	"testing"

	"github.com/bwmarrin/discordgo"
	"github.com/hakimkaamino/secun0c-bot/config"
	"github.com/hakimkaamino/secun0c-bot/model"
	"github.com/hakimkaamino/secun0c-bot/platform/platformtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogSinkFallsBackToNamedChannel(t *testing.T) {
	ctx := context.Background()
	fake := platformtest.New("self")
	fake.AddGuild("g", "owner")
	fake.AddChannel("g", &discordgo.Channel{ID: "general", Name: "general", Type: discordgo.ChannelTypeGuildText})
	fake.AddChannel("g", &discordgo.Channel{ID: "sec", Name: "security-logs", Type: discordgo.ChannelTypeGuildText})
	fake.AddChannel("g", &discordgo.Channel{ID: "logs-voice", Name: "logs", Type: discordgo.ChannelTypeGuildVoice})

	store := config.NewStore(nil, nil)
	sink := NewLogSink(fake, store)

	id, ok := sink.LogChannel(ctx, "g")
	require.True(t, ok)
	assert.Equal(t, "sec", id)
	assert.Equal(t, "sec", store.LogChannelID("g"))

	sink.Logf(ctx, "g", "IMMEDIATE_BAN", "Ban", model.SeverityDanger, "%s banned", "mallory")
	embeds := fake.Embeds()
	require.Len(t, embeds, 1)
	assert.Equal(t, "sec", embeds[0].ChannelID)
	assert.Equal(t, 15158332, embeds[0].Embed.Color)
	assert.Equal(t, "mallory banned", embeds[0].Embed.Description)
}

func TestLogSinkWithoutChannelStillRecords(t *testing.T) {
	fake := platformtest.New("self")
	fake.AddGuild("g", "owner")
	sink := NewLogSink(fake, config.NewStore(nil, nil))

	sink.Log(context.Background(), model.LogRecord{GuildID: "g", Type: "TEST", Description: "nothing to post to"})

	assert.Empty(t, fake.Embeds())
	recent := sink.Recent()
	require.Len(t, recent, 1)
	assert.Equal(t, model.SeverityInfo, recent[0].Severity)
	assert.False(t, recent[0].Time.IsZero())
}

func TestRecentKeepsLastHundred(t *testing.T) {
	fake := platformtest.New("self")
	fake.AddGuild("g", "owner")
	sink := NewLogSink(fake, config.NewStore(nil, &model.Config{DefaultLogChannelID: "log"}))

	for i := 0; i < 150; i++ {
		sink.Log(context.Background(), model.LogRecord{GuildID: "g", Description: fmt.Sprint(i)})
	}

	recent := sink.Recent()
	require.Len(t, recent, 100)
	assert.Equal(t, "50", recent[0].Description)
	assert.Equal(t, "149", recent[99].Description)
}
