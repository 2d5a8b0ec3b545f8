package bot

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/hakimkaamino/secun0c-bot/model"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"
)

// Status describes the running engine and its host.
type Status struct {
	Uptime        time.Duration
	Guilds        int
	LockedGuilds  int
	TrackedActors int
	Whitelisted   int
	Goroutines    int
	Latency       time.Duration

	Platform      string
	KernelVersion string
	CPUs          int
	CPUPercent    float64
	MemUsed       uint64
	MemTotal      uint64
	MemPercent    float64
}

// Status gathers engine counters and host metrics. Host lookups that fail are
// left zero.
func (b *Bot) Status(ctx context.Context) Status {
	st := Status{
		Uptime:        time.Since(b.started).Truncate(time.Second),
		Guilds:        len(b.Guilds()),
		TrackedActors: b.Tracker.Len(),
		Whitelisted:   len(b.Trust.Whitelist()),
		Goroutines:    runtime.NumGoroutine(),
	}
	for _, rs := range b.Raid.States() {
		if rs.State == model.RaidLocked {
			st.LockedGuilds++
		}
	}
	if b.Session != nil {
		st.Latency = b.Session.HeartbeatLatency()
	}

	if info, err := host.InfoWithContext(ctx); err == nil {
		st.Platform = fmt.Sprintf("%s %s", info.Platform, info.PlatformVersion)
		st.KernelVersion = info.KernelVersion
	}
	st.CPUs, _ = cpu.CountsWithContext(ctx, true)
	if pct, err := cpu.PercentWithContext(ctx, 0, false); err == nil && len(pct) > 0 {
		st.CPUPercent = pct[0]
	}
	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		st.MemUsed, st.MemTotal, st.MemPercent = vm.Used, vm.Total, vm.UsedPercent
	}
	return st
}

// Embed renders the status for a log or command channel.
func (s Status) Embed() *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Title: "System status",
		Color: 0x5865F2,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Uptime", Value: s.Uptime.String(), Inline: true},
			{Name: "Guilds", Value: fmt.Sprintf("%d (%d locked)", s.Guilds, s.LockedGuilds), Inline: true},
			{Name: "Tracked actors", Value: fmt.Sprintf("%d", s.TrackedActors), Inline: true},
			{Name: "Whitelisted bots", Value: fmt.Sprintf("%d", s.Whitelisted), Inline: true},
			{Name: "OS", Value: orNone(s.Platform), Inline: true},
			{Name: "Kernel", Value: orNone(s.KernelVersion), Inline: true},
			{Name: "Go", Value: runtime.Version(), Inline: true},
			{Name: "CPU", Value: fmt.Sprintf("%d cores, %.1f%%", s.CPUs, s.CPUPercent), Inline: true},
			{Name: "Memory", Value: fmt.Sprintf("%.1f%% (%d MB / %d MB)", s.MemPercent, s.MemUsed/1024/1024, s.MemTotal/1024/1024), Inline: true},
			{Name: "Gateway latency", Value: s.Latency.String(), Inline: true},
			{Name: "Goroutines", Value: fmt.Sprintf("%d", s.Goroutines), Inline: true},
		},
		Footer: &discordgo.MessageEmbedFooter{
			Text: "Status at " + time.Now().UTC().Format("15:04 MST"),
		},
	}
}
