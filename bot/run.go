package bot

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/bwmarrin/discordgo"
	"github.com/hakimkaamino/secun0c-bot/model"
)

// Run connects to the gateway and blocks until ctx is done or the process is
// interrupted.
func (b *Bot) Run(ctx context.Context) error {
	if b.Session == nil {
		return fmt.Errorf("bot has no gateway session")
	}
	b.Handler.Register(b.Session)
	b.Session.AddHandler(func(s *discordgo.Session, r *discordgo.Ready) {
		logger.Info().Str("user", r.User.String()).Int("guilds", len(r.Guilds)).Msg("Bot is ready")
		for _, g := range r.Guilds {
			b.logf(ctx, g.ID, "STARTUP", "Startup", model.SeverityInfo, "Anti-nuke protection is active.")
		}
	})

	if err := b.Session.Open(); err != nil {
		return fmt.Errorf("error opening connection: %w", err)
	}
	defer b.Close()

	if err := b.Raid.Resume(ctx); err != nil {
		logger.Warn().Err(err).Msg("failed to resume raid locks")
	}
	b.scheduler.Start()

	logger.Info().Msg("Bot is now running. Press CTRL-C to exit.")

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM, os.Interrupt)
	defer stop()
	<-ctx.Done()
	return nil
}
