package bot

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	defaultWebhookSweep = 30 * time.Second
	cleanupInterval     = time.Minute
	sweepChannelLimit   = 10
	sweepWorkers        = 3
)

// Scheduler runs the periodic maintenance tasks.
type Scheduler struct {
	bot     *Bot
	done    chan struct{}
	wg      sync.WaitGroup
	once    sync.Once
	limiter *rate.Limiter
}

func NewScheduler(bot *Bot) *Scheduler {
	return &Scheduler{
		bot:     bot,
		done:    make(chan struct{}),
		limiter: rate.NewLimiter(rate.Every(time.Second), 2),
	}
}

// Start begins all scheduled tasks.
func (s *Scheduler) Start() {
	s.wg.Add(2)
	go s.startCleanup()
	go s.startWebhookSweep()
}

// Stop terminates all scheduled tasks and waits for them.
func (s *Scheduler) Stop() {
	s.once.Do(func() {
		logger.Info().Msg("Stopping scheduler...")
		close(s.done)
	})
	s.wg.Wait()
}

func (s *Scheduler) startCleanup() {
	defer s.wg.Done()
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case now := <-ticker.C:
			s.cleanup(now)
		case <-s.done:
			return
		}
	}
}

func (s *Scheduler) cleanup(now time.Time) {
	dropped := s.bot.Tracker.Sweep(now)
	s.bot.Handler.Sweep(now)
	if dropped > 0 {
		logger.Debug().Int("windows", dropped).Msg("expired signal windows dropped")
	}
}

func (s *Scheduler) startWebhookSweep() {
	defer s.wg.Done()
	every := s.bot.GetConfig().WebhookSweep
	if every <= 0 {
		every = defaultWebhookSweep
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.sweepWebhooks()
		case <-s.done:
			return
		}
	}
}

// sweepWebhooks guards the guilds with webhook protection enabled, a few at a
// time and paced by the limiter.
func (s *Scheduler) sweepWebhooks() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-s.done:
			cancel()
		case <-ctx.Done():
		}
	}()

	var wg sync.WaitGroup
	guard := make(chan struct{}, sweepWorkers)
	removed := 0
	var mu sync.Mutex
	for _, guildID := range s.bot.Guilds() {
		if !s.bot.Settings.GuardWebhooks(guildID) {
			continue
		}
		if err := s.limiter.Wait(ctx); err != nil {
			break
		}
		wg.Add(1)
		guard <- struct{}{}
		go func(guildID string) {
			defer func() {
				<-guard
				wg.Done()
			}()
			n := s.bot.Handler.GuardWebhooks(ctx, guildID, sweepChannelLimit)
			mu.Lock()
			removed += n
			mu.Unlock()
		}(guildID)
	}
	wg.Wait()
	if removed > 0 {
		logger.Info().Int("webhooks", removed).Msg("webhook sweep finished")
	}
}
