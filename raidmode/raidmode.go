// Package raidmode runs the guild-wide lockdown state machine. Each guild has
// one goroutine that owns its state and its auto-deactivation timer; all
// transitions arrive as messages on its inbox.
package raidmode

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/hakimkaamino/secun0c-bot/model"
	"github.com/hakimkaamino/secun0c-bot/platform"
	"github.com/hakimkaamino/secun0c-bot/utils/database"
	"github.com/hakimkaamino/secun0c-bot/utils/logging"
	"github.com/jmoiron/sqlx"
	"github.com/puzpuzpuz/xsync/v3"
)

var logger = logging.New("raidmode")

// DefaultDuration is how long a triggered raid mode stays on.
const DefaultDuration = 300 * time.Second

// ErrClosed is returned by commands sent after Close.
var ErrClosed = errors.New("raid mode controller closed")

// Sink receives the guild-facing log records.
type Sink interface {
	Log(ctx context.Context, rec model.LogRecord)
}

type cmdKind int

const (
	cmdTrigger cmdKind = iota
	cmdLockdown
	cmdDeactivate
	cmdExpire
	cmdEnforce
	cmdResume
)

type command struct {
	kind    cmdKind
	d       time.Duration
	gen     uint64
	until   time.Time
	since   time.Time
	channel *discordgo.Channel
	reply   chan bool
}

// status is published by the guild goroutine after every transition.
type status struct {
	model.RaidStatus
	gen uint64
}

type guildActor struct {
	guildID string
	inbox   chan command
	status  atomic.Pointer[status]

	// owned by run
	state model.RaidState
	since time.Time
	until time.Time
	timer *time.Timer
	gen   uint64
}

type Controller struct {
	client   platform.Client
	sink     Sink
	db       *sqlx.DB
	duration time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	guilds *xsync.MapOf[string, *guildActor]
}

// New creates a Controller. A zero duration selects DefaultDuration; db may
// be nil, in which case pending deactivations do not survive a restart.
func New(client platform.Client, sink Sink, db *sqlx.DB, duration time.Duration) *Controller {
	if duration <= 0 {
		duration = DefaultDuration
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Controller{
		client:   client,
		sink:     sink,
		db:       db,
		duration: duration,
		ctx:      ctx,
		cancel:   cancel,
		guilds:   xsync.NewMapOf[string, *guildActor](),
	}
}

func (c *Controller) actor(guildID string) *guildActor {
	a, _ := c.guilds.LoadOrCompute(guildID, func() *guildActor {
		a := &guildActor{guildID: guildID, inbox: make(chan command, 16)}
		a.status.Store(&status{RaidStatus: model.RaidStatus{GuildID: guildID}})
		c.wg.Add(1)
		go c.run(a)
		return a
	})
	return a
}

func (c *Controller) send(ctx context.Context, guildID string, cmd command) (bool, error) {
	a := c.actor(guildID)
	cmd.reply = make(chan bool, 1)
	select {
	case a.inbox <- cmd:
	case <-ctx.Done():
		return false, ctx.Err()
	case <-c.ctx.Done():
		return false, ErrClosed
	}
	select {
	case ok := <-cmd.reply:
		return ok, nil
	case <-ctx.Done():
		return false, ctx.Err()
	case <-c.ctx.Done():
		return false, ErrClosed
	}
}

// Trigger locks the guild for the default duration. It is a no-op returning
// false when the guild is already locked.
func (c *Controller) Trigger(ctx context.Context, guildID string) (bool, error) {
	return c.send(ctx, guildID, command{kind: cmdTrigger})
}

// Lockdown locks the guild for d, replacing any pending deactivation.
func (c *Controller) Lockdown(ctx context.Context, guildID string, d time.Duration) error {
	if d <= 0 {
		return fmt.Errorf("invalid lockdown duration %s", d)
	}
	_, err := c.send(ctx, guildID, command{kind: cmdLockdown, d: d})
	return err
}

// Deactivate unlocks the guild and cancels the pending timer. It returns
// false when the guild was not locked.
func (c *Controller) Deactivate(ctx context.Context, guildID string) (bool, error) {
	return c.send(ctx, guildID, command{kind: cmdDeactivate})
}

// Enforce reverts a base-role overwrite on ch that re-enables sending while
// the guild is locked. It returns true when a revert was issued.
func (c *Controller) Enforce(ctx context.Context, ch *discordgo.Channel) (bool, error) {
	if ch == nil || !isText(ch) || c.State(ch.GuildID).State != model.RaidLocked {
		return false, nil
	}
	return c.send(ctx, ch.GuildID, command{kind: cmdEnforce, channel: ch})
}

// State returns the last published status of the guild.
func (c *Controller) State(guildID string) model.RaidStatus {
	a, ok := c.guilds.Load(guildID)
	if !ok {
		return model.RaidStatus{GuildID: guildID, State: model.RaidNormal}
	}
	return a.status.Load().RaidStatus
}

// States returns the status of every guild the controller has seen.
func (c *Controller) States() []model.RaidStatus {
	var out []model.RaidStatus
	c.guilds.Range(func(_ string, a *guildActor) bool {
		out = append(out, a.status.Load().RaidStatus)
		return true
	})
	return out
}

// Resume re-arms the deactivations persisted before a restart. Locks already
// due are lifted immediately.
func (c *Controller) Resume(ctx context.Context) error {
	if c.db == nil {
		return nil
	}
	locks, err := database.GetRaidLocks(c.db)
	if err != nil {
		return err
	}
	for _, l := range locks {
		if _, err := c.send(ctx, l.GuildID, command{kind: cmdResume, since: l.LockedAt, until: l.Until}); err != nil {
			return err
		}
	}
	return nil
}

// Close stops every guild goroutine and its timer. Locked guilds stay
// locked; their persisted deactivation is resumed on the next start.
func (c *Controller) Close() {
	c.cancel()
	c.wg.Wait()
}

func (c *Controller) run(a *guildActor) {
	defer c.wg.Done()
	for {
		select {
		case <-c.ctx.Done():
			if a.timer != nil {
				a.timer.Stop()
			}
			return
		case cmd := <-a.inbox:
			ok := c.handle(a, cmd)
			a.status.Store(&status{
				RaidStatus: model.RaidStatus{GuildID: a.guildID, State: a.state, Since: a.since, Until: a.until},
				gen:        a.gen,
			})
			if cmd.reply != nil {
				cmd.reply <- ok
			}
		}
	}
}

func (c *Controller) handle(a *guildActor, cmd command) bool {
	switch cmd.kind {
	case cmdTrigger:
		if a.state == model.RaidLocked {
			return false
		}
		n := c.lock(a.guildID, "Raid mode activated")
		c.enter(a, c.duration)
		raidTransitions.WithLabelValues("trigger").Inc()
		c.sink.Log(c.ctx, model.LogRecord{
			GuildID:     a.guildID,
			Type:        "RAID_MODE",
			Title:       "RAID MODE ACTIVATED",
			Description: fmt.Sprintf("Sending disabled in %d channels for %s.", n, c.duration),
			Severity:    model.SeverityDanger,
		})
		return true

	case cmdLockdown:
		n := 0
		if a.state != model.RaidLocked {
			n = c.lock(a.guildID, "Lockdown")
		}
		c.enter(a, cmd.d)
		raidTransitions.WithLabelValues("lockdown").Inc()
		c.sink.Log(c.ctx, model.LogRecord{
			GuildID:     a.guildID,
			Type:        "LOCKDOWN",
			Title:       "Lockdown",
			Description: fmt.Sprintf("Locked for %s (%d channels changed).", cmd.d, n),
			Severity:    model.SeverityWarning,
		})
		return true

	case cmdExpire:
		if cmd.gen != a.gen || a.state != model.RaidLocked {
			return false
		}
		return c.leave(a, "Raid mode expired")

	case cmdDeactivate:
		if a.state != model.RaidLocked {
			c.disarm(a)
			return false
		}
		return c.leave(a, "Raid mode deactivated")

	case cmdEnforce:
		if a.state != model.RaidLocked {
			return false
		}
		return c.enforce(a.guildID, cmd.channel)

	case cmdResume:
		if a.state == model.RaidLocked {
			return false
		}
		a.state = model.RaidLocked
		a.since = cmd.since
		if remaining := time.Until(cmd.until); remaining > 0 {
			c.arm(a, remaining)
			logger.Info().Str("guild", a.guildID).Dur("remaining", remaining).Msg("resumed raid lock")
			return true
		}
		return c.leave(a, "Raid mode expired during restart")
	}
	return false
}

func (c *Controller) enter(a *guildActor, d time.Duration) {
	if a.state != model.RaidLocked {
		a.state = model.RaidLocked
		a.since = time.Now()
	}
	c.arm(a, d)
	if c.db != nil {
		err := database.SaveRaidLock(c.db, model.RaidLock{GuildID: a.guildID, LockedAt: a.since, Until: a.until})
		if err != nil {
			logger.Warn().Err(err).Str("guild", a.guildID).Msg("failed to persist raid lock")
		}
	}
}

func (c *Controller) leave(a *guildActor, title string) bool {
	n := c.unlock(a.guildID, title)
	c.disarm(a)
	a.state = model.RaidNormal
	a.since = time.Now()
	if c.db != nil {
		if err := database.DeleteRaidLock(c.db, a.guildID); err != nil {
			logger.Warn().Err(err).Str("guild", a.guildID).Msg("failed to delete raid lock")
		}
	}
	raidTransitions.WithLabelValues("deactivate").Inc()
	c.sink.Log(c.ctx, model.LogRecord{
		GuildID:     a.guildID,
		Type:        "RAID_MODE",
		Title:       title,
		Description: fmt.Sprintf("Sending restored in %d channels.", n),
		Severity:    model.SeveritySuccess,
	})
	return true
}

// arm replaces the pending timer. Expiries of replaced timers carry an old
// generation and are ignored.
func (c *Controller) arm(a *guildActor, d time.Duration) {
	if a.timer != nil {
		a.timer.Stop()
	}
	a.gen++
	gen := a.gen
	a.until = time.Now().Add(d)
	a.timer = time.AfterFunc(d, func() {
		select {
		case a.inbox <- command{kind: cmdExpire, gen: gen}:
		case <-c.ctx.Done():
		}
	})
}

func (c *Controller) disarm(a *guildActor) {
	if a.timer != nil {
		a.timer.Stop()
		a.timer = nil
	}
	a.gen++
	a.until = time.Time{}
}
