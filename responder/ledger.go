package responder

import (
	"time"

	"github.com/google/uuid"
	"github.com/hakimkaamino/secun0c-bot/model"
	"github.com/hakimkaamino/secun0c-bot/utils/database"
	"github.com/jmoiron/sqlx"
	"github.com/puzpuzpuz/xsync/v3"
)

// Ledger counts violations per actor. It is informational only and never
// gates a decision.
type Ledger struct {
	db     *sqlx.DB
	counts *xsync.MapOf[string, int]
}

// NewLedger creates a Ledger. db may be nil for a memory-only ledger.
func NewLedger(db *sqlx.DB) *Ledger {
	return &Ledger{db: db, counts: xsync.NewMapOf[string, int]()}
}

// Load replaces the counters with the persisted totals.
func (l *Ledger) Load() error {
	if l.db == nil {
		return nil
	}
	counts, err := database.GetViolationCounts(l.db)
	if err != nil {
		return err
	}
	for id, n := range counts {
		l.counts.Store(id, n)
	}
	return nil
}

// Increment bumps the counter of actorID and returns the new value.
func (l *Ledger) Increment(actorID string) int {
	n, _ := l.counts.Compute(actorID, func(old int, _ bool) (int, bool) {
		return old + 1, false
	})
	return n
}

// Record increments the counter and persists a violation row.
func (l *Ledger) Record(guildID, actorID, reason, action string) model.Violation {
	v := model.Violation{
		ID:        uuid.NewString(),
		GuildID:   guildID,
		UserID:    actorID,
		Reason:    reason,
		Action:    action,
		Timestamp: time.Now().Unix(),
	}
	l.Increment(actorID)
	violationCount.WithLabelValues(action).Inc()
	if l.db != nil {
		if err := database.AddViolation(l.db, v); err != nil {
			logger.Error().Err(err).Str("guild", guildID).Str("actor", actorID).Msg("failed to persist violation")
		}
	}
	return v
}

func (l *Ledger) Count(actorID string) int {
	n, _ := l.counts.Load(actorID)
	return n
}

// Snapshot copies every counter.
func (l *Ledger) Snapshot() map[string]int {
	out := make(map[string]int, l.counts.Size())
	l.counts.Range(func(id string, n int) bool {
		out[id] = n
		return true
	})
	return out
}

// History returns the persisted violations of a user, newest first.
func (l *Ledger) History(userID string, since *time.Time) ([]model.Violation, error) {
	if l.db == nil {
		return nil, nil
	}
	return database.GetViolationsByUserID(l.db, userID, since)
}
