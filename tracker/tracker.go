// Package tracker counts signals in sliding windows keyed by
// (guild, actor, kind).
package tracker

import (
	"sync"
	"time"

	"github.com/hakimkaamino/secun0c-bot/model"
	"github.com/puzpuzpuz/xsync/v3"
)

type key struct {
	guildID string
	actorID string
	kind    model.SignalKind
}

// window holds the timestamps of one key in arrival order. Every stored
// timestamp is younger than the window length of the last access.
type window struct {
	mu    sync.Mutex
	times []time.Time
	// dead is set when Sweep has removed the window from the map; writers
	// that raced the removal retry on a fresh window.
	dead bool
}

// trim drops timestamps that are W or more older than now.
func (w *window) trim(now time.Time, length time.Duration) {
	i := 0
	for i < len(w.times) && now.Sub(w.times[i]) >= length {
		i++
	}
	if i > 0 {
		w.times = append(w.times[:0], w.times[i:]...)
	}
}

// Tracker owns every sliding window. It is safe for concurrent use; records
// for different keys never contend on the same lock.
type Tracker struct {
	windows    *xsync.MapOf[key, *window]
	thresholds model.ThresholdSource
}

// New creates a Tracker. A nil source uses model.DefaultThresholds.
func New(src model.ThresholdSource) *Tracker {
	return &Tracker{
		windows:    xsync.NewMapOf[key, *window](),
		thresholds: src,
	}
}

func (t *Tracker) threshold(guildID string, kind model.SignalKind) model.Threshold {
	if t.thresholds != nil {
		return t.thresholds.Threshold(guildID, kind)
	}
	return model.DefaultThresholds[kind]
}

// Record appends at to the window of the key and reports whether the
// resulting count reached the threshold. Kinds that are not windowed always
// breach and are not stored.
func (t *Tracker) Record(guildID, actorID string, kind model.SignalKind, at time.Time) bool {
	count, th := t.RecordCount(guildID, actorID, kind, at)
	return th.Count > 0 && count >= th.Count
}

// RecordCount is Record returning the count after trimming and the threshold
// it was compared against.
func (t *Tracker) RecordCount(guildID, actorID string, kind model.SignalKind, at time.Time) (int, model.Threshold) {
	if !kind.Windowed() {
		return 1, model.Threshold{Count: 1}
	}
	th := t.threshold(guildID, kind)
	if th.Count <= 0 || th.Window <= 0 {
		return 0, th
	}

	k := key{guildID: guildID, actorID: actorID, kind: kind}
	for {
		w, _ := t.windows.LoadOrCompute(k, func() *window { return &window{} })
		w.mu.Lock()
		if w.dead {
			w.mu.Unlock()
			continue
		}
		w.times = append(w.times, at)
		w.trim(at, th.Window)
		n := len(w.times)
		w.mu.Unlock()
		return n, th
	}
}

// Evaluate returns the count of the key's window at the given time without
// recording anything.
func (t *Tracker) Evaluate(guildID, actorID string, kind model.SignalKind, at time.Time) int {
	th := t.threshold(guildID, kind)
	w, ok := t.windows.Load(key{guildID: guildID, actorID: actorID, kind: kind})
	if !ok {
		return 0
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.trim(at, th.Window)
	return len(w.times)
}

// Sweep trims every window to at and removes the ones left empty. It returns
// the number of windows removed.
func (t *Tracker) Sweep(at time.Time) int {
	removed := 0
	t.windows.Range(func(k key, _ *window) bool {
		th := t.threshold(k.guildID, k.kind)
		t.windows.Compute(k, func(w *window, loaded bool) (*window, bool) {
			if !loaded {
				return w, true
			}
			w.mu.Lock()
			defer w.mu.Unlock()
			w.trim(at, th.Window)
			if len(w.times) > 0 {
				return w, false
			}
			w.dead = true
			removed++
			return w, true
		})
		return true
	})
	return removed
}

// Len returns the number of live windows.
func (t *Tracker) Len() int {
	return t.windows.Size()
}
