package model

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Threshold is the number of occurrences within Window that counts as a breach.
type Threshold struct {
	Count  int
	Window time.Duration
}

func (t Threshold) String() string {
	return fmt.Sprintf("%d/%ds", t.Count, int(t.Window/time.Second))
}

// ParseThreshold parses the persisted "count/seconds" form.
func ParseThreshold(s string) (Threshold, error) {
	parts := strings.SplitN(strings.TrimSuffix(strings.TrimSpace(s), "s"), "/", 2)
	if len(parts) != 2 {
		return Threshold{}, fmt.Errorf("invalid threshold %q: want count/seconds", s)
	}
	count, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil || count <= 0 {
		return Threshold{}, fmt.Errorf("invalid threshold count in %q", s)
	}
	secs, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil || secs <= 0 {
		return Threshold{}, fmt.Errorf("invalid threshold window in %q", s)
	}
	return Threshold{Count: count, Window: time.Duration(secs) * time.Second}, nil
}

// DefaultThresholds is the detection table used when neither the guild nor the
// process configuration overrides a kind.
var DefaultThresholds = map[SignalKind]Threshold{
	SignalChannelRename:  {Count: 3, Window: 10 * time.Second},
	SignalNSFWToggle:     {Count: 3, Window: 10 * time.Second},
	SignalLockPermission: {Count: 3, Window: 10 * time.Second},
	SignalEmojiDelete:    {Count: 2, Window: 10 * time.Second},
	SignalNicknameRename: {Count: 3, Window: 10 * time.Second},
	SignalTimeoutApplied: {Count: 3, Window: 10 * time.Second},
	SignalMassRoleGrant:  {Count: 5, Window: 10 * time.Second},
	SignalInviteCreate:   {Count: 10, Window: 10 * time.Second},
	SignalChannelCreate:  {Count: 3, Window: 8 * time.Second},
	SignalChannelDelete:  {Count: 3, Window: 8 * time.Second},
	SignalRoleCreate:     {Count: 3, Window: 8 * time.Second},
	SignalRoleDelete:     {Count: 3, Window: 8 * time.Second},
	SignalDirectMessage:  {Count: 5, Window: 60 * time.Second},
	SignalGuildStructure: {Count: 6, Window: 8 * time.Second},
}

// SurfaceDefaults is the second default set exposed to the configuration
// surface (dashboard). It disagrees with DefaultThresholds and is kept
// verbatim; detection never reads it.
var SurfaceDefaults = map[string]int{
	"raid_threshold":           5,
	"raid_window":              60,
	"spam_threshold":           5,
	"mass_ping_threshold":      5,
	"lockdown_default_minutes": 10,
}
