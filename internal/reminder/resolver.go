// Package reminder decides which household members are due a reminder and
// delivers each one at most once per day.
package reminder

import (
	"time"

	"github.com/jonocairns/tskr/internal/model"
)

// Effective is a member's reminder configuration after applying their
// override to the household defaults.
type Effective struct {
	DailyEnabled    bool   `json:"daily_enabled"`
	DailyTime       string `json:"daily_time"`
	WeeklyEnabled   bool   `json:"weekly_enabled"`
	WeeklyDay       int    `json:"weekly_day"`
	WeeklyTime      string `json:"weekly_time"`
	IntervalEnabled bool   `json:"interval_enabled"`
	IntervalDays    int    `json:"interval_days"`
	EventEnabled    bool   `json:"event_enabled"`
	EventDays       int    `json:"event_days"`
}

func pick[T any](override *T, fallback T) T {
	if override != nil {
		return *override
	}
	return fallback
}

// Resolve merges a household config with an optional member override. A
// non-nil override field wins; nil inherits the household value.
func Resolve(h model.HouseholdReminderConfig, o *model.UserReminderOverride) Effective {
	if o == nil {
		o = &model.UserReminderOverride{}
	}
	return Effective{
		DailyEnabled:    pick(o.DailyEnabled, h.DailyEnabled),
		DailyTime:       pick(o.DailyTime, h.DailyTime),
		WeeklyEnabled:   pick(o.WeeklyEnabled, h.WeeklyEnabled),
		WeeklyDay:       pick(o.WeeklyDay, h.WeeklyDay),
		WeeklyTime:      pick(o.WeeklyTime, h.WeeklyTime),
		IntervalEnabled: pick(o.IntervalEnabled, h.IntervalEnabled),
		IntervalDays:    pick(o.IntervalDays, h.IntervalDays),
		EventEnabled:    pick(o.EventEnabled, h.EventEnabled),
		EventDays:       pick(o.EventDays, h.EventDays),
	}
}

// IsPaused reports whether the override suppresses reminders at now. A
// bounded pause lasts through PausedUntil inclusive; an unbounded one lasts
// until resumed.
func IsPaused(o *model.UserReminderOverride, now time.Time) bool {
	if o == nil || !o.IsPaused {
		return false
	}
	if o.PausedUntil == nil {
		return true
	}
	return !now.After(*o.PausedUntil)
}
