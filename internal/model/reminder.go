package model

import "time"

// ReminderType identifies one of the four reminder schedules.
type ReminderType string

const (
	ReminderDaily    ReminderType = "daily"
	ReminderWeekly   ReminderType = "weekly"
	ReminderInterval ReminderType = "interval"
	ReminderEvent    ReminderType = "event"
)

// ReminderTypes lists every reminder type in evaluation order.
var ReminderTypes = []ReminderType{ReminderDaily, ReminderWeekly, ReminderInterval, ReminderEvent}

// SendStatus is the state of a delivered reminder.
type SendStatus string

const (
	SendStatusSent      SendStatus = "SENT"
	SendStatusSnoozed   SendStatus = "SNOOZED"
	SendStatusDismissed SendStatus = "DISMISSED"
)

// HouseholdReminderConfig holds the household-wide reminder defaults.
// Times are "HH:MM" in UTC; WeeklyDay is 0 (Sunday) through 6.
type HouseholdReminderConfig struct {
	HouseholdID     int64     `json:"household_id"`
	DailyEnabled    bool      `json:"daily_enabled"`
	DailyTime       string    `json:"daily_time"`
	WeeklyEnabled   bool      `json:"weekly_enabled"`
	WeeklyDay       int       `json:"weekly_day"`
	WeeklyTime      string    `json:"weekly_time"`
	IntervalEnabled bool      `json:"interval_enabled"`
	IntervalDays    int       `json:"interval_days"`
	EventEnabled    bool      `json:"event_enabled"`
	EventDays       int       `json:"event_days"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// UserReminderOverride holds one member's reminder preferences for a
// household. A nil field inherits the household value.
type UserReminderOverride struct {
	UserID          int64      `json:"user_id"`
	HouseholdID     int64      `json:"household_id"`
	DailyEnabled    *bool      `json:"daily_enabled"`
	DailyTime       *string    `json:"daily_time"`
	WeeklyEnabled   *bool      `json:"weekly_enabled"`
	WeeklyDay       *int       `json:"weekly_day"`
	WeeklyTime      *string    `json:"weekly_time"`
	IntervalEnabled *bool      `json:"interval_enabled"`
	IntervalDays    *int       `json:"interval_days"`
	EventEnabled    *bool      `json:"event_enabled"`
	EventDays       *int       `json:"event_days"`
	IsPaused        bool       `json:"is_paused"`
	PausedUntil     *time.Time `json:"paused_until"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// ReminderSendLog is one delivery attempt. SchedulerLockKey is unique and
// acts as the delivery lock.
type ReminderSendLog struct {
	ID               int64        `json:"id"`
	UserID           int64        `json:"user_id"`
	HouseholdID      int64        `json:"household_id"`
	ReminderType     ReminderType `json:"reminder_type"`
	SentAt           time.Time    `json:"sent_at"`
	Status           SendStatus   `json:"status"`
	SchedulerLockKey string       `json:"scheduler_lock_key"`
}
