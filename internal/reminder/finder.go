package reminder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jonocairns/tskr/internal/model"
	"github.com/jonocairns/tskr/internal/store"
)

// Eligible is one reminder due for one member. Days carries the effective
// interval or event threshold for the message text.
type Eligible struct {
	UserID      int64
	HouseholdID int64
	Type        model.ReminderType
	Days        int
}

// Store is the persistence the finder and sender need.
type Store interface {
	ListHouseholdConfigs(ctx context.Context, f store.ConfigFilter) ([]model.HouseholdReminderConfig, error)
	ListRecipients(ctx context.Context, householdID int64) ([]store.Recipient, error)
	LastSend(ctx context.Context, userID, householdID int64, typ model.ReminderType) (*model.ReminderSendLog, error)
	ClaimSend(ctx context.Context, c store.SendClaim, paused func(*model.UserReminderOverride) bool) (store.ClaimResult, *model.ReminderSendLog, error)
}

// CompletionCounter counts a member's qualifying task completions since a
// point in time.
type CompletionCounter interface {
	CountRecentCompletions(ctx context.Context, userID, householdID int64, since time.Time) (int, error)
}

// Finder evaluates the four reminder types against the store.
type Finder struct {
	store       Store
	completions CompletionCounter
	logger      *slog.Logger
}

// NewFinder creates a finder that reads settings from s and completion
// counts from completions.
func NewFinder(s Store, completions CompletionCounter, logger *slog.Logger) *Finder {
	return &Finder{
		store:       s,
		completions: completions,
		logger:      logger.With("component", "reminder_finder"),
	}
}

const clockFormat = "15:04"

const day = 24 * time.Hour

// check decides whether a member with the given effective config is due.
// It returns the day count to report, if any.
type check func(ctx context.Context, userID, householdID int64, eff Effective) (bool, int, error)

// scan walks every household matching filter and every member in it,
// skipping paused members and applying due to the resolved config. A failure
// for one member is logged and does not stop the scan.
func (f *Finder) scan(ctx context.Context, filter store.ConfigFilter, now time.Time, due check) ([]Eligible, error) {
	configs, err := f.store.ListHouseholdConfigs(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list %s configs: %w", filter.Type, err)
	}

	var out []Eligible
	for _, cfg := range configs {
		recipients, err := f.store.ListRecipients(ctx, cfg.HouseholdID)
		if err != nil {
			return out, fmt.Errorf("list recipients for household %d: %w", cfg.HouseholdID, err)
		}

		for _, r := range recipients {
			if IsPaused(r.Override, now) {
				continue
			}
			ok, days, err := due(ctx, r.UserID, cfg.HouseholdID, Resolve(cfg, r.Override))
			if err != nil {
				f.logger.Error("reminder eligibility check failed",
					"type", filter.Type, "user_id", r.UserID, "household_id", cfg.HouseholdID, "error", err)
				continue
			}
			if ok {
				out = append(out, Eligible{UserID: r.UserID, HouseholdID: cfg.HouseholdID, Type: filter.Type, Days: days})
			}
		}
	}
	return out, nil
}

// Daily finds members whose effective daily time is the current UTC minute.
func (f *Finder) Daily(ctx context.Context, now time.Time) ([]Eligible, error) {
	hhmm := now.UTC().Format(clockFormat)
	return f.scan(ctx, store.ConfigFilter{Type: model.ReminderDaily, Time: hhmm}, now,
		func(_ context.Context, _, _ int64, eff Effective) (bool, int, error) {
			return eff.DailyEnabled && eff.DailyTime == hhmm, 0, nil
		})
}

// Weekly finds members whose effective weekday and time match the current
// UTC weekday and minute.
func (f *Finder) Weekly(ctx context.Context, now time.Time) ([]Eligible, error) {
	utc := now.UTC()
	hhmm := utc.Format(clockFormat)
	weekday := int(utc.Weekday())
	return f.scan(ctx, store.ConfigFilter{Type: model.ReminderWeekly, Time: hhmm, Weekday: &weekday}, now,
		func(_ context.Context, _, _ int64, eff Effective) (bool, int, error) {
			return eff.WeeklyEnabled && eff.WeeklyDay == weekday && eff.WeeklyTime == hhmm, 0, nil
		})
}

// Interval finds members never sent an interval reminder, or whose last
// counted one is at least IntervalDays old.
func (f *Finder) Interval(ctx context.Context, now time.Time) ([]Eligible, error) {
	return f.scan(ctx, store.ConfigFilter{Type: model.ReminderInterval}, now,
		func(ctx context.Context, userID, householdID int64, eff Effective) (bool, int, error) {
			if !eff.IntervalEnabled || eff.IntervalDays <= 0 {
				return false, 0, nil
			}
			last, err := f.store.LastSend(ctx, userID, householdID, model.ReminderInterval)
			if err != nil {
				return false, 0, err
			}
			if last == nil {
				return true, eff.IntervalDays, nil
			}
			next := last.SentAt.Add(time.Duration(eff.IntervalDays) * day)
			return !now.Before(next), eff.IntervalDays, nil
		})
}

// Event finds members with no qualifying completion in the trailing
// EventDays window.
func (f *Finder) Event(ctx context.Context, now time.Time) ([]Eligible, error) {
	return f.scan(ctx, store.ConfigFilter{Type: model.ReminderEvent}, now,
		func(ctx context.Context, userID, householdID int64, eff Effective) (bool, int, error) {
			if !eff.EventEnabled || eff.EventDays <= 0 {
				return false, 0, nil
			}
			since := now.Add(-time.Duration(eff.EventDays) * day)
			n, err := f.completions.CountRecentCompletions(ctx, userID, householdID, since)
			if err != nil {
				return false, 0, err
			}
			return n == 0, eff.EventDays, nil
		})
}

// FindAll runs the four finders in parallel and concatenates their results
// in type order. A failing finder does not discard the others' results; its
// error is joined into the returned error.
func (f *Finder) FindAll(ctx context.Context, now time.Time) ([]Eligible, error) {
	finders := []func(context.Context, time.Time) ([]Eligible, error){f.Daily, f.Weekly, f.Interval, f.Event}
	results := make([][]Eligible, len(finders))
	errs := make([]error, len(finders))

	var g errgroup.Group
	for i, find := range finders {
		g.Go(func() error {
			results[i], errs[i] = find(ctx, now)
			return nil
		})
	}
	g.Wait()

	var all []Eligible
	for _, r := range results {
		all = append(all, r...)
	}
	return all, errors.Join(errs...)
}
