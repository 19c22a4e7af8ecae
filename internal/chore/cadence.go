package chore

import (
	"log/slog"
	"slices"
	"time"
)

const minutesPerDay = 24 * 60

// MaxIntervalMinutes is the longest cadence interval, ten years. Longer
// intervals are clamped to it so the reset time cannot overflow.
const MaxIntervalMinutes = 10 * 365 * minutesPerDay

// Policy describes how often an assigned task may be completed.
type Policy struct {
	Target          int  `json:"cadence_target"`
	IntervalMinutes int  `json:"cadence_interval_minutes"`
	IsRecurring     bool `json:"is_recurring"`
}

// State is the computed cadence position of a task at a point in time.
type State struct {
	Progress    int        `json:"progress"`
	IsActive    bool       `json:"is_active"`
	NextResetAt *time.Time `json:"next_reset_at"`
}

// Normalize clamps non-positive target and interval to 1 and intervals above
// MaxIntervalMinutes to the maximum. The second return value reports whether
// any clamping happened.
func Normalize(p Policy) (Policy, bool) {
	clamped := false
	if p.Target < 1 {
		p.Target = 1
		clamped = true
	}
	if p.IntervalMinutes < 1 {
		p.IntervalMinutes = 1
		clamped = true
	}
	if p.IntervalMinutes > MaxIntervalMinutes {
		p.IntervalMinutes = MaxIntervalMinutes
		clamped = true
	}
	return p, clamped
}

// ComputeState determines progress, availability, and the next reset time of
// a task from its counted completion times. Completions may be in any order.
// Whole-day intervals reset at midnight in loc; shorter or uneven intervals
// reset a fixed duration after the completion that closed the last cycle.
func ComputeState(p Policy, completions []time.Time, now time.Time, loc *time.Location) State {
	p, _ = Normalize(p)
	if loc == nil {
		loc = time.UTC
	}

	if len(completions) == 0 {
		return State{Progress: 0, IsActive: true}
	}

	total := len(completions)

	if !p.IsRecurring {
		if total >= p.Target {
			return State{Progress: p.Target, IsActive: false}
		}
		return State{Progress: total, IsActive: true}
	}

	if total < p.Target {
		return State{Progress: total, IsActive: true}
	}

	sorted := slices.Clone(completions)
	slices.SortFunc(sorted, func(a, b time.Time) int { return a.Compare(b) })

	completed := (total / p.Target) * p.Target
	closedAt := sorted[completed-1]

	anchor := closedAt
	if p.IntervalMinutes >= minutesPerDay && p.IntervalMinutes%minutesPerDay == 0 {
		anchor = startOfDay(closedAt.In(loc))
	}
	nextReset := anchor.Add(time.Duration(p.IntervalMinutes) * time.Minute)

	if now.Before(nextReset) {
		return State{Progress: p.Target, IsActive: false, NextResetAt: &nextReset}
	}
	return State{Progress: total - completed, IsActive: true, NextResetAt: &nextReset}
}

// Calculator computes cadence state in a fixed zone and reports clamped
// policies, which indicate a task saved without edge validation.
type Calculator struct {
	loc    *time.Location
	logger *slog.Logger
}

// NewCalculator creates a Calculator aligning whole-day cadences to loc.
func NewCalculator(loc *time.Location, logger *slog.Logger) *Calculator {
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Calculator{loc: loc, logger: logger}
}

// Location returns the zone used for whole-day alignment.
func (c *Calculator) Location() *time.Location {
	return c.loc
}

// State computes the cadence state for the given task.
func (c *Calculator) State(taskID int64, p Policy, completions []time.Time, now time.Time) State {
	if _, clamped := Normalize(p); clamped {
		c.logger.Warn("cadence policy clamped",
			"task_id", taskID,
			"cadence_target", p.Target,
			"cadence_interval_minutes", p.IntervalMinutes,
		)
	}
	return ComputeState(p, completions, now, c.loc)
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
