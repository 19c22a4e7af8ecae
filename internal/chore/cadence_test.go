package chore

import (
	"bytes"
	"log/slog"
	"math/rand/v2"
	"slices"
	"strings"
	"testing"
	"time"
)

var base = time.Date(2026, 2, 5, 10, 0, 0, 0, time.UTC)

func mins(n int) time.Time {
	return base.Add(time.Duration(n) * time.Minute)
}

func assertState(t *testing.T, got State, progress int, active bool, reset *time.Time) {
	t.Helper()
	if got.Progress != progress {
		t.Errorf("progress = %d, want %d", got.Progress, progress)
	}
	if got.IsActive != active {
		t.Errorf("is_active = %v, want %v", got.IsActive, active)
	}
	switch {
	case reset == nil && got.NextResetAt != nil:
		t.Errorf("next_reset_at = %v, want nil", *got.NextResetAt)
	case reset != nil && got.NextResetAt == nil:
		t.Errorf("next_reset_at = nil, want %v", *reset)
	case reset != nil && !got.NextResetAt.Equal(*reset):
		t.Errorf("next_reset_at = %v, want %v", *got.NextResetAt, *reset)
	}
}

func ptr(t time.Time) *time.Time { return &t }

func TestEmptyCompletionsAlwaysActive(t *testing.T) {
	policies := []Policy{
		{Target: 1, IntervalMinutes: 60, IsRecurring: true},
		{Target: 3, IntervalMinutes: 1440, IsRecurring: true},
		{Target: 2, IsRecurring: false},
		{Target: 0, IntervalMinutes: -5, IsRecurring: true},
	}
	for _, p := range policies {
		got := ComputeState(p, nil, base, time.UTC)
		assertState(t, got, 0, true, nil)
	}
}

func TestOneShotCappedAtTarget(t *testing.T) {
	p := Policy{Target: 2, IntervalMinutes: 60, IsRecurring: false}
	logs := []time.Time{mins(0), mins(1), mins(2), mins(3), mins(4)}

	for _, now := range []time.Time{mins(5), mins(10000), base.AddDate(1, 0, 0)} {
		got := ComputeState(p, logs, now, time.UTC)
		assertState(t, got, 2, false, nil)
	}
}

func TestOneShotFilling(t *testing.T) {
	p := Policy{Target: 3, IsRecurring: false}
	got := ComputeState(p, []time.Time{mins(0)}, mins(5), time.UTC)
	assertState(t, got, 1, true, nil)
}

func TestRecurringFillingCycle(t *testing.T) {
	p := Policy{Target: 3, IntervalMinutes: 60, IsRecurring: true}
	got := ComputeState(p, []time.Time{mins(0), mins(5)}, mins(6), time.UTC)
	assertState(t, got, 2, true, nil)
}

func TestScenarioLockedAfterTarget(t *testing.T) {
	p := Policy{Target: 2, IntervalMinutes: 60, IsRecurring: true}
	logs := []time.Time{mins(0), mins(10), mins(20)}

	got := ComputeState(p, logs, mins(45), time.UTC)
	assertState(t, got, 2, false, ptr(mins(70)))
}

func TestScenarioOverflowAtReset(t *testing.T) {
	p := Policy{Target: 2, IntervalMinutes: 60, IsRecurring: true}
	logs := []time.Time{mins(0), mins(10), mins(20)}

	got := ComputeState(p, logs, mins(70), time.UTC)
	assertState(t, got, 1, true, ptr(mins(70)))
}

func TestBoundaryEquality(t *testing.T) {
	p := Policy{Target: 1, IntervalMinutes: 30, IsRecurring: true}
	logs := []time.Time{mins(0)}
	reset := mins(30)

	atReset := ComputeState(p, logs, reset, time.UTC)
	if !atReset.IsActive {
		t.Error("expected active exactly at reset")
	}

	justBefore := ComputeState(p, logs, reset.Add(-time.Millisecond), time.UTC)
	if justBefore.IsActive {
		t.Error("expected locked 1ms before reset")
	}
}

func TestOrderIndependence(t *testing.T) {
	p := Policy{Target: 2, IntervalMinutes: 60, IsRecurring: true}
	logs := []time.Time{mins(0), mins(10), mins(20), mins(95), mins(100)}
	now := mins(130)
	want := ComputeState(p, logs, now, time.UTC)

	r := rand.New(rand.NewPCG(1, 2))
	for i := 0; i < 20; i++ {
		shuffled := slices.Clone(logs)
		r.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })
		got := ComputeState(p, shuffled, now, time.UTC)
		assertState(t, got, want.Progress, want.IsActive, want.NextResetAt)
	}
}

func TestInputNotMutated(t *testing.T) {
	p := Policy{Target: 1, IntervalMinutes: 60, IsRecurring: true}
	logs := []time.Time{mins(20), mins(0), mins(10)}
	ComputeState(p, logs, mins(30), time.UTC)
	if !logs[0].Equal(mins(20)) || !logs[1].Equal(mins(0)) {
		t.Error("expected caller's slice to keep its order")
	}
}

func TestDailyAlignsToMidnight(t *testing.T) {
	p := Policy{Target: 1, IntervalMinutes: 1440, IsRecurring: true}
	done := time.Date(2026, 2, 5, 23, 30, 0, 0, time.UTC)

	got := ComputeState(p, []time.Time{done}, done.Add(time.Minute), time.UTC)
	assertState(t, got, 1, false, ptr(time.Date(2026, 2, 6, 0, 0, 0, 0, time.UTC)))

	// 30 minutes later the next day has started.
	got = ComputeState(p, []time.Time{done}, done.Add(30*time.Minute), time.UTC)
	if !got.IsActive {
		t.Error("expected active after midnight")
	}
}

func TestWeeklyAlignsToMidnight(t *testing.T) {
	p := Policy{Target: 1, IntervalMinutes: 7 * 1440, IsRecurring: true}
	done := time.Date(2026, 2, 5, 15, 0, 0, 0, time.UTC)

	got := ComputeState(p, []time.Time{done}, done, time.UTC)
	assertState(t, got, 1, false, ptr(time.Date(2026, 2, 12, 0, 0, 0, 0, time.UTC)))
}

func TestSubDayIntervalDoesNotSnap(t *testing.T) {
	p := Policy{Target: 1, IntervalMinutes: 60, IsRecurring: true}
	done := time.Date(2026, 2, 5, 23, 30, 0, 0, time.UTC)

	got := ComputeState(p, []time.Time{done}, done, time.UTC)
	assertState(t, got, 1, false, ptr(done.Add(60*time.Minute)))
}

func TestUnevenMultiDayIntervalDoesNotSnap(t *testing.T) {
	p := Policy{Target: 1, IntervalMinutes: 1500, IsRecurring: true}
	done := time.Date(2026, 2, 5, 23, 30, 0, 0, time.UTC)

	got := ComputeState(p, []time.Time{done}, done, time.UTC)
	assertState(t, got, 1, false, ptr(done.Add(1500*time.Minute)))
}

func TestDailyAlignmentUsesGivenZone(t *testing.T) {
	// 23:30 UTC on Feb 5 is 12:30 on Feb 6 at UTC+13.
	zone := time.FixedZone("NZDT", 13*3600)
	p := Policy{Target: 1, IntervalMinutes: 1440, IsRecurring: true}
	done := time.Date(2026, 2, 5, 23, 30, 0, 0, time.UTC)

	got := ComputeState(p, []time.Time{done}, done, zone)
	want := time.Date(2026, 2, 7, 0, 0, 0, 0, zone)
	assertState(t, got, 1, false, &want)
}

func TestMultipleCyclesCatchUp(t *testing.T) {
	// Five completions with target 2: two full cycles, one overflow.
	p := Policy{Target: 2, IntervalMinutes: 60, IsRecurring: true}
	logs := []time.Time{mins(0), mins(5), mins(200), mins(210), mins(220)}

	locked := ComputeState(p, logs, mins(250), time.UTC)
	assertState(t, locked, 2, false, ptr(mins(270)))

	open := ComputeState(p, logs, mins(300), time.UTC)
	assertState(t, open, 1, true, ptr(mins(270)))
}

func TestExactMultipleAfterResetHasZeroProgress(t *testing.T) {
	p := Policy{Target: 2, IntervalMinutes: 60, IsRecurring: true}
	logs := []time.Time{mins(0), mins(10)}

	got := ComputeState(p, logs, mins(500), time.UTC)
	assertState(t, got, 0, true, ptr(mins(70)))
}

func TestClampTarget(t *testing.T) {
	logs := []time.Time{mins(0), mins(3)}
	now := mins(20)
	zero := ComputeState(Policy{Target: 0, IntervalMinutes: 60, IsRecurring: true}, logs, now, time.UTC)
	neg := ComputeState(Policy{Target: -4, IntervalMinutes: 60, IsRecurring: true}, logs, now, time.UTC)
	one := ComputeState(Policy{Target: 1, IntervalMinutes: 60, IsRecurring: true}, logs, now, time.UTC)

	assertState(t, zero, one.Progress, one.IsActive, one.NextResetAt)
	assertState(t, neg, one.Progress, one.IsActive, one.NextResetAt)
}

func TestClampInterval(t *testing.T) {
	logs := []time.Time{mins(0)}
	for _, now := range []time.Time{mins(0), mins(0).Add(59 * time.Second), mins(1)} {
		zero := ComputeState(Policy{Target: 1, IntervalMinutes: 0, IsRecurring: true}, logs, now, time.UTC)
		one := ComputeState(Policy{Target: 1, IntervalMinutes: 1, IsRecurring: true}, logs, now, time.UTC)
		assertState(t, zero, one.Progress, one.IsActive, one.NextResetAt)
	}
}

func TestHugeIntervalStaysLocked(t *testing.T) {
	logs := []time.Time{mins(0)}
	got := ComputeState(Policy{Target: 1, IntervalMinutes: 200_000_000, IsRecurring: true}, logs, mins(1), time.UTC)

	reset := startOfDay(mins(0)).Add(MaxIntervalMinutes * time.Minute)
	assertState(t, got, 1, false, &reset)
	if !got.NextResetAt.After(mins(0)) {
		t.Errorf("next_reset_at = %v, before the completion", *got.NextResetAt)
	}
}

func TestNormalize(t *testing.T) {
	p, clamped := Normalize(Policy{Target: 2, IntervalMinutes: 30})
	if clamped {
		t.Error("expected no clamping for valid policy")
	}
	if p.Target != 2 || p.IntervalMinutes != 30 {
		t.Errorf("policy = %+v, want unchanged", p)
	}

	p, clamped = Normalize(Policy{Target: 0, IntervalMinutes: -1})
	if !clamped {
		t.Error("expected clamping")
	}
	if p.Target != 1 || p.IntervalMinutes != 1 {
		t.Errorf("policy = %+v, want target=1 interval=1", p)
	}

	p, clamped = Normalize(Policy{Target: 1, IntervalMinutes: MaxIntervalMinutes + 1})
	if !clamped || p.IntervalMinutes != MaxIntervalMinutes {
		t.Errorf("policy = %+v clamped = %v, want interval=%d", p, clamped, MaxIntervalMinutes)
	}
	p, clamped = Normalize(Policy{Target: 1, IntervalMinutes: MaxIntervalMinutes})
	if clamped || p.IntervalMinutes != MaxIntervalMinutes {
		t.Errorf("policy = %+v clamped = %v, want unchanged", p, clamped)
	}
}

func TestCalculatorWarnsOnClamp(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	calc := NewCalculator(time.UTC, logger)

	calc.State(7, Policy{Target: 1, IntervalMinutes: 60, IsRecurring: true}, nil, base)
	if buf.Len() != 0 {
		t.Errorf("unexpected log output: %s", buf.String())
	}

	calc.State(7, Policy{Target: 0, IntervalMinutes: 60, IsRecurring: true}, nil, base)
	if !strings.Contains(buf.String(), "cadence policy clamped") {
		t.Errorf("expected clamp warning, got %q", buf.String())
	}
	if !strings.Contains(buf.String(), "task_id=7") {
		t.Errorf("expected task id in warning, got %q", buf.String())
	}
}

func TestCalculatorDefaultsToUTC(t *testing.T) {
	calc := NewCalculator(nil, nil)
	if calc.Location() != time.UTC {
		t.Errorf("location = %v, want UTC", calc.Location())
	}
}
