package reminder

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// DefaultPollInterval is how often the scheduler evaluates reminders.
const DefaultPollInterval = 60 * time.Second

// Scheduler periodically finds due reminders and sends them.
type Scheduler struct {
	finder   *Finder
	sender   *Sender
	interval time.Duration
	logger   *slog.Logger
	now      func() time.Time
	loop     *Loop
	inFlight atomic.Bool
}

// PassResult summarises one evaluation pass.
type PassResult struct {
	ID       string `json:"id"`
	Eligible int    `json:"eligible"`
	SendResult
	Skipped bool `json:"skipped,omitempty"`
}

// NewScheduler creates a stopped scheduler that runs a pass every interval,
// or every DefaultPollInterval when interval is not positive.
func NewScheduler(finder *Finder, sender *Sender, interval time.Duration, logger *slog.Logger) *Scheduler {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	s := &Scheduler{
		finder:   finder,
		sender:   sender,
		interval: interval,
		logger:   logger.With("component", "reminder_scheduler"),
		now:      time.Now,
	}
	s.loop = NewLoop(interval, func(ctx context.Context) { s.RunOnce(ctx) }, true, s.logger)
	return s
}

// Start runs one pass immediately and then one per interval until ctx is
// cancelled or Stop is called. Calling Start on a running scheduler does
// nothing.
func (s *Scheduler) Start(ctx context.Context) {
	if s.loop.start(ctx) {
		s.logger.Info("reminder scheduler started", "interval", s.interval)
	}
}

// Stop cancels the loop and waits for an in-flight pass to return. It is
// safe to call on a stopped scheduler.
func (s *Scheduler) Stop() {
	if s.loop.stop() {
		s.logger.Info("reminder scheduler stopped")
	}
}

// Running reports whether the loop is active.
func (s *Scheduler) Running() bool {
	return s.loop.Running()
}

// RunOnce performs a single pass. If another pass is still running it
// returns immediately with Skipped set. Panics are recovered and logged.
func (s *Scheduler) RunOnce(ctx context.Context) (res PassResult) {
	res.ID = uuid.NewString()
	log := s.logger.With("pass_id", res.ID)

	if !s.inFlight.CompareAndSwap(false, true) {
		log.Warn("reminder pass skipped, previous pass still running")
		res.Skipped = true
		return res
	}
	defer s.inFlight.Store(false)

	defer func() {
		if r := recover(); r != nil {
			log.Error("reminder pass panicked", "panic", r)
		}
	}()

	start := s.now()
	due, err := s.finder.FindAll(ctx, start)
	if err != nil {
		log.Error("find due reminders", "error", err)
	}
	res.Eligible = len(due)

	if len(due) > 0 {
		res.SendResult = s.sender.SendMany(ctx, due, start)
	}

	log.Info("reminder pass complete",
		"eligible", res.Eligible,
		"sent", res.Sent,
		"failed", res.Failed,
		"duration", time.Since(start),
	)
	return res
}
