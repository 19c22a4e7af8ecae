package reminder

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Loop runs a function on a fixed interval until stopped. Panics in the
// function are recovered and logged. Loop satisfies Runner.
type Loop struct {
	mu        sync.Mutex
	interval  time.Duration
	run       func(context.Context)
	immediate bool
	logger    *slog.Logger
	cancel    context.CancelFunc
	done      chan struct{}
}

// NewLoop creates a stopped loop. When immediate is set, run is called once
// as soon as the loop starts instead of waiting for the first tick.
func NewLoop(interval time.Duration, run func(context.Context), immediate bool, logger *slog.Logger) *Loop {
	return &Loop{interval: interval, run: run, immediate: immediate, logger: logger}
}

// Start launches the loop. It does nothing on a running loop.
func (l *Loop) Start(ctx context.Context) { l.start(ctx) }

// Stop cancels the loop and waits for a running call to return. It is safe
// to call on a stopped loop.
func (l *Loop) Stop() { l.stop() }

func (l *Loop) start(ctx context.Context) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.cancel != nil {
		return false
	}

	ctx, l.cancel = context.WithCancel(ctx)
	done := make(chan struct{})
	l.done = done

	go func() {
		defer close(done)
		tk := time.NewTicker(l.interval)
		defer tk.Stop()

		if l.immediate {
			l.safeRun(ctx)
		}
		for {
			select {
			case <-ctx.Done():
				return
			case <-tk.C:
				l.safeRun(ctx)
			}
		}
	}()
	return true
}

func (l *Loop) safeRun(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("background task panicked", "panic", r)
		}
	}()
	l.run(ctx)
}

func (l *Loop) stop() bool {
	l.mu.Lock()
	cancel, done := l.cancel, l.done
	l.cancel, l.done = nil, nil
	l.mu.Unlock()

	if cancel == nil {
		return false
	}
	cancel()
	<-done
	return true
}

func (l *Loop) Running() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.cancel != nil
}
