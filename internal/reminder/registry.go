package reminder

import (
	"context"
	"sync"
)

// Runner is a background loop the registry can manage.
type Runner interface {
	Start(ctx context.Context)
	Stop()
}

// Registry tracks named background loops so each name runs at most once per
// process.
type Registry struct {
	mu      sync.Mutex
	runners map[string]Runner
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{runners: make(map[string]Runner)}
}

// Start starts r under name and reports whether it was started. It does
// nothing when name is already running.
func (r *Registry) Start(ctx context.Context, name string, runner Runner) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.runners[name]; ok {
		return false
	}
	runner.Start(ctx)
	r.runners[name] = runner
	return true
}

// Stop stops the runner registered under name, if any.
func (r *Registry) Stop(name string) {
	r.mu.Lock()
	runner, ok := r.runners[name]
	delete(r.runners, name)
	r.mu.Unlock()

	if ok {
		runner.Stop()
	}
}

// Running reports whether name is registered.
func (r *Registry) Running(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.runners[name]
	return ok
}

// StopAll stops every registered runner.
func (r *Registry) StopAll() {
	r.mu.Lock()
	runners := r.runners
	r.runners = make(map[string]Runner)
	r.mu.Unlock()

	for _, runner := range runners {
		runner.Stop()
	}
}
