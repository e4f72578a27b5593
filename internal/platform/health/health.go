// Package health aggregates readiness checks over the process dependencies.
package health

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// Checker reports whether a single dependency is reachable.
type Checker interface {
	Health(ctx context.Context) error
}

// CheckerFunc adapts a function to the Checker interface.
type CheckerFunc func(ctx context.Context) error

func (f CheckerFunc) Health(ctx context.Context) error { return f(ctx) }

// Registry holds named dependency checks.
type Registry struct {
	checks map[string]Checker
}

func NewRegistry() *Registry {
	return &Registry{checks: make(map[string]Checker)}
}

// Register adds a named check. Nil checkers are ignored so callers can pass
// optional dependencies without guarding.
func (r *Registry) Register(name string, c Checker) {
	if c == nil {
		return
	}
	r.checks[name] = c
}

// Check runs all registered checks concurrently and returns per-dependency
// results. A nil error value means the dependency is healthy.
func (r *Registry) Check(ctx context.Context) map[string]error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var mu sync.Mutex
	results := make(map[string]error, len(r.checks))

	g, ctx := errgroup.WithContext(ctx)
	for name, check := range r.checks {
		g.Go(func() error {
			err := check.Health(ctx)
			mu.Lock()
			results[name] = err
			mu.Unlock()
			return nil
		})
	}
	g.Wait()

	return results
}

// Healthy reports whether every registered dependency passed.
func Healthy(results map[string]error) bool {
	for _, err := range results {
		if err != nil {
			return false
		}
	}
	return true
}
