package dataservice

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"ashare-data-lab/internal/domain"
	"ashare-data-lab/internal/observability"
)

// Mode selects how the runner drives multiple domains.
type Mode string

const (
	// ModeSequential runs services one after another on the caller's
	// goroutine; each call completes before the next starts.
	ModeSequential Mode = "sequential"

	// ModeConcurrent runs services in parallel under a bounded errgroup.
	// Both modes produce identical storage effects; the services are
	// mode-agnostic and each owns a disjoint namespace.
	ModeConcurrent Mode = "concurrent"
)

// Runner drives registered domain services through structure, data and
// quality phases. The structure phase always completes for every service
// before any data operation starts.
type Runner struct {
	services    []Service
	mode        Mode
	concurrency int
	metrics     *observability.Metrics
}

// NewRunner creates a runner over the given services.
func NewRunner(services []Service, mode Mode, concurrency int) *Runner {
	if concurrency <= 0 {
		concurrency = 4
	}
	return &Runner{services: services, mode: mode, concurrency: concurrency}
}

// WithMetrics adds observability metrics.
func (r *Runner) WithMetrics(m *observability.Metrics) *Runner {
	r.metrics = m
	return r
}

// EnsureAll provisions every service's structures. First error aborts.
func (r *Runner) EnsureAll(ctx context.Context) error {
	return r.each(ctx, func(ctx context.Context, s Service) error {
		if err := s.EnsureTables(ctx); err != nil {
			return fmt.Errorf("ensure tables for %s: %w", s.Name(), err)
		}
		return nil
	})
}

// UpdateAll runs EnsureAll and then an incremental update on every
// service, collecting per-domain results.
func (r *Runner) UpdateAll(ctx context.Context, opts UpdateOptions) ([]*domain.RunResult, error) {
	if err := r.EnsureAll(ctx); err != nil {
		return nil, err
	}
	return r.collect(ctx, func(ctx context.Context, s Service) (*domain.RunResult, error) {
		return s.IncrementalUpdate(ctx, opts)
	})
}

// RebuildAll runs EnsureAll and then a full rebuild on every service.
func (r *Runner) RebuildAll(ctx context.Context, opts RebuildOptions) ([]*domain.RunResult, error) {
	if err := r.EnsureAll(ctx); err != nil {
		return nil, err
	}
	return r.collect(ctx, func(ctx context.Context, s Service) (*domain.RunResult, error) {
		return s.FullRebuild(ctx, opts)
	})
}

// ValidateAll validates every service. Check failures live in the results;
// only infrastructure failures surface as the error.
func (r *Runner) ValidateAll(ctx context.Context) ([]*domain.RunResult, error) {
	return r.collect(ctx, func(ctx context.Context, s Service) (*domain.RunResult, error) {
		return s.Validate(ctx)
	})
}

// each applies fn to every service under the configured mode.
func (r *Runner) each(ctx context.Context, fn func(context.Context, Service) error) error {
	if r.mode == ModeConcurrent {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(r.concurrency)
		for _, s := range r.services {
			s := s
			g.Go(func() error { return fn(gctx, s) })
		}
		return g.Wait()
	}

	for _, s := range r.services {
		if err := fn(ctx, s); err != nil {
			return err
		}
	}
	return nil
}

// collect applies fn to every service and gathers results in registration
// order regardless of completion order.
func (r *Runner) collect(ctx context.Context, fn func(context.Context, Service) (*domain.RunResult, error)) ([]*domain.RunResult, error) {
	results := make([]*domain.RunResult, len(r.services))

	if r.mode == ModeConcurrent {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(r.concurrency)
		var mu sync.Mutex
		for i, s := range r.services {
			i, s := i, s
			g.Go(func() error {
				start := time.Now()
				res, err := fn(gctx, s)
				if err != nil {
					return fmt.Errorf("domain %s: %w", s.Name(), err)
				}
				r.observe(res, time.Since(start))
				mu.Lock()
				results[i] = res
				mu.Unlock()
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
		return results, nil
	}

	for i, s := range r.services {
		start := time.Now()
		res, err := fn(ctx, s)
		if err != nil {
			return nil, fmt.Errorf("domain %s: %w", s.Name(), err)
		}
		r.observe(res, time.Since(start))
		results[i] = res
	}
	return results, nil
}

func (r *Runner) observe(res *domain.RunResult, elapsed time.Duration) {
	if res == nil {
		return
	}
	r.metrics.ObserveServiceRun(res.Domain, res.Operation, string(res.Status), elapsed)
}
