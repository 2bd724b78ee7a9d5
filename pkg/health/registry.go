// Package health aggregates dependency checks for the readiness endpoint.
package health

import (
	"context"
	"sort"
	"sync"
	"time"
)

type Status string

const (
	StatusHealthy Status = "healthy"
	// StatusDegraded means only optional dependencies are failing.
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// Result is the outcome of one check.
type Result struct {
	Name     string `json:"name"`
	Status   Status `json:"status"`
	Optional bool   `json:"optional,omitempty"`
	Error    string `json:"error,omitempty"`
	// LatencyMS is how long the dependency took to answer.
	LatencyMS int64 `json:"latency_ms"`
}

// Report is the aggregate served on /ready.
type Report struct {
	Status    Status    `json:"status"`
	Checks    []Result  `json:"checks"`
	CheckedAt time.Time `json:"checked_at"`
}

// Ready reports whether every required dependency is healthy.
func (r Report) Ready() bool {
	return r.Status != StatusUnhealthy
}

type Checker interface {
	Name() string
	Check(ctx context.Context) Result
}

type optional struct{ Checker }

func (o optional) Check(ctx context.Context) Result {
	res := o.Checker.Check(ctx)
	res.Optional = true
	return res
}

// Optional marks c so that its failure degrades the report instead of
// failing readiness.
func Optional(c Checker) Checker {
	return optional{c}
}

// Option configures a Registry.
type Option func(*Registry)

// WithCacheTTL serves the last report for ttl instead of calling the
// dependencies on every probe.
func WithCacheTTL(ttl time.Duration) Option {
	return func(r *Registry) { r.ttl = ttl }
}

// Registry runs the registered checks.
type Registry struct {
	mu       sync.Mutex
	checkers map[string]Checker
	ttl      time.Duration
	cached   *Report
	now      func() time.Time
}

func NewRegistry(opts ...Option) *Registry {
	r := &Registry{checkers: map[string]Checker{}, now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds c, replacing a checker of the same name.
func (r *Registry) Register(c Checker) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.checkers[c.Name()] = c
	r.cached = nil
}

// Check runs every checker concurrently and returns the report, ordered by
// check name.
func (r *Registry) Check(ctx context.Context) Report {
	r.mu.Lock()
	if r.cached != nil && r.now().Sub(r.cached.CheckedAt) < r.ttl {
		report := *r.cached
		r.mu.Unlock()
		return report
	}
	checkers := make([]Checker, 0, len(r.checkers))
	for _, c := range r.checkers {
		checkers = append(checkers, c)
	}
	r.mu.Unlock()

	results := make([]Result, len(checkers))
	var wg sync.WaitGroup
	for i, c := range checkers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = c.Check(ctx)
		}()
	}
	wg.Wait()
	sort.Slice(results, func(i, j int) bool { return results[i].Name < results[j].Name })

	report := Report{Status: StatusHealthy, Checks: results, CheckedAt: r.now()}
	for _, res := range results {
		switch {
		case res.Status == StatusHealthy:
		case res.Optional:
			if report.Status == StatusHealthy {
				report.Status = StatusDegraded
			}
		default:
			report.Status = StatusUnhealthy
		}
	}

	if r.ttl > 0 {
		r.mu.Lock()
		r.cached = &report
		r.mu.Unlock()
	}
	return report
}
