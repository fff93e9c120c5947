package health

import (
	"context"
	"maps"
	"net/http"
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Status is the state of a local check and of the aggregate verdict.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// Valid reports whether s is one of the three known states.
func (s Status) Valid() bool {
	switch s {
	case StatusHealthy, StatusDegraded, StatusUnhealthy:
		return true
	}
	return false
}

// DependencyStatus is the last probe outcome of an external dependency.
type DependencyStatus string

const (
	DependencyUp       DependencyStatus = "up"
	DependencyDegraded DependencyStatus = "degraded"
	DependencyDown     DependencyStatus = "down"
)

const (
	// DefaultProbeTimeout bounds a single dependency probe.
	DefaultProbeTimeout = 5 * time.Second

	// ProbeFailedLatency is recorded as a dependency's latency when the
	// probe could not reach it.
	ProbeFailedLatency time.Duration = -1

	// uptimeWindow is the number of recent probes UptimePct covers.
	uptimeWindow = 20
)

// Check is the last report of a local health check.
type Check struct {
	Name         string         `json:"name" yaml:"name"`
	Status       Status         `json:"status" yaml:"status"`
	LastCheck    time.Time      `json:"last_check" yaml:"last_check"`
	ResponseTime time.Duration  `json:"response_time" yaml:"response_time"`
	Details      map[string]any `json:"details,omitempty" yaml:"details,omitempty"`
}

// Dependency is the probe state of an external service.
type Dependency struct {
	Name       string           `json:"name" yaml:"name"`
	URL        string           `json:"url" yaml:"url"`
	Status     DependencyStatus `json:"status" yaml:"status"`
	Latency    time.Duration    `json:"latency" yaml:"latency"`
	LastCheck  time.Time        `json:"last_check" yaml:"last_check"`
	StatusCode int              `json:"status_code,omitempty" yaml:"status_code,omitempty"`
	Error      string           `json:"error,omitempty" yaml:"error,omitempty"`
	UptimePct  float64          `json:"uptime_pct" yaml:"uptime_pct"`
}

// Report is the aggregate health verdict with the state it was derived from.
type Report struct {
	Overall      Status       `json:"overall" yaml:"overall"`
	Checks       []Check      `json:"checks" yaml:"checks"`
	Dependencies []Dependency `json:"dependencies" yaml:"dependencies"`
}

// Reporter records a new status for the check it was returned for.
type Reporter func(status Status, details map[string]any)

// dependency is the registry-owned record. gen changes on every
// registration so in-flight probes for a replaced record can be discarded.
type dependency struct {
	Dependency
	target Target
	gen    uint64
	recent []bool
}

// Registry aggregates local checks and external dependencies into one
// verdict.
//
// Registry is safe for concurrent use. The lock is never held while a
// dependency is being probed.
type Registry struct {
	mu         sync.RWMutex
	checks     map[string]*Check
	checkOrder []string
	deps       map[string]*dependency
	depOrder   []string
	gen        uint64

	prober  Prober
	timeout time.Duration
	now     func() time.Time
	logger  *zap.Logger
}

// NewRegistry returns an empty Registry. A nil prober defaults to an
// HTTPProber and a non-positive timeout to DefaultProbeTimeout.
func NewRegistry(prober Prober, timeout time.Duration, logger *zap.Logger) *Registry {
	if prober == nil {
		prober = NewHTTPProber()
	}
	if timeout <= 0 {
		timeout = DefaultProbeTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		checks:  make(map[string]*Check),
		deps:    make(map[string]*dependency),
		prober:  prober,
		timeout: timeout,
		now:     time.Now,
		logger:  logger.Named("health"),
	}
}

// RegisterCheck returns the reporter for the named check. The check is
// created by its first report.
func (r *Registry) RegisterCheck(name string) Reporter {
	return func(status Status, details map[string]any) {
		r.report(name, status, details)
	}
}

func (r *Registry) report(name string, status Status, details map[string]any) {
	if !status.Valid() {
		r.logger.Warn("ignoring check report with unknown status",
			zap.String("check", name), zap.String("status", string(status)))
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	c, ok := r.checks[name]
	if !ok {
		c = &Check{Name: name}
		r.checks[name] = c
		r.checkOrder = append(r.checkOrder, name)
	} else {
		c.ResponseTime = now.Sub(c.LastCheck)
	}
	c.Status = status
	c.LastCheck = now
	c.Details = maps.Clone(details)
}

// RegisterDependency adds or resets a dependency probed with a plain GET.
func (r *Registry) RegisterDependency(name, url string) {
	r.RegisterDependencyWith(Target{Name: name, URL: url})
}

// RegisterDependencyWith adds or resets the dependency t.Name. A new record
// starts up with zero latency.
func (r *Registry) RegisterDependencyWith(t Target) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.gen++
	if _, ok := r.deps[t.Name]; !ok {
		r.depOrder = append(r.depOrder, t.Name)
	}
	r.deps[t.Name] = &dependency{
		Dependency: Dependency{
			Name:      t.Name,
			URL:       t.URL,
			Status:    DependencyUp,
			UptimePct: 100,
		},
		target: t,
		gen:    r.gen,
	}
	r.logger.Debug("dependency registered", zap.String("dependency", t.Name), zap.String("url", t.URL))
}

// UnregisterDependency removes the named dependency and reports whether it
// was registered. A probe in flight for it is discarded.
func (r *Registry) UnregisterDependency(name string) bool {
	r.mu.Lock()
	_, ok := r.deps[name]
	if ok {
		delete(r.deps, name)
		r.depOrder = slices.DeleteFunc(r.depOrder, func(n string) bool { return n == name })
	}
	r.mu.Unlock()
	if !ok {
		return false
	}

	if f, ok := r.prober.(interface{ Forget(name string) }); ok {
		f.Forget(name)
	}
	r.logger.Debug("dependency unregistered", zap.String("dependency", name))
	return true
}

// CheckDependency probes the named dependency and records the outcome. It
// reports false when the dependency is unknown or down. Probe errors are
// logged, not returned.
func (r *Registry) CheckDependency(ctx context.Context, name string) bool {
	r.mu.RLock()
	d, ok := r.deps[name]
	var (
		target Target
		gen    uint64
	)
	if ok {
		target, gen = d.target, d.gen
	}
	r.mu.RUnlock()
	if !ok {
		return false
	}

	pctx, cancel := context.WithTimeout(ctx, r.timeout)
	res := r.prober.Probe(pctx, target)
	cancel()
	if res.Status == DependencyDown {
		res.Latency = ProbeFailedLatency
	}
	reachable := res.Status != DependencyDown

	r.mu.Lock()
	d, ok = r.deps[name]
	if !ok || d.gen != gen {
		r.mu.Unlock()
		r.logger.Debug("discarding probe result for replaced dependency", zap.String("dependency", name))
		return reachable
	}
	d.apply(res, r.now())
	r.mu.Unlock()

	if res.Err != nil {
		r.logger.Warn("dependency probe failed",
			zap.String("dependency", name),
			zap.String("url", target.URL),
			zap.String("status", string(res.Status)),
			zap.Error(res.Err),
		)
	}
	return reachable
}

func (d *dependency) apply(res ProbeResult, at time.Time) {
	d.Status = res.Status
	d.Latency = res.Latency
	d.LastCheck = at
	d.StatusCode = res.StatusCode
	d.Error = ""
	if res.Err != nil {
		d.Error = res.Err.Error()
	}

	d.recent = append(d.recent, res.Status != DependencyDown)
	if len(d.recent) > uptimeWindow {
		d.recent = d.recent[len(d.recent)-uptimeWindow:]
	}
	reachable := 0
	for _, ok := range d.recent {
		if ok {
			reachable++
		}
	}
	d.UptimePct = float64(reachable) / float64(len(d.recent)) * 100
}

// Checks returns copies of all checks in first-report order.
func (r *Registry) Checks() []Check {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.checksLocked()
}

// Dependencies returns copies of all dependencies in registration order.
func (r *Registry) Dependencies() []Dependency {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.dependenciesLocked()
}

// Status returns the aggregate verdict: unhealthy if any check is unhealthy
// or any dependency is down, else degraded if any check is degraded, else
// healthy. A degraded dependency does not affect the verdict.
func (r *Registry) Status() Report {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rep := Report{
		Checks:       r.checksLocked(),
		Dependencies: r.dependenciesLocked(),
	}
	rep.Overall = aggregate(rep.Checks, rep.Dependencies)
	return rep
}

func (r *Registry) checksLocked() []Check {
	out := make([]Check, 0, len(r.checkOrder))
	for _, name := range r.checkOrder {
		c := *r.checks[name]
		c.Details = maps.Clone(c.Details)
		out = append(out, c)
	}
	return out
}

func (r *Registry) dependenciesLocked() []Dependency {
	out := make([]Dependency, 0, len(r.depOrder))
	for _, name := range r.depOrder {
		out = append(out, r.deps[name].Dependency)
	}
	return out
}

func aggregate(checks []Check, deps []Dependency) Status {
	for _, c := range checks {
		if c.Status == StatusUnhealthy {
			return StatusUnhealthy
		}
	}
	for _, d := range deps {
		if d.Status == DependencyDown {
			return StatusUnhealthy
		}
	}
	for _, c := range checks {
		if c.Status == StatusDegraded {
			return StatusDegraded
		}
	}
	return StatusHealthy
}

// HTTPStatus maps a verdict to the status code a health endpoint should
// answer with.
func HTTPStatus(overall Status) int {
	if overall == StatusUnhealthy {
		return http.StatusServiceUnavailable
	}
	return http.StatusOK
}
