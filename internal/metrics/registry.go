package metrics

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/common/model"
	"go.uber.org/zap"
)

// Kind is the metric type written to the # TYPE line.
type Kind string

const (
	KindCounter Kind = "counter"
	KindGauge   Kind = "gauge"
)

var (
	// ErrInvalidName is returned when a metric name is not a valid
	// Prometheus metric name in the classic [a-zA-Z_:][a-zA-Z0-9_:]* form.
	ErrInvalidName = errors.New("invalid metric name")

	// ErrKindMismatch is returned when a name is registered again with a
	// different kind.
	ErrKindMismatch = errors.New("metric registered with a different kind")
)

// Point is one recorded sample. Points are copied on the way in and out of
// the registry and never modified after recording.
type Point struct {
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`
	Labels    Labels    `json:"labels,omitempty"`
}

// Stats summarises every retained point of a metric.
type Stats struct {
	Count int     `json:"count" yaml:"count"`
	Min   float64 `json:"min" yaml:"min"`
	Max   float64 `json:"max" yaml:"max"`
	Avg   float64 `json:"avg" yaml:"avg"`
}

// series is the registry-owned state of one metric. keys runs parallel to
// points and holds each point's canonical label key.
type series struct {
	name   string
	help   string
	kind   Kind
	points []Point
	keys   []string
}

func (s *series) append(p Point, key string) {
	s.points = append(s.points, p)
	s.keys = append(s.keys, key)
}

// drop removes every point whose label key equals key, preserving order.
func (s *series) drop(key string) {
	n := 0
	for i, k := range s.keys {
		if k == key {
			continue
		}
		s.points[n] = s.points[i]
		s.keys[n] = k
		n++
	}
	clear(s.points[n:])
	s.points = s.points[:n]
	s.keys = s.keys[:n]
}

// Registry owns a set of named metrics.
//
// Registry is safe for concurrent use.
type Registry struct {
	mu     sync.RWMutex
	byName map[string]*series
	order  []*series

	now    func() time.Time
	logger *zap.Logger
}

// NewRegistry returns an empty Registry. A nil logger disables logging.
func NewRegistry(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		byName: make(map[string]*series),
		now:    time.Now,
		logger: logger.Named("metrics"),
	}
}

// CreateCounter registers a counter, or returns the existing one when name
// is already a counter. Existing points are kept.
func (r *Registry) CreateCounter(name, help string) (*Counter, error) {
	s, err := r.register(name, help, KindCounter)
	if err != nil {
		return nil, err
	}
	return &Counter{reg: r, s: s}, nil
}

// CreateGauge registers a gauge, or returns the existing one when name is
// already a gauge. Existing points are kept.
func (r *Registry) CreateGauge(name, help string) (*Gauge, error) {
	s, err := r.register(name, help, KindGauge)
	if err != nil {
		return nil, err
	}
	return &Gauge{reg: r, s: s}, nil
}

func (r *Registry) register(name, help string, kind Kind) (*series, error) {
	if !model.IsValidLegacyMetricName(name) {
		return nil, fmt.Errorf("metrics: %q: %w", name, ErrInvalidName)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.byName[name]; ok {
		if s.kind != kind {
			return nil, fmt.Errorf("metrics: %q is a %s, not a %s: %w", name, s.kind, kind, ErrKindMismatch)
		}
		return s, nil
	}

	s := &series{name: name, help: help, kind: kind}
	r.byName[name] = s
	r.order = append(r.order, s)
	r.logger.Debug("metric registered", zap.String("name", name), zap.String("kind", string(kind)))
	return s, nil
}

// record appends a point to s. When replace is set, points carrying the same
// label set are removed first. A point with an invalid label name is dropped.
func (r *Registry) record(s *series, value float64, labels Labels, replace bool) {
	if bad, ok := labels.invalidName(); ok {
		r.logger.Warn("dropping point with invalid label name",
			zap.String("metric", s.name), zap.String("label", bad))
		return
	}
	p := Point{Value: value, Labels: labels.clone()}
	key := p.Labels.key()

	r.mu.Lock()
	defer r.mu.Unlock()

	p.Timestamp = r.now()
	if replace {
		s.drop(key)
	}
	s.append(p, key)
}

// Stats returns count, min, max and average over all points of name.
// It reports false when the metric is unknown or has no points.
func (r *Registry) Stats(name string) (Stats, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.byName[name]
	if !ok || len(s.points) == 0 {
		return Stats{}, false
	}

	st := Stats{Count: len(s.points), Min: s.points[0].Value, Max: s.points[0].Value}
	var sum float64
	for _, p := range s.points {
		sum += p.Value
		st.Min = min(st.Min, p.Value)
		st.Max = max(st.Max, p.Value)
	}
	st.Avg = sum / float64(st.Count)
	return st, true
}

// Points returns a copy of every retained point of name in recording order.
func (r *Registry) Points(name string) []Point {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.byName[name]
	if !ok {
		return nil
	}
	out := make([]Point, len(s.points))
	for i, p := range s.points {
		p.Labels = p.Labels.clone()
		out[i] = p
	}
	return out
}

// Names returns registered metric names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, len(r.order))
	for i, s := range r.order {
		out[i] = s.name
	}
	return out
}

// Kind reports the kind of name and whether it is registered.
func (r *Registry) Kind(name string) (Kind, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.byName[name]
	if !ok {
		return "", false
	}
	return s.kind, true
}

// Counter is a handle to a registered counter. Each Add is stored as an
// independent point.
type Counter struct {
	reg *Registry
	s   *series
}

// Name returns the metric name.
func (c *Counter) Name() string { return c.s.name }

// Inc records an increment of 1.
func (c *Counter) Inc(labels Labels) { c.Add(1, labels) }

// Add records an increment of v. Negative values are recorded as given.
func (c *Counter) Add(v float64, labels Labels) {
	c.reg.record(c.s, v, labels, false)
}

// Gauge is a handle to a registered gauge.
type Gauge struct {
	reg *Registry
	s   *series
}

// Name returns the metric name.
func (g *Gauge) Name() string { return g.s.name }

// Set replaces the value for labels.
func (g *Gauge) Set(v float64, labels Labels) {
	g.reg.record(g.s, v, labels, true)
}
