package monitoring

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"go.uber.org/zap"

	"github.com/arosstale/pi-builder-sub003/internal/metrics"
)

var (
	ErrUnknownAlert  = errors.New("unknown alert")
	ErrUnknownMetric = errors.New("unknown metric")
	ErrUnknownStat   = errors.New("unknown stat")
)

// Stat selects which summary statistic of a metric an alert is checked
// against.
type Stat string

const (
	StatCount Stat = "count"
	StatMin   Stat = "min"
	StatMax   Stat = "max"
	StatAvg   Stat = "avg"
)

// Valid reports whether s is a known statistic.
func (s Stat) Valid() bool {
	switch s {
	case StatCount, StatMin, StatMax, StatAvg:
		return true
	}
	return false
}

func (s Stat) of(st metrics.Stats) float64 {
	switch s {
	case StatCount:
		return float64(st.Count)
	case StatMin:
		return st.Min
	case StatMax:
		return st.Max
	default:
		return st.Avg
	}
}

// Binding ties an alert to a metric statistic so Evaluate can check it.
type Binding struct {
	AlertID string
	Metric  string
	Stat    Stat
}

// BindAlert makes Evaluate check alertID against stat of metric. Binding an
// alert again replaces its previous binding.
func (m *Monitor) BindAlert(alertID, metric string, stat Stat) error {
	if _, ok := m.Alerts.Get(alertID); !ok {
		return fmt.Errorf("monitoring: bind %s: %w", alertID, ErrUnknownAlert)
	}
	if err := m.checkBinding(metric, stat); err != nil {
		return fmt.Errorf("monitoring: bind %s: %w", alertID, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.bindings = slices.DeleteFunc(m.bindings, func(b Binding) bool { return b.AlertID == alertID })
	m.bindings = append(m.bindings, Binding{AlertID: alertID, Metric: metric, Stat: stat})
	return nil
}

func (m *Monitor) checkBinding(metric string, stat Stat) error {
	if _, ok := m.Metrics.Kind(metric); !ok {
		return fmt.Errorf("metric %q: %w", metric, ErrUnknownMetric)
	}
	if !stat.Valid() {
		return fmt.Errorf("stat %q: %w", stat, ErrUnknownStat)
	}
	return nil
}

func (m *Monitor) binding(alertID string) (Binding, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	i := slices.IndexFunc(m.bindings, func(b Binding) bool { return b.AlertID == alertID })
	if i < 0 {
		return Binding{}, false
	}
	return m.bindings[i], true
}

// Bindings returns the current alert bindings.
func (m *Monitor) Bindings() []Binding {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.bindings)
}

// Evaluate checks every bound alert against the current value of its
// statistic and returns how many exceeded their threshold. Alerts whose
// metric has no points yet are skipped.
func (m *Monitor) Evaluate() int {
	exceeded := 0
	for _, b := range m.Bindings() {
		st, ok := m.Metrics.Stats(b.Metric)
		if !ok {
			continue
		}
		if m.Alerts.Check(b.AlertID, b.Stat.of(st)) {
			exceeded++
		}
	}
	return exceeded
}

// RunEvaluation calls Evaluate on every interval until ctx is cancelled.
func (m *Monitor) RunEvaluation(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if n := m.Evaluate(); n > 0 {
				m.logger.Debug("alerts exceeding threshold", zap.Int("count", n))
			}
		}
	}
}
