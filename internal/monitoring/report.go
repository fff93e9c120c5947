package monitoring

import (
	"context"
	"time"

	"github.com/arosstale/pi-builder-sub003/internal/alerts"
	"github.com/arosstale/pi-builder-sub003/internal/health"
	"github.com/arosstale/pi-builder-sub003/internal/metrics"
)

// RecentMetrics summarises the request metrics. A nil entry means nothing
// has been recorded yet.
type RecentMetrics struct {
	Requests *metrics.Stats `json:"requests" yaml:"requests"`
	Duration *metrics.Stats `json:"duration" yaml:"duration"`
}

// Report is a point-in-time view across health, alerts and request metrics.
// The three parts are read one after another, not atomically.
type Report struct {
	Health        health.Report  `json:"health" yaml:"health"`
	ActiveAlerts  []alerts.Alert `json:"active_alerts" yaml:"active_alerts"`
	RecentMetrics RecentMetrics  `json:"recent_metrics" yaml:"recent_metrics"`
	Timestamp     time.Time      `json:"timestamp" yaml:"timestamp"`
}

// GenerateReport composes the current health verdict, the triggered alerts
// and request statistics.
func (m *Monitor) GenerateReport() Report {
	return Report{
		Health:       m.Health.Status(),
		ActiveAlerts: m.Alerts.Active(),
		RecentMetrics: RecentMetrics{
			Requests: m.stats(MetricRequestsTotal),
			Duration: m.stats(MetricRequestDuration),
		},
		Timestamp: m.now(),
	}
}

func (m *Monitor) stats(name string) *metrics.Stats {
	st, ok := m.Metrics.Stats(name)
	if !ok {
		return nil
	}
	return &st
}

// CheckDependency probes one registered dependency.
func (m *Monitor) CheckDependency(ctx context.Context, name string) bool {
	return m.Health.CheckDependency(ctx, name)
}
