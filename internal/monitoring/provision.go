package monitoring

import (
	"errors"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/arosstale/pi-builder-sub003/internal/alerts"
	"github.com/arosstale/pi-builder-sub003/internal/config"
	"github.com/arosstale/pi-builder-sub003/internal/health"
)

// Apply provisions dependencies and alert rules from cfg. It is safe to
// call again after a reload:
//   - a dependency is re-registered only when its target changed, so
//     unchanged dependencies keep their probe state;
//   - a dependency no longer in cfg is unregistered;
//   - a rule is created once per name; later calls only update its binding.
//
// A rule whose metric or stat is unknown is not created. Such rules are
// reported together; the rest still apply.
func (m *Monitor) Apply(cfg *config.Config) error {
	m.applyDependencies(cfg.Dependencies)

	var errs []error
	for _, r := range cfg.Alerts.Rules {
		if err := m.applyRule(r); err != nil {
			errs = append(errs, fmt.Errorf("rule %q: %w", r.Name, err))
		}
	}
	return errors.Join(errs...)
}

func (m *Monitor) applyDependencies(deps []config.Dependency) {
	keep := make(map[string]struct{}, len(deps))
	for _, d := range deps {
		keep[d.Name] = struct{}{}
		t := targetOf(d)

		m.mu.Lock()
		prev, ok := m.targets[d.Name]
		m.targets[d.Name] = t
		m.mu.Unlock()

		if ok && prev == t {
			continue
		}
		m.Health.RegisterDependencyWith(t)
		m.logger.Info("dependency provisioned", zap.String("dependency", d.Name), zap.String("url", d.URL))
	}

	m.mu.Lock()
	var removed []string
	for name := range m.targets {
		if _, ok := keep[name]; !ok {
			removed = append(removed, name)
			delete(m.targets, name)
		}
	}
	m.mu.Unlock()

	for _, name := range removed {
		m.Health.UnregisterDependency(name)
		m.logger.Info("dependency removed", zap.String("dependency", name))
	}
}

func (m *Monitor) applyRule(r config.AlertRule) error {
	if r.Metric != "" {
		if err := m.checkBinding(r.Metric, Stat(r.Stat)); err != nil {
			return err
		}
	}

	a, exists := m.Alerts.FindByName(r.Name)
	if !exists {
		severity := alerts.Severity(r.Severity)
		if severity == "" {
			severity = alerts.SeverityWarning
		}
		var err error
		a, err = m.Alerts.Create(r.Name, r.Condition, r.Threshold, severity, r.Channels)
		if err != nil {
			return err
		}
		m.logger.Info("alert provisioned",
			zap.String("alert", r.Name),
			zap.String("id", a.ID),
			zap.String("metric", r.Metric),
			zap.String("stat", r.Stat),
		)
	}

	if r.Metric == "" {
		return nil
	}
	want := Binding{AlertID: a.ID, Metric: r.Metric, Stat: Stat(r.Stat)}
	if b, ok := m.binding(a.ID); ok && b == want {
		return nil
	}
	return m.BindAlert(a.ID, r.Metric, Stat(r.Stat))
}

func targetOf(d config.Dependency) health.Target {
	return health.Target{
		Name: d.Name,
		URL:  d.URL,
		Auth: health.Auth{
			Mode:     d.Auth.Mode,
			Header:   d.Auth.Header,
			Key:      d.Auth.Key(),
			Token:    d.Auth.Token(),
			Username: d.Auth.Username,
			Password: d.Auth.Password(),
			CertFile: d.Auth.CertFile,
			KeyFile:  d.Auth.KeyFile,
			CAFile:   d.Auth.CAFile,
		},
		InsecureSkipVerify: d.TLS.InsecureSkipVerify,
	}
}

// NewNotifier builds the webhook notifier for the configured channels.
func NewNotifier(cfg config.NotificationsConfig, logger *zap.Logger) *alerts.WebhookNotifier {
	channels := make([]alerts.Channel, 0, len(cfg.Channels))
	for _, c := range cfg.Channels {
		channels = append(channels, alerts.Channel{Name: c.Name, Type: c.Type, URL: c.URL()})
	}
	return alerts.NewWebhookNotifier(channels, rate.Limit(cfg.RatePerSecond), cfg.Burst, logger)
}
