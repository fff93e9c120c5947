package main

import (
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/arosstale/pi-builder-sub003/internal/config"
	"github.com/arosstale/pi-builder-sub003/internal/health"
	"github.com/arosstale/pi-builder-sub003/internal/sampler"
)

func newRunCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Probe, sample and evaluate alerts until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(*configPath, true)
			if err != nil {
				return err
			}
			defer a.logger.Sync() //nolint:errcheck

			ctx := cmd.Context()
			cfg := a.cfg
			a.logger.Info("pi-monitor starting",
				zap.String("config", *configPath),
				zap.Int("dependencies", len(cfg.Dependencies)),
				zap.Int("rules", len(cfg.Alerts.Rules)),
				zap.Duration("probe_interval", cfg.Probe.Interval),
			)

			reportProcess := a.monitor.Health.RegisterCheck("process")
			go a.sampler.Run(ctx, cfg.Sampler.Interval, func(s sampler.Sample) {
				a.monitor.RecordSystem(s)
				reportProcess(health.StatusHealthy, map[string]any{
					"cpu_percent":  s.CPUPercent,
					"memory_bytes": s.MemoryBytes,
				})
			})
			go a.monitor.Alerts.Run(ctx)
			go a.monitor.Health.Poll(ctx, cfg.Probe.Interval)
			go a.monitor.RunEvaluation(ctx, cfg.Alerts.EvaluationInterval)

			if *configPath != "" {
				go func() {
					if err := config.Watch(ctx, *configPath, a.logger, a.reload); err != nil {
						a.logger.Error("config watcher stopped", zap.Error(err))
					}
				}()
			}

			t := time.NewTicker(cfg.Report.Interval)
			defer t.Stop()
			for {
				select {
				case <-ctx.Done():
					a.logger.Info("pi-monitor shutting down")
					return nil
				case <-t.C:
					a.tick()
				}
			}
		},
	}
}

// tick logs a report summary and refreshes the textfile, if configured.
func (a *app) tick() {
	rep := a.monitor.GenerateReport()
	fields := []zap.Field{
		zap.String("overall", string(rep.Health.Overall)),
		zap.Int("checks", len(rep.Health.Checks)),
		zap.Int("dependencies", len(rep.Health.Dependencies)),
		zap.Int("active_alerts", len(rep.ActiveAlerts)),
	}
	if st := rep.RecentMetrics.Requests; st != nil {
		fields = append(fields, zap.Int("requests", st.Count))
	}
	a.logger.Info("report", fields...)

	if path := a.cfg.Export.Path; path != "" {
		if err := writeTextfile(path, a.monitor, a.cfg.Export.Format); err != nil {
			a.logger.Error("textfile export failed", zap.String("path", path), zap.Error(err))
		}
	}
}
