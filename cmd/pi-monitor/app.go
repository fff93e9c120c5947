package main

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/arosstale/pi-builder-sub003/internal/config"
	"github.com/arosstale/pi-builder-sub003/internal/monitoring"
	"github.com/arosstale/pi-builder-sub003/internal/sampler"
)

// app is the state shared by every subcommand.
type app struct {
	cfg     *config.Config
	logger  *zap.Logger
	level   zap.AtomicLevel
	monitor *monitoring.Monitor
	sampler *sampler.Sampler
}

// newApp loads config and provisions a Monitor from it. Webhook delivery is
// only wired when notify is set; one-shot commands exit before an
// asynchronous delivery could finish.
func newApp(configPath string, notify bool) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	level, err := zap.ParseAtomicLevel(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	zcfg := zap.NewProductionConfig()
	zcfg.Level = level
	zcfg.OutputPaths = []string{"stderr"}
	logger, err := zcfg.Build()
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}

	opts := monitoring.Options{
		Logger:       logger,
		ProbeTimeout: cfg.Probe.Timeout,
	}
	if notify {
		opts.Notifier = monitoring.NewNotifier(cfg.Notifications, logger)
	}
	mon := monitoring.New(opts)
	if err := mon.Apply(cfg); err != nil {
		logger.Warn("some alert rules were not provisioned", zap.Error(err))
	}

	return &app{
		cfg:     cfg,
		logger:  logger,
		level:   level,
		monitor: mon,
		sampler: sampler.New(logger),
	}, nil
}

// sample records process usage. With a positive window it takes a baseline
// first so the CPU figure covers that window.
func (a *app) sample(window time.Duration) {
	if window > 0 {
		if _, err := a.sampler.Sample(); err != nil {
			a.logger.Warn("process sample failed", zap.Error(err))
			return
		}
		time.Sleep(window)
	}
	smp, err := a.sampler.Sample()
	if err != nil {
		a.logger.Warn("process sample failed", zap.Error(err))
		return
	}
	a.monitor.RecordSystem(smp)
}

// reload applies the log level, dependencies and new alert rules of a
// changed config. Intervals, export settings and notification channels
// keep their startup values.
func (a *app) reload(cfg *config.Config) {
	if lvl, err := zap.ParseAtomicLevel(cfg.LogLevel); err == nil {
		a.level.SetLevel(lvl.Level())
	}
	if err := a.monitor.Apply(cfg); err != nil {
		a.logger.Warn("some alert rules were not provisioned", zap.Error(err))
	}
	a.logger.Info("config applied",
		zap.Int("dependencies", len(cfg.Dependencies)),
		zap.Int("rules", len(cfg.Alerts.Rules)),
	)
}
