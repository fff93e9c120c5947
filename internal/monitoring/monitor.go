package monitoring

import (
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/arosstale/pi-builder-sub003/internal/alerts"
	"github.com/arosstale/pi-builder-sub003/internal/health"
	"github.com/arosstale/pi-builder-sub003/internal/metrics"
	"github.com/arosstale/pi-builder-sub003/internal/sampler"
)

// Default metric names registered by New.
const (
	MetricRequestsTotal   = "http_requests_total"
	MetricRequestDuration = "http_request_duration_seconds"
	MetricCPUUsage        = "process_cpu_usage_percent"
	MetricMemoryUsage     = "process_memory_usage_bytes"
	MetricAgentExecutions = "agent_executions_total"
	MetricAgentsActive    = "agents_active"
	MetricTasksTotal      = "tasks_total"
	MetricTasksQueued     = "tasks_queued"
	MetricErrorsTotal     = "errors_total"
)

// Options configures New. The zero value is usable.
type Options struct {
	Logger *zap.Logger

	// Prober and ProbeTimeout are passed to the health registry.
	Prober       health.Prober
	ProbeTimeout time.Duration

	// Notifier receives alert state changes once Alerts.Run is started.
	// May be nil.
	Notifier alerts.Notifier
}

// Monitor owns one metric registry, one health registry and one alert
// engine for the life of the process. Build it once at startup and pass it
// to whatever records events.
//
// Monitor is safe for concurrent use.
type Monitor struct {
	Metrics *metrics.Registry
	Health  *health.Registry
	Alerts  *alerts.Engine

	requests       *metrics.Counter
	duration       *metrics.Gauge
	cpu            *metrics.Gauge
	memory         *metrics.Gauge
	agentExecs     *metrics.Counter
	agentsActive   *metrics.Gauge
	tasks          *metrics.Counter
	tasksQueued    *metrics.Gauge
	errorsRecorded *metrics.Counter

	mu       sync.Mutex
	bindings []Binding
	targets  map[string]health.Target

	now    func() time.Time
	logger *zap.Logger
}

// New builds a Monitor with the default metric set registered.
func New(opts Options) *Monitor {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	reg := metrics.NewRegistry(logger)
	m := &Monitor{
		Metrics: reg,
		Health:  health.NewRegistry(opts.Prober, opts.ProbeTimeout, logger),
		Alerts:  alerts.New(opts.Notifier, logger),

		requests:       mustCounter(reg, MetricRequestsTotal, "Total number of HTTP requests"),
		duration:       mustGauge(reg, MetricRequestDuration, "Duration of the last HTTP request in seconds"),
		cpu:            mustGauge(reg, MetricCPUUsage, "Process CPU usage percentage"),
		memory:         mustGauge(reg, MetricMemoryUsage, "Process resident memory in bytes"),
		agentExecs:     mustCounter(reg, MetricAgentExecutions, "Total number of agent executions"),
		agentsActive:   mustGauge(reg, MetricAgentsActive, "Number of active agents"),
		tasks:          mustCounter(reg, MetricTasksTotal, "Total number of tasks processed"),
		tasksQueued:    mustGauge(reg, MetricTasksQueued, "Number of queued tasks"),
		errorsRecorded: mustCounter(reg, MetricErrorsTotal, "Total number of errors"),

		targets: make(map[string]health.Target),
		now:     time.Now,
		logger:  logger.Named("monitor"),
	}
	return m
}

func mustCounter(reg *metrics.Registry, name, help string) *metrics.Counter {
	c, err := reg.CreateCounter(name, help)
	if err != nil {
		panic(err)
	}
	return c
}

func mustGauge(reg *metrics.Registry, name, help string) *metrics.Gauge {
	g, err := reg.CreateGauge(name, help)
	if err != nil {
		panic(err)
	}
	return g
}

// RecordRequest counts one HTTP request and sets the duration gauge for
// its method and path.
func (m *Monitor) RecordRequest(method, path string, statusCode int, d time.Duration) {
	m.requests.Inc(metrics.Labels{
		"method": method,
		"path":   path,
		"status": strconv.Itoa(statusCode),
	})
	m.duration.Set(d.Seconds(), metrics.Labels{"method": method, "path": path})
}

// RecordError counts one error of the given kind.
func (m *Monitor) RecordError(kind string) {
	m.errorsRecorded.Inc(metrics.Labels{"type": kind})
}

// RecordAgentExecution counts one agent run finishing with status.
func (m *Monitor) RecordAgentExecution(agent, status string) {
	m.agentExecs.Inc(metrics.Labels{"agent": agent, "status": status})
}

// SetActiveAgents sets the number of running agents.
func (m *Monitor) SetActiveAgents(n int) {
	m.agentsActive.Set(float64(n), nil)
}

// RecordTask counts one task finishing with status.
func (m *Monitor) RecordTask(status string) {
	m.tasks.Inc(metrics.Labels{"status": status})
}

// SetQueuedTasks sets the task queue depth.
func (m *Monitor) SetQueuedTasks(n int) {
	m.tasksQueued.Set(float64(n), nil)
}

// RecordSystem sets the process CPU and memory gauges.
func (m *Monitor) RecordSystem(s sampler.Sample) {
	m.cpu.Set(s.CPUPercent, nil)
	m.memory.Set(s.MemoryBytes, nil)
}

// ExportMetrics returns the metric registry in exposition format.
func (m *Monitor) ExportMetrics() string {
	return m.Metrics.Export()
}

// HealthStatus returns the aggregate health report.
func (m *Monitor) HealthStatus() health.Report {
	return m.Health.Status()
}
