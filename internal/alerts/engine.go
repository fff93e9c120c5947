package alerts

import (
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	// DefaultHistoryLimit is the number of entries History returns when
	// called with a non-positive limit.
	DefaultHistoryLimit = 100

	maxHistoryLen = 1000

	// eventQueueLen bounds the events waiting for Run to deliver them.
	eventQueueLen = 256
)

// ErrInvalidSeverity is returned by Create for severities other than info,
// warning and critical.
var ErrInvalidSeverity = errors.New("invalid severity")

// Severity ranks an alert.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Valid reports whether s is a known severity.
func (s Severity) Valid() bool {
	switch s {
	case SeverityInfo, SeverityWarning, SeverityCritical:
		return true
	}
	return false
}

// Alert is a threshold rule. LastTriggered is set while the alert is
// triggered and nil while it is idle.
type Alert struct {
	ID                   string     `json:"id" yaml:"id"`
	Name                 string     `json:"name" yaml:"name"`
	Condition            string     `json:"condition" yaml:"condition"`
	Threshold            float64    `json:"threshold" yaml:"threshold"`
	Severity             Severity   `json:"severity" yaml:"severity"`
	Active               bool       `json:"active" yaml:"active"`
	LastTriggered        *time.Time `json:"last_triggered,omitempty" yaml:"last_triggered,omitempty"`
	NotificationChannels []string   `json:"notification_channels" yaml:"notification_channels"`
}

func (a *Alert) snapshot() Alert {
	cp := *a
	cp.NotificationChannels = slices.Clone(a.NotificationChannels)
	if a.LastTriggered != nil {
		t := *a.LastTriggered
		cp.LastTriggered = &t
	}
	return cp
}

// HistoryEntry records one trigger of an alert. ResolvedAt is nil until the
// alert resolves.
type HistoryEntry struct {
	Alert       Alert      `json:"alert" yaml:"alert"`
	TriggeredAt time.Time  `json:"triggered_at" yaml:"triggered_at"`
	ResolvedAt  *time.Time `json:"resolved_at,omitempty" yaml:"resolved_at,omitempty"`
}

func (h *HistoryEntry) snapshot() HistoryEntry {
	cp := HistoryEntry{Alert: h.Alert.snapshot(), TriggeredAt: h.TriggeredAt}
	if h.ResolvedAt != nil {
		t := *h.ResolvedAt
		cp.ResolvedAt = &t
	}
	return cp
}

// Engine evaluates values against alert thresholds and records trigger and
// resolve edges. Edges are queued for the Notifier, if any, and delivered
// one at a time in the order they happened by Run.
//
// Engine is safe for concurrent use.
type Engine struct {
	mu      sync.Mutex
	alerts  map[string]*Alert
	order   []string
	history []*HistoryEntry

	notifier Notifier
	events   chan Event
	now      func() time.Time
	logger   *zap.Logger
}

// New returns an Engine with no alerts. notifier may be nil.
func New(notifier Notifier, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Engine{
		alerts:   make(map[string]*Alert),
		notifier: notifier,
		now:      time.Now,
		logger:   logger.Named("alerts"),
	}
	if notifier != nil {
		e.events = make(chan Event, eventQueueLen)
	}
	return e
}

// Run hands queued events to the Notifier until ctx is cancelled, passing
// ctx to each Notify call. It returns at once when there is no Notifier.
func (e *Engine) Run(ctx context.Context) {
	if e.events == nil {
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-e.events:
			e.notifier.Notify(ctx, ev)
		}
	}
}

// Create adds an active, idle alert and returns a copy of it.
func (e *Engine) Create(name, condition string, threshold float64, severity Severity, channels []string) (Alert, error) {
	if !severity.Valid() {
		return Alert{}, fmt.Errorf("alerts: %q: severity %q: %w", name, severity, ErrInvalidSeverity)
	}

	a := &Alert{
		ID:                   uuid.NewString(),
		Name:                 name,
		Condition:            condition,
		Threshold:            threshold,
		Severity:             severity,
		Active:               true,
		NotificationChannels: slices.Clone(channels),
	}
	if a.NotificationChannels == nil {
		a.NotificationChannels = []string{}
	}

	e.mu.Lock()
	e.alerts[a.ID] = a
	e.order = append(e.order, a.ID)
	e.mu.Unlock()

	e.logger.Debug("alert created",
		zap.String("id", a.ID),
		zap.String("alert", name),
		zap.Float64("threshold", threshold),
	)
	return a.snapshot(), nil
}

// Check compares value against the alert's threshold and returns whether it
// is strictly greater. An idle alert that exceeds becomes triggered and opens
// a history entry; a triggered alert that no longer exceeds becomes idle and
// closes it. Repeated checks in the same state record nothing.
//
// Unknown and disabled alerts report false. NaN is rejected.
func (e *Engine) Check(id string, value float64) bool {
	if math.IsNaN(value) {
		e.logger.Warn("ignoring NaN alert value", zap.String("id", id))
		return false
	}

	e.mu.Lock()
	a, ok := e.alerts[id]
	if !ok || !a.Active {
		e.mu.Unlock()
		return false
	}

	exceeded := value > a.Threshold
	now := e.now()

	var ev *Event
	switch {
	case exceeded && a.LastTriggered == nil:
		t := now
		a.LastTriggered = &t
		e.history = append(e.history, &HistoryEntry{Alert: a.snapshot(), TriggeredAt: now})
		if len(e.history) > maxHistoryLen {
			e.history = e.history[len(e.history)-maxHistoryLen:]
		}
		ev = &Event{Kind: EventFired, Alert: a.snapshot(), Value: value, At: now}

	case !exceeded && a.LastTriggered != nil:
		a.LastTriggered = nil
		if h := e.openEntryLocked(id); h != nil {
			t := now
			h.ResolvedAt = &t
		}
		ev = &Event{Kind: EventResolved, Alert: a.snapshot(), Value: value, At: now}
	}
	queued := ev != nil && e.enqueueLocked(*ev)
	e.mu.Unlock()

	if ev != nil {
		e.logEdge(*ev, queued)
	}
	return exceeded
}

// enqueueLocked queues ev for Run without blocking. It reports false when
// there is no Notifier or the queue is full.
func (e *Engine) enqueueLocked(ev Event) bool {
	if e.events == nil {
		return false
	}
	select {
	case e.events <- ev:
		return true
	default:
		return false
	}
}

// openEntryLocked returns the most recent unresolved entry for id.
func (e *Engine) openEntryLocked(id string) *HistoryEntry {
	for i := len(e.history) - 1; i >= 0; i-- {
		h := e.history[i]
		if h.Alert.ID == id && h.ResolvedAt == nil {
			return h
		}
	}
	return nil
}

func (e *Engine) logEdge(ev Event, queued bool) {
	fields := []zap.Field{
		zap.String("id", ev.Alert.ID),
		zap.String("alert", ev.Alert.Name),
		zap.Float64("value", ev.Value),
		zap.Float64("threshold", ev.Alert.Threshold),
		zap.String("severity", string(ev.Alert.Severity)),
	}
	if ev.Kind == EventFired {
		e.logger.Warn("alert fired", fields...)
	} else {
		e.logger.Info("alert resolved", fields...)
	}

	if e.events != nil && !queued {
		e.logger.Error("notification queue full, dropping event", fields...)
	}
}

// Active returns every alert currently triggered, in creation order.
// Disabling an alert does not clear its triggered state, so a disabled
// alert that was triggered is still listed.
func (e *Engine) Active() []Alert {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]Alert, 0)
	for _, id := range e.order {
		if a := e.alerts[id]; a.LastTriggered != nil {
			out = append(out, a.snapshot())
		}
	}
	return out
}

// Disable stops evaluation of the alert. It reports false for unknown ids.
func (e *Engine) Disable(id string) bool {
	return e.setActive(id, false)
}

// Enable resumes evaluation of a disabled alert. It reports false for
// unknown ids.
func (e *Engine) Enable(id string) bool {
	return e.setActive(id, true)
}

func (e *Engine) setActive(id string, active bool) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	a, ok := e.alerts[id]
	if !ok {
		return false
	}
	a.Active = active
	return true
}

// Get returns a copy of the alert with id.
func (e *Engine) Get(id string) (Alert, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	a, ok := e.alerts[id]
	if !ok {
		return Alert{}, false
	}
	return a.snapshot(), true
}

// FindByName returns the first alert created with name.
func (e *Engine) FindByName(name string) (Alert, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, id := range e.order {
		if a := e.alerts[id]; a.Name == name {
			return a.snapshot(), true
		}
	}
	return Alert{}, false
}

// List returns copies of all alerts in creation order.
func (e *Engine) List() []Alert {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]Alert, 0, len(e.order))
	for _, id := range e.order {
		out = append(out, e.alerts[id].snapshot())
	}
	return out
}

// History returns the most recent limit entries, oldest first.
func (e *Engine) History(limit int) []HistoryEntry {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	start := max(0, len(e.history)-limit)
	out := make([]HistoryEntry, 0, len(e.history)-start)
	for _, h := range e.history[start:] {
		out = append(out, h.snapshot())
	}
	return out
}
