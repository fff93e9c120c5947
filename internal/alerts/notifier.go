package alerts

import (
	"context"
	"time"
)

// EventKind distinguishes trigger from resolve edges.
type EventKind string

const (
	EventFired    EventKind = "fired"
	EventResolved EventKind = "resolved"
)

// Event is emitted on every state change of an alert.
type Event struct {
	Kind  EventKind `json:"kind"`
	Alert Alert     `json:"alert"`
	Value float64   `json:"value"`
	At    time.Time `json:"at"`
}

// Notifier delivers alert events. Notify must not block indefinitely and
// reports failures through its own logging.
type Notifier interface {
	Notify(ctx context.Context, ev Event)
}

// NotifierFunc adapts a function to the Notifier interface.
type NotifierFunc func(ctx context.Context, ev Event)

// Notify calls f(ctx, ev).
func (f NotifierFunc) Notify(ctx context.Context, ev Event) { f(ctx, ev) }
