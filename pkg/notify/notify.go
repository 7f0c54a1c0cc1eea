// Package notify announces the outcome of a backup run to external
// systems: an HTTP webhook (for example a Forge deployment hook) and a
// NATS subject.
package notify

import (
	"context"
	"errors"
	"time"
)

// TimeFormat is the layout of Event.Time, "YYYY-MM-DD HH:MM:SS".
const TimeFormat = "2006-01-02 15:04:05"

// Run statuses.
const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
)

// Event is the payload sent after every run.
type Event struct {
	Status  string `json:"status"`
	Command string `json:"command"`
	Time    string `json:"time"`
	RunID   string `json:"run_id,omitempty"`
	Archive string `json:"archive,omitempty"`
	Error   string `json:"error,omitempty"`
}

// NewEvent builds an event for a run that finished at t.
func NewEvent(success bool, command string, t time.Time) Event {
	status := StatusFailed
	if success {
		status = StatusSuccess
	}
	return Event{
		Status:  status,
		Command: command,
		Time:    t.Format(TimeFormat),
	}
}

// Notifier delivers events.
type Notifier interface {
	Notify(ctx context.Context, e Event) error
}

// Multi sends every event to all notifiers and joins their errors.
type Multi []Notifier

// Notify delivers e to each notifier in turn. One failure does not stop
// the others.
func (m Multi) Notify(ctx context.Context, e Event) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Nop discards events.
type Nop struct{}

// Notify does nothing.
func (Nop) Notify(context.Context, Event) error { return nil }
