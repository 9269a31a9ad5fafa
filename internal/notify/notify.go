// Package notify delivers billing events to users and operators.
//
// Delivery is best effort. Callers hand events to a Notifier after their
// work has committed, and a failed delivery never undoes that work.
package notify

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
)

// Kind names an event type
type Kind string

// Event kinds
const (
	KindHourlyBilled     Kind = "hourly_billing.completed"
	KindRenewalSucceeded Kind = "renewal.succeeded"
	KindRenewalFailed    Kind = "renewal.failed"
	KindLowBalance       Kind = "wallet.low_balance"
)

// Event is one notification
type Event struct {
	Kind     Kind           `json:"kind"`
	UserID   uint           `json:"user_id"`
	Username string         `json:"username"`
	Email    string         `json:"email,omitempty"`
	Payload  map[string]any `json:"payload,omitempty"`
	At       time.Time      `json:"at"`
}

// Notifier delivers events
type Notifier interface {
	Notify(ctx context.Context, event Event) error
}

// NotifierFunc adapts a function to Notifier
type NotifierFunc func(ctx context.Context, event Event) error

// Notify calls f
func (f NotifierFunc) Notify(ctx context.Context, event Event) error {
	return f(ctx, event)
}

// Nop discards every event
var Nop Notifier = NotifierFunc(func(context.Context, Event) error { return nil })

// LogNotifier writes events to the log
type LogNotifier struct {
	log *logrus.Entry
}

// NewLogNotifier creates a LogNotifier
func NewLogNotifier(log *logrus.Entry) *LogNotifier {
	return &LogNotifier{log: log}
}

// Notify logs the event at Info
func (n *LogNotifier) Notify(_ context.Context, event Event) error {
	fields := logrus.Fields{
		"kind":     event.Kind,
		"user_id":  event.UserID,
		"username": event.Username,
	}
	for k, v := range event.Payload {
		fields[k] = v
	}
	n.log.WithFields(fields).Info("Notification")
	return nil
}

// Multi delivers each event to every sink and joins their errors
type Multi []Notifier

// Notify fans event out to all sinks, continuing past failures
func (m Multi) Notify(ctx context.Context, event Event) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
