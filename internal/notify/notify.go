// Package notify delivers best-effort events after a job reaches a
// terminal state. Delivery failures are the caller's to log; nothing
// here ever escalates into a job failure.
package notify

import (
	"context"

	"github.com/rs/zerolog"
)

// EventType distinguishes the notification templates.
type EventType string

const (
	EventReportComplete EventType = "report_complete"
	EventReportFailed   EventType = "report_failed"
	EventRiskAlert      EventType = "risk_alert"
)

// Event is the payload handed to a notifier.
type Event struct {
	Type       EventType
	JobID      string
	UserID     string
	ReportName string
	Severity   string
	Detail     string
}

// Notifier delivers one event. Implementations must be safe for
// concurrent use and should respect ctx deadlines.
type Notifier interface {
	Notify(ctx context.Context, event Event) error
}

// LogNotifier writes events to the structured log. It is the default
// when no delivery channel is configured.
type LogNotifier struct {
	log zerolog.Logger
}

// NewLogNotifier creates a log-only notifier.
func NewLogNotifier(log zerolog.Logger) *LogNotifier {
	return &LogNotifier{log: log}
}

// Notify implements Notifier.
func (n *LogNotifier) Notify(ctx context.Context, event Event) error {
	n.log.Info().
		Str("event", string(event.Type)).
		Str("job_id", event.JobID).
		Str("user_id", event.UserID).
		Str("severity", event.Severity).
		Str("detail", event.Detail).
		Msg("Notification")
	return nil
}

// Multi fans one event out to several notifiers. Each notifier gets the
// event regardless of earlier failures; the first error is returned.
type Multi []Notifier

// Notify implements Notifier.
func (m Multi) Notify(ctx context.Context, event Event) error {
	var first error
	for _, n := range m {
		if err := n.Notify(ctx, event); err != nil && first == nil {
			first = err
		}
	}
	return first
}

var (
	_ Notifier = (*LogNotifier)(nil)
	_ Notifier = (Multi)(nil)
)
