// Package notify delivers workflow events to interested parties. Delivery is
// fire-and-forget: failures are logged and never surfaced to the caller of
// the transition that produced the event.
package notify

import (
	"context"
	"log"
)

// Event is one notification: a case changed state or a task-force report
// was reviewed.
type Event struct {
	Type      string `json:"type"`
	IssueID   string `json:"issue_id"`
	CaseCode  string `json:"case_code"`
	OldStatus string `json:"old_status,omitempty"`
	NewStatus string `json:"new_status,omitempty"`
	ActorID   string `json:"actor_id"`
	Note      string `json:"note,omitempty"`
	// Recipient is the reporter's contact when one was supplied; empty for
	// anonymous reports.
	Recipient string `json:"recipient,omitempty"`
	TS        string `json:"ts"`
}

// Sink accepts events for delivery.
type Sink interface {
	Deliver(ctx context.Context, evt Event) error
}

// LogSink writes events to a logger. It is the default sink when no
// delivery channel is configured.
type LogSink struct {
	Logger *log.Logger
}

func (s LogSink) Deliver(_ context.Context, evt Event) error {
	logger := s.Logger
	if logger == nil {
		logger = log.Default()
	}
	logger.Printf("notify: %s case=%s %s -> %s actor=%s", evt.Type, evt.CaseCode, evt.OldStatus, evt.NewStatus, evt.ActorID)
	return nil
}
