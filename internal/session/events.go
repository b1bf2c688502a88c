package session

import (
	"context"
	"time"

	"fintrack/internal/log"
)

// EventType names a session lifecycle transition.
type EventType string

const (
	EventLogin      EventType = "login"
	EventSignup     EventType = "signup"
	EventRefreshed  EventType = "refreshed"
	EventLogout     EventType = "logout"
	EventTerminated EventType = "terminated"
)

// Event is emitted on every lifecycle transition. It never carries tokens.
type Event struct {
	Type      EventType `json:"type"`
	Time      time.Time `json:"time"`
	Reason    string    `json:"reason,omitempty"`
	RequestID string    `json:"request_id,omitempty"`
}

// EventSink receives session events. Publishing is fire-and-forget from
// the session's point of view: errors are logged, never returned.
type EventSink interface {
	Publish(ctx context.Context, e Event) error
}

// LogSink writes events to the structured log.
type LogSink struct {
	Logger *log.Logger
}

func (s LogSink) Publish(ctx context.Context, e Event) error {
	s.Logger.InfoContext(ctx, "Session event", log.FieldEvent, string(e.Type), "reason", e.Reason)
	return nil
}

// MultiSink fans an event out to several sinks and returns the first error.
type MultiSink []EventSink

func (m MultiSink) Publish(ctx context.Context, e Event) error {
	var first error
	for _, s := range m {
		if err := s.Publish(ctx, e); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (c *Client) emit(ctx context.Context, e Event) {
	if c.events == nil {
		return
	}
	if e.Time.IsZero() {
		e.Time = c.now().UTC()
	}
	if e.RequestID == "" {
		e.RequestID = RequestIDFromContext(ctx)
	}
	if err := c.events.Publish(ctx, e); err != nil {
		c.logger.WarnContext(ctx, "Publishing session event failed", log.FieldEvent, string(e.Type), log.FieldError, err)
	}
}
