package amqp

import (
	"encoding/json"
	"time"

	"fintrack/internal/session"
)

// SessionEventMessage is the wire form of a session lifecycle event.
// It never carries credentials.
type SessionEventMessage struct {
	Type      string    `json:"type"`
	Reason    string    `json:"reason,omitempty"`
	RequestID string    `json:"request_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

func NewSessionEventMessage(e session.Event) *SessionEventMessage {
	ts := e.Time
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	return &SessionEventMessage{
		Type:      string(e.Type),
		Reason:    e.Reason,
		RequestID: e.RequestID,
		Timestamp: ts,
	}
}

// Event converts the message back into a session event.
func (m *SessionEventMessage) Event() session.Event {
	return session.Event{
		Type:      session.EventType(m.Type),
		Reason:    m.Reason,
		RequestID: m.RequestID,
		Time:      m.Timestamp,
	}
}

func (m *SessionEventMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func SessionEventMessageFromJSON(data []byte) (*SessionEventMessage, error) {
	var msg SessionEventMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
