package parlant

import (
	"encoding/json"
	"time"

	"github.com/curhatin/companion/internal/domain"
)

// CreateSessionParams is the body of a session creation request.
type CreateSessionParams struct {
	AgentID    string `json:"agent_id"`
	CustomerID string `json:"customer_id,omitempty"`
	Title      string `json:"title,omitempty"`
}

// SessionResource is a session as returned by the platform.
type SessionResource struct {
	ID          string `json:"id"`
	AgentID     string `json:"agent_id"`
	CustomerID  string `json:"customer_id"`
	CreationUTC string `json:"creation_utc"`
	Title       string `json:"title"`
}

// CreatedAt parses the creation timestamp. It returns the zero time when the
// platform omitted it or sent something unparseable.
func (s *SessionResource) CreatedAt() time.Time {
	if s.CreationUTC == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s.CreationUTC)
	if err != nil {
		return time.Time{}
	}
	return t
}

// CreateEventParams is the body of an event append request.
type CreateEventParams struct {
	Kind    string `json:"kind"`
	Source  string `json:"source"`
	Message string `json:"message"`
}

// ListEventsParams selects which events a list call returns. Kinds are never
// filtered: asking for specific kinds drops message events on some platform
// versions.
type ListEventsParams struct {
	MinOffset   int64
	WaitForData time.Duration
}

// EventResource is an event as returned by the platform.
type EventResource struct {
	ID          string          `json:"id"`
	Source      string          `json:"source"`
	Kind        string          `json:"kind"`
	Offset      int64           `json:"offset"`
	CreationUTC string          `json:"creation_utc"`
	CreatedAt   string          `json:"createdAt"`
	Data        json.RawMessage `json:"data"`
}

type participant struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
}

// Normalize flattens the event into the widget's shape. Missing or
// unexpectedly typed data fields are left empty.
func (e EventResource) Normalize() domain.Event {
	ev := domain.Event{
		ID:        e.ID,
		Offset:    e.Offset,
		Kind:      e.Kind,
		Source:    e.Source,
		CreatedAt: e.CreationUTC,
	}
	if ev.CreatedAt == "" {
		ev.CreatedAt = e.CreatedAt
	}

	var data map[string]json.RawMessage
	if len(e.Data) == 0 || json.Unmarshal(e.Data, &data) != nil {
		return ev
	}
	ev.Message = rawString(data["message"])
	ev.Status = rawString(data["status"])
	ev.Participant = participantName(data["participant"])
	return ev
}

func rawString(raw json.RawMessage) string {
	var s string
	if len(raw) == 0 || json.Unmarshal(raw, &s) != nil {
		return ""
	}
	return s
}

func participantName(raw json.RawMessage) string {
	if s := rawString(raw); s != "" {
		return s
	}
	var p participant
	if len(raw) == 0 || json.Unmarshal(raw, &p) != nil {
		return ""
	}
	if p.DisplayName != "" {
		return p.DisplayName
	}
	return p.ID
}
