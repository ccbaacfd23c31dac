package domain

// Event kinds understood by the widget. Other kinds pass through untouched.
const (
	EventKindMessage = "message"
	EventKindStatus  = "status"
)

// Event sources. Other sources are treated opaquely.
const (
	EventSourceCustomer = "customer"
	EventSourceAIAgent  = "ai_agent"
)

// Agent status labels carried by status events.
const (
	StatusReady      = "ready"
	StatusProcessing = "processing"
	StatusTyping     = "typing"
)

// Event is an immutable, offset-ordered record appended to a session.
type Event struct {
	ID          string `json:"id"`
	Offset      int64  `json:"offset"`
	Kind        string `json:"kind"`
	Source      string `json:"source,omitempty"`
	Message     string `json:"message,omitempty"`
	Status      string `json:"status,omitempty"`
	Participant string `json:"participant,omitempty"`
	CreatedAt   string `json:"createdAt,omitempty"`
}

// FromAgent reports whether the event was emitted by the AI agent.
func (e Event) FromAgent() bool {
	return e.Source == EventSourceAIAgent
}

// IsMessage reports whether the event carries a message body.
func (e Event) IsMessage() bool {
	return e.Kind == EventKindMessage
}

// IsStatus reports whether the event carries a status label.
func (e Event) IsStatus() bool {
	return e.Kind == EventKindStatus
}

// IsBusyStatus reports whether a status event means the agent is still working.
func (e Event) IsBusyStatus() bool {
	return e.IsStatus() && (e.Status == StatusProcessing || e.Status == StatusTyping)
}
