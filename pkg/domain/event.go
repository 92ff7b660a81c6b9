package domain

// Event is an external stimulus dispatched into a driver. Type doubles as the
// label of the history entry the event produces. The body program receives
// the whole event as its resume input.
type Event struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

// NewEvent builds an event with the given label and payload.
func NewEvent(eventType string, payload any) Event {
	return Event{Type: eventType, Payload: payload}
}
