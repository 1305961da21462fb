package events

import (
	"encoding/json"
	"time"
)

// ActivityUpdate is what the activity worker broadcasts on Redis and the
// websocket hub forwards to clients.
type ActivityUpdate struct {
	ID         int64           `json:"id"`
	Kind       string          `json:"kind"` // topic the activity came from
	EventID    string          `json:"eventId,omitempty"`
	UserID     string          `json:"userId,omitempty"`
	Message    string          `json:"message"`
	Payload    json.RawMessage `json:"payload"`
	OccurredAt time.Time       `json:"occurredAt"`
}
