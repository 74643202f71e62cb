package outbox

import (
	"encoding/json"
	"time"
)

// PayloadEnvelope is the stable payload structure stored in outbox_events.
type PayloadEnvelope struct {
	Version    int       `json:"version"`
	EventID    string    `json:"eventId"`
	OccurredAt time.Time `json:"occurredAt"`
	// Source names the path that produced the transition (webhook or refresh).
	Source string          `json:"source,omitempty"`
	Data   json.RawMessage `json:"data"`
}
