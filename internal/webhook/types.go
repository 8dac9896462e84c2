package webhook

import (
	"time"

	"github.com/saturnino-fabrica-de-software/presenca/internal/audit"
)

// Config describes the single outbound endpoint. An empty Events list
// forwards every audit event.
type Config struct {
	URL         string
	Secret      string
	Events      []audit.EventType
	MaxAttempts int
	Timeout     time.Duration
}

// Job is one pending delivery.
type Job struct {
	EventType   audit.EventType
	Payload     []byte
	Attempts    int
	NextRetryAt time.Time
	LastError   string
}

type EventPayload struct {
	Type      audit.EventType `json:"type"`
	Data      audit.Event     `json:"data"`
	Timestamp time.Time       `json:"timestamp"`
}
