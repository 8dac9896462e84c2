package ws

import (
	"time"

	"github.com/saturnino-fabrica-de-software/presenca/internal/audit"
)

// Event is the frame pushed to subscribers. It carries the audit event as is;
// descriptors never reach it.
type Event struct {
	Type      audit.EventType `json:"type"`
	UserID    string          `json:"user_id,omitempty"`
	Data      audit.Event     `json:"data"`
	Timestamp time.Time       `json:"timestamp"`
}
