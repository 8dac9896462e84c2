package audit

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/saturnino-fabrica-de-software/presenca/internal/domain"
)

// EventType defines the type of auditable event
type EventType string

const (
	EventLivenessVerified  EventType = "LIVENESS_VERIFIED"
	EventSequenceVerified  EventType = "SEQUENCE_VERIFIED"
	EventTemplateEnrolled  EventType = "TEMPLATE_ENROLLED"
	EventTemplateRemoved   EventType = "TEMPLATE_REMOVED"
	EventAttendanceChecked EventType = "ATTENDANCE_CHECKED"
)

// Event represents an audit event for LGPD compliance. Descriptors and
// images never enter an event.
type Event struct {
	ID           uuid.UUID         `json:"id"`
	Timestamp    time.Time         `json:"timestamp"`
	RequestID    uuid.UUID         `json:"request_id"`
	EventType    EventType         `json:"event_type"`
	UserID       string            `json:"user_id,omitempty"`
	Model        string            `json:"model,omitempty"`
	Success      bool              `json:"success"`
	Error        string            `json:"error,omitempty"`
	Scores       *domain.Scores    `json:"scores,omitempty"`
	FramesUsed   int               `json:"frames_used,omitempty"`
	ProcessingMs int64             `json:"processing_ms,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	IPAddress    string            `json:"ip_address,omitempty"`
	UserAgent    string            `json:"user_agent,omitempty"`
}

// FromDecision builds the event recording a verification outcome. Success is
// the live verdict.
func FromDecision(eventType EventType, d *domain.VerificationDecision) Event {
	scores := d.Scores
	return Event{
		Timestamp:    d.DecidedAt,
		RequestID:    d.RequestID,
		EventType:    eventType,
		Success:      d.IsLive,
		Scores:       &scores,
		FramesUsed:   d.FramesUsed,
		ProcessingMs: d.ProcessingMs,
	}
}

// Logger defines the interface for audit logging
type Logger interface {
	Log(ctx context.Context, event Event) error
}

// SlogLogger implements Logger using slog
type SlogLogger struct {
	logger *slog.Logger
}

// NewSlogLogger creates a new audit logger using slog
func NewSlogLogger(logger *slog.Logger) *SlogLogger {
	return &SlogLogger{
		logger: logger.With("component", "audit"),
	}
}

// Log records an audit event
func (l *SlogLogger) Log(ctx context.Context, event Event) error {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	eventJSON, err := json.Marshal(event)
	if err != nil {
		l.logger.ErrorContext(ctx, "failed to marshal audit event",
			slog.String("error", err.Error()),
			slog.String("event_type", string(event.EventType)),
		)
		return err
	}

	l.logger.InfoContext(ctx, "audit_event",
		slog.String("event_id", event.ID.String()),
		slog.String("event_type", string(event.EventType)),
		slog.String("request_id", event.RequestID.String()),
		slog.Bool("success", event.Success),
		slog.String("event_data", string(eventJSON)),
	)

	return nil
}

// NoOpLogger is a logger that does nothing (for testing or when audit is disabled)
type NoOpLogger struct{}

// Log does nothing and returns nil
func (l *NoOpLogger) Log(_ context.Context, _ Event) error {
	return nil
}

// MultiLogger forwards every event to each logger in turn.
type MultiLogger struct {
	loggers []Logger
}

// Multi combines loggers; nil entries are skipped.
func Multi(loggers ...Logger) *MultiLogger {
	m := &MultiLogger{}
	for _, l := range loggers {
		if l != nil {
			m.loggers = append(m.loggers, l)
		}
	}
	return m
}

// Log reaches every logger even when one fails; the failures are joined.
func (m *MultiLogger) Log(ctx context.Context, event Event) error {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}

	var errs []error
	for _, l := range m.loggers {
		if err := l.Log(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
