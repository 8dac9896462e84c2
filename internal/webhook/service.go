package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/saturnino-fabrica-de-software/presenca/internal/audit"
)

const (
	defaultMaxAttempts = 5
	defaultTimeout     = 10 * time.Second
	queueSize          = 256
)

// Notifier posts signed audit events to a configured URL. Failed deliveries
// are retried by Run with exponential backoff.
type Notifier struct {
	cfg    Config
	client *http.Client
	logger *slog.Logger
	queue  chan Job

	mu      sync.Mutex
	retries []Job

	now     func() time.Time
	backoff func(attempt int) time.Duration
	tick    time.Duration
}

var _ audit.Logger = (*Notifier)(nil)

func NewNotifier(cfg Config, logger *slog.Logger) *Notifier {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultMaxAttempts
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}

	return &Notifier{
		cfg: cfg,
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
		logger:  logger.With("component", "webhook"),
		queue:   make(chan Job, queueSize),
		now:     time.Now,
		backoff: func(attempt int) time.Duration { return time.Duration(1<<attempt) * time.Second },
		tick:    time.Second,
	}
}

// Log enqueues the event when it is subscribed. Delivery happens in Run.
func (n *Notifier) Log(ctx context.Context, event audit.Event) error {
	if len(n.cfg.Events) > 0 && !slices.Contains(n.cfg.Events, event.EventType) {
		return nil
	}

	ts := event.Timestamp
	if ts.IsZero() {
		ts = n.now().UTC()
	}

	payload, err := json.Marshal(EventPayload{Type: event.EventType, Data: event, Timestamp: ts})
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	select {
	case n.queue <- Job{EventType: event.EventType, Payload: payload}:
		return nil
	default:
		n.logger.WarnContext(ctx, "webhook queue full, dropping event", "event_type", event.EventType)
		return nil
	}
}

// Send performs a single delivery attempt.
func (n *Notifier) Send(ctx context.Context, job Job) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.cfg.URL, bytes.NewReader(job.Payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Presenca-Signature", Sign(n.cfg.Secret, job.Payload))
	req.Header.Set("X-Presenca-Event", string(job.EventType))
	req.Header.Set("User-Agent", "Presenca-Webhook/1.0")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("post webhook: HTTP %d", resp.StatusCode)
	}

	return nil
}

// Pending reports how many deliveries wait for a retry.
func (n *Notifier) Pending() int {
	n.mu.Lock()
	defer n.mu.Unlock()

	return len(n.retries)
}
