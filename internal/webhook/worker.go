package webhook

import (
	"context"
	"time"
)

// Run delivers queued events and due retries until ctx is done.
func (n *Notifier) Run(ctx context.Context) {
	ticker := time.NewTicker(n.tick)
	defer ticker.Stop()

	n.logger.Info("webhook worker started", "url", n.cfg.URL)

	for {
		select {
		case <-ctx.Done():
			n.logger.Info("webhook worker stopped", "pending", n.Pending())
			return
		case job := <-n.queue:
			n.process(ctx, job)
		case <-ticker.C:
			n.processDue(ctx)
		}
	}
}

func (n *Notifier) process(ctx context.Context, job Job) {
	if err := n.Send(ctx, job); err != nil {
		n.scheduleRetry(job, err.Error())
		return
	}

	n.logger.Debug("webhook delivered",
		"event_type", job.EventType,
		"attempts", job.Attempts+1,
	)
}

func (n *Notifier) processDue(ctx context.Context) {
	now := n.now()

	n.mu.Lock()
	var due []Job
	kept := n.retries[:0]
	for _, job := range n.retries {
		if job.NextRetryAt.After(now) {
			kept = append(kept, job)
		} else {
			due = append(due, job)
		}
	}
	n.retries = kept
	n.mu.Unlock()

	for _, job := range due {
		n.process(ctx, job)
	}
}

func (n *Notifier) scheduleRetry(job Job, errorMsg string) {
	job.Attempts++
	job.LastError = errorMsg

	if job.Attempts >= n.cfg.MaxAttempts {
		n.logger.Warn("webhook delivery failed",
			"event_type", job.EventType,
			"attempts", job.Attempts,
			"error", errorMsg,
		)
		return
	}

	job.NextRetryAt = n.now().Add(n.backoff(job.Attempts))

	n.mu.Lock()
	n.retries = append(n.retries, job)
	n.mu.Unlock()

	n.logger.Info("webhook delivery scheduled for retry",
		"event_type", job.EventType,
		"attempts", job.Attempts,
		"next_retry", job.NextRetryAt,
	)
}
