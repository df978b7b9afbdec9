package scheduler

import (
	"context"
	"time"

	"leaddesk_backend/internal/notification/outbox"
	"leaddesk_backend/platform/logger"
)

const (
	outboxPollInterval = 2 * time.Second
	outboxBatchSize    = 50
)

// NotificationOutboxDispatcher moves due outbox records onto the task queue.
type NotificationOutboxDispatcher struct {
	enqueuer OutboxEnqueuer
	repo     outbox.Store
	log      *logger.Logger
	interval time.Duration
}

func NewNotificationOutboxDispatcher(repo outbox.Store, enqueuer OutboxEnqueuer, log *logger.Logger) *NotificationOutboxDispatcher {
	return &NotificationOutboxDispatcher{
		enqueuer: enqueuer,
		repo:     repo,
		log:      log,
		interval: outboxPollInterval,
	}
}

func (d *NotificationOutboxDispatcher) Run(ctx context.Context) error {
	if d == nil || d.enqueuer == nil || d.repo == nil {
		return nil
	}

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		if _, err := d.dispatchDue(ctx); err != nil && d.log != nil {
			d.log.Warn("outbox claim failed", "error", err)
		}
	}
}

// dispatchDue claims one batch and reports how many records were enqueued.
// Records that cannot be enqueued go back to pending.
func (d *NotificationOutboxDispatcher) dispatchDue(ctx context.Context) (int, error) {
	records, err := d.repo.ClaimPending(ctx, outboxBatchSize)
	if err != nil {
		return 0, err
	}

	enqueued := 0
	for _, rec := range records {
		err := d.enqueuer.EnqueueNotificationOutboxDue(ctx, NotificationOutboxDuePayload{
			OutboxID: rec.ID.String(),
			AgentID:  rec.AgentID.String(),
		}, rec.RunAt)
		if err != nil {
			msg := err.Error()
			_ = d.repo.MarkPending(ctx, rec.ID, &msg)
			continue
		}
		enqueued++
	}
	return enqueued, nil
}
