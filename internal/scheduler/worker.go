package scheduler

import (
	"context"
	"fmt"

	"leaddesk_backend/internal/events"
	"leaddesk_backend/platform/config"
	"leaddesk_backend/platform/logger"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

// Worker consumes scheduler tasks and turns them back into domain events.
type Worker struct {
	server *asynq.Server
	mux    *asynq.ServeMux
	bus    events.Bus
	log    *logger.Logger
}

func NewWorker(cfg config.SchedulerConfig, bus events.Bus, log *logger.Logger) (*Worker, error) {
	redisURL := cfg.GetRedisURL()
	if redisURL == "" {
		return nil, fmt.Errorf("redis url not configured")
	}

	opt, err := redisClientOpt(redisURL, cfg.GetRedisTLSInsecure())
	if err != nil {
		return nil, err
	}

	concurrency := cfg.GetAsynqConcurrency()
	if concurrency < 1 {
		concurrency = 10
	}

	server := asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			queueName(cfg): 1,
		},
	})

	w := newWorker(bus, log)
	w.server = server
	return w, nil
}

func newWorker(bus events.Bus, log *logger.Logger) *Worker {
	w := &Worker{
		mux: asynq.NewServeMux(),
		bus: bus,
		log: log,
	}
	w.mux.HandleFunc(TaskNotificationOutboxDue, w.handleNotificationOutboxDue)
	return w
}

func (w *Worker) handleNotificationOutboxDue(ctx context.Context, task *asynq.Task) error {
	if w.bus == nil {
		return nil
	}

	payload, err := ParseNotificationOutboxDuePayload(task)
	if err != nil {
		return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}

	outboxID, err := uuid.Parse(payload.OutboxID)
	if err != nil {
		return fmt.Errorf("%w: invalid outbox id %q", asynq.SkipRetry, payload.OutboxID)
	}

	// Delivery retries are owned by the outbox; asynq should not retry on top.
	if err := w.bus.PublishSync(ctx, events.NotificationOutboxDue{
		BaseEvent: events.NewBaseEvent(),
		OutboxID:  outboxID,
	}); err != nil {
		if w.log != nil {
			w.log.Warn("outbox delivery failed", "outboxId", payload.OutboxID, "error", err)
		}
		return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}
	return nil
}

// Run blocks until ctx is cancelled or the server fails.
func (w *Worker) Run(ctx context.Context) error {
	if w == nil || w.server == nil {
		return nil
	}

	go func() {
		<-ctx.Done()
		w.server.Shutdown()
	}()

	if err := w.server.Run(w.mux); err != nil {
		if w.log != nil {
			w.log.Error("scheduler worker stopped", "error", err)
		}
		return err
	}
	return nil
}
