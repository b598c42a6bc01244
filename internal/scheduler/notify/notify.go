// Package notify hands publish outcomes to the notification service.
package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/postflow-ai/postflow/internal/pkg/queue"
	"github.com/rs/zerolog/log"
)

const (
	EventPublished     = "schedule.published"
	EventPublishFailed = "schedule.publish_failed"
)

type Event struct {
	Type           string
	UserID         uuid.UUID
	ScheduleID     uuid.UUID
	AccountID      uuid.UUID
	ExternalPostID string
	Error          string
	FinalAttempt   bool
	NextRunAt      *time.Time
	OccurredAt     time.Time
}

type Notifier interface {
	Notify(ctx context.Context, event Event) error
}

type Enqueuer interface {
	EnqueueNotification(ctx context.Context, payload queue.NotificationPayload) (*asynq.TaskInfo, error)
}

// QueueNotifier enqueues events for asynchronous delivery.
type QueueNotifier struct {
	queue Enqueuer
}

func NewQueueNotifier(q Enqueuer) *QueueNotifier {
	return &QueueNotifier{queue: q}
}

func (n *QueueNotifier) Notify(ctx context.Context, event Event) error {
	_, err := n.queue.EnqueueNotification(ctx, queue.NotificationPayload{
		Event:          event.Type,
		UserID:         event.UserID,
		ScheduleID:     event.ScheduleID,
		AccountID:      event.AccountID,
		ExternalPostID: event.ExternalPostID,
		Error:          event.Error,
		FinalAttempt:   event.FinalAttempt,
		NextRunAt:      event.NextRunAt,
		OccurredAt:     event.OccurredAt,
	})
	if err != nil {
		return fmt.Errorf("failed to enqueue notification: %w", err)
	}
	return nil
}

// LogNotifier only logs. Used when Redis is disabled.
type LogNotifier struct{}

func (LogNotifier) Notify(ctx context.Context, event Event) error {
	e := log.Info()
	if event.Type == EventPublishFailed {
		e = log.Warn().Str("error", event.Error)
	}
	e.Str("event", event.Type).
		Str("schedule_id", event.ScheduleID.String()).
		Str("user_id", event.UserID.String()).
		Bool("final_attempt", event.FinalAttempt).
		Msg("Schedule notification")
	return nil
}
