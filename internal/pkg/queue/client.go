package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/postflow-ai/postflow/internal/pkg/config"
)

const (
	TypeScheduleNotification = "schedule:notification"
)

const (
	QueueCritical = "critical"
	QueueDefault  = "default"
)

type Client struct {
	client *asynq.Client
}

func NewClient(cfg *config.RedisConfig) *Client {
	client := asynq.NewClient(asynq.RedisClientOpt{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	return &Client{client: client}
}

func (c *Client) Close() error {
	return c.client.Close()
}

// NotificationPayload is consumed by the notification service, which owns
// delivery (email, push, webhook).
type NotificationPayload struct {
	Event          string     `json:"event"`
	UserID         uuid.UUID  `json:"user_id"`
	ScheduleID     uuid.UUID  `json:"schedule_id"`
	AccountID      uuid.UUID  `json:"account_id"`
	ExternalPostID string     `json:"external_post_id,omitempty"`
	Error          string     `json:"error,omitempty"`
	FinalAttempt   bool       `json:"final_attempt"`
	NextRunAt      *time.Time `json:"next_run_at,omitempty"`
	OccurredAt     time.Time  `json:"occurred_at"`
}

// EnqueueNotification routes final failures to the critical queue.
func (c *Client) EnqueueNotification(ctx context.Context, payload NotificationPayload) (*asynq.TaskInfo, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}

	queue := QueueDefault
	if payload.FinalAttempt {
		queue = QueueCritical
	}

	task := asynq.NewTask(TypeScheduleNotification, data,
		asynq.Queue(queue),
		asynq.MaxRetry(3),
		asynq.Timeout(30*time.Second),
		asynq.Retention(24*time.Hour),
	)

	return c.client.EnqueueContext(ctx, task)
}
