package notify

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/postflow-ai/postflow/internal/pkg/queue"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEnqueuer struct {
	payloads []queue.NotificationPayload
	err      error
}

func (f *fakeEnqueuer) EnqueueNotification(ctx context.Context, p queue.NotificationPayload) (*asynq.TaskInfo, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.payloads = append(f.payloads, p)
	return &asynq.TaskInfo{ID: "task-1"}, nil
}

func TestQueueNotifierMapsEvent(t *testing.T) {
	q := &fakeEnqueuer{}
	n := NewQueueNotifier(q)

	event := Event{
		Type:         EventPublishFailed,
		UserID:       uuid.New(),
		ScheduleID:   uuid.New(),
		AccountID:    uuid.New(),
		Error:        "publish failed (unauthorized, status 401): token expired",
		FinalAttempt: true,
		OccurredAt:   time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	require.NoError(t, n.Notify(context.Background(), event))

	require.Len(t, q.payloads, 1)
	p := q.payloads[0]
	assert.Equal(t, EventPublishFailed, p.Event)
	assert.Equal(t, event.ScheduleID, p.ScheduleID)
	assert.Equal(t, event.Error, p.Error)
	assert.True(t, p.FinalAttempt)
	assert.Equal(t, event.OccurredAt, p.OccurredAt)
}

func TestQueueNotifierWrapsErrors(t *testing.T) {
	boom := errors.New("redis down")
	n := NewQueueNotifier(&fakeEnqueuer{err: boom})

	err := n.Notify(context.Background(), Event{Type: EventPublished})
	assert.ErrorIs(t, err, boom)
}
