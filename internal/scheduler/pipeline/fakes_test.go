package pipeline

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/postflow-ai/postflow/internal/domain/models"
	"github.com/postflow-ai/postflow/internal/domain/repositories"
	"github.com/postflow-ai/postflow/internal/scheduler/notify"
	"github.com/postflow-ai/postflow/internal/scheduler/publisher"
	"github.com/postflow-ai/postflow/internal/scheduler/store"
)

// journal records side effects in order across fakes.
type journal struct {
	mu      sync.Mutex
	entries []string
}

func (j *journal) add(e string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries = append(j.entries, e)
}

func (j *journal) list() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]string(nil), j.entries...)
}

type fakeStore struct {
	mu        sync.Mutex
	schedules map[uuid.UUID]*store.Schedule
	applied   []store.Transition
	deferred  []uuid.UUID
	applyErr  error
	journal   *journal
}

func newFakeStore(j *journal, schedules ...*store.Schedule) *fakeStore {
	f := &fakeStore{schedules: make(map[uuid.UUID]*store.Schedule), journal: j}
	for _, s := range schedules {
		f.schedules[s.ID] = s
	}
	return f
}

func (f *fakeStore) GetDue(_ context.Context, now time.Time, limit int) ([]*store.Schedule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var due []*store.Schedule
	for _, s := range f.schedules {
		if s.IsActive() && s.NextRunAt != nil && !s.NextRunAt.After(now) {
			c := *s
			due = append(due, &c)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].NextRunAt.Before(*due[j].NextRunAt) })
	if len(due) > limit {
		due = due[:limit]
	}
	return due, nil
}

func (f *fakeStore) GetByID(_ context.Context, id uuid.UUID) (*store.Schedule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.schedules[id]
	if !ok {
		return nil, store.ErrScheduleNotFound
	}
	c := *s
	return &c, nil
}

func (f *fakeStore) Apply(_ context.Context, id uuid.UUID, t store.Transition) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.applyErr != nil {
		return f.applyErr
	}
	s, ok := f.schedules[id]
	if !ok {
		return store.ErrScheduleNotFound
	}
	f.applied = append(f.applied, t)
	if f.journal != nil {
		f.journal.add("apply:" + id.String())
	}

	last := t.LastRunAt
	s.Status = t.Status
	s.NextRunAt = t.NextRunAt
	s.LastRunAt = &last
	if t.Succeeded {
		s.RunCount++
		s.RetryCount = 0
	} else {
		s.RetryCount++
	}
	return nil
}

func (f *fakeStore) Defer(_ context.Context, id uuid.UUID, nextRun time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.schedules[id]
	if !ok || !s.IsActive() {
		return nil
	}
	if s.NextRunAt == nil || s.NextRunAt.Before(nextRun) {
		next := nextRun
		s.NextRunAt = &next
	}
	f.deferred = append(f.deferred, id)
	return nil
}

func (f *fakeStore) GetActiveWithoutNextRun(context.Context, int) ([]*store.Schedule, error) {
	return nil, nil
}

func (f *fakeStore) Repair(context.Context, uuid.UUID, string, *time.Time) error {
	return nil
}

func (f *fakeStore) get(id uuid.UUID) store.Schedule {
	f.mu.Lock()
	defer f.mu.Unlock()
	return *f.schedules[id]
}

type fakeSnapshots struct {
	accounts   map[uuid.UUID]*models.SocialAccount
	contents   map[uuid.UUID]*models.Content
	accountErr error
	// stall blocks content loads until the context ends.
	stall      bool
}

func (f *fakeSnapshots) Account(_ context.Context, userID, accountID uuid.UUID) (*models.SocialAccount, error) {
	if f.accountErr != nil {
		return nil, f.accountErr
	}
	a, ok := f.accounts[accountID]
	if !ok || a.UserID != userID {
		return nil, repositories.ErrNotFound
	}
	c := *a
	return &c, nil
}

func (f *fakeSnapshots) Content(ctx context.Context, userID, contentID uuid.UUID) (*models.Content, error) {
	if f.stall {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	c, ok := f.contents[contentID]
	if !ok || c.UserID != userID {
		return nil, repositories.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

type publishFunc func(ctx context.Context, account publisher.Account, post publisher.Post, proxy *publisher.Proxy) (string, error)

type fakePublisher struct {
	mu    sync.Mutex
	calls []publisher.Post
	fn    publishFunc
}

func (f *fakePublisher) Publish(ctx context.Context, account publisher.Account, post publisher.Post, proxy *publisher.Proxy) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, post)
	fn := f.fn
	f.mu.Unlock()
	if fn == nil {
		return "post-1", nil
	}
	return fn(ctx, account, post, proxy)
}

func (f *fakePublisher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fakeRecorder struct {
	mu       sync.Mutex
	attempts []models.ExecutionAttempt
	err      error
	journal  *journal
}

func (f *fakeRecorder) Append(_ context.Context, a *models.ExecutionAttempt) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.journal != nil {
		f.journal.add("append:" + a.ScheduleID.String())
	}
	if f.err != nil {
		return f.err
	}
	f.attempts = append(f.attempts, *a)
	return nil
}

func (f *fakeRecorder) all() []models.ExecutionAttempt {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.ExecutionAttempt(nil), f.attempts...)
}

type fakeNotifier struct {
	mu     sync.Mutex
	events []notify.Event
	err    error
}

func (f *fakeNotifier) Notify(_ context.Context, e notify.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, e)
	return f.err
}

func (f *fakeNotifier) all() []notify.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]notify.Event(nil), f.events...)
}

type denyAll struct{}

func (denyAll) Allow(context.Context, string) bool { return false }

var errStorage = errors.New("connection reset by peer")
