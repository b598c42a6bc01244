package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/postflow-ai/postflow/internal/domain/models"
	"github.com/postflow-ai/postflow/internal/domain/repositories"
	"github.com/postflow-ai/postflow/internal/pkg/logger"
	"github.com/postflow-ai/postflow/internal/pkg/metrics"
	"github.com/postflow-ai/postflow/internal/scheduler/notify"
	"github.com/postflow-ai/postflow/internal/scheduler/publisher"
	"github.com/postflow-ai/postflow/internal/scheduler/retry"
	"github.com/postflow-ai/postflow/internal/scheduler/store"
)

type Result string

const (
	ResultSuccess  Result = "success"
	ResultRetrying Result = "retrying"
	ResultFailed   Result = "failed"
	// ResultSkipped means the account was over its publish rate. No attempt
	// is recorded; the schedule's next run is pushed back by the deferral.
	ResultSkipped Result = "skipped"
)

// Outcome describes one attempt. Err is the publish failure, if any.
type Outcome struct {
	ScheduleID     uuid.UUID
	Result         Result
	ExternalPostID string
	NextRunAt      *time.Time
	Status         string
	ExecutedAt     time.Time
	Duration       time.Duration
	Err            error
}

// Execute runs one attempt for a due schedule: publish, record the attempt,
// then commit the schedule transition. The attempt is appended before the
// transition so the audit trail never runs ahead of the schedule row. The
// returned error is set only when the transition could not be committed.
func (p *Pipeline) Execute(ctx context.Context, s *store.Schedule) (*Outcome, error) {
	l := logger.WithSchedule(s.ID.String(), s.UserID.String())

	if p.limiter != nil && !p.limiter.Allow(ctx, "account:"+s.AccountID.String()) {
		p.rateLimited.Add(1)
		metrics.RecordRateLimitHit("account")
		return p.deferSchedule(ctx, s), nil
	}

	began := time.Now()
	executedAt := p.now().UTC()
	postID, platform, publishErr := p.publish(ctx, s)
	elapsed := time.Since(began)

	out := &Outcome{
		ScheduleID: s.ID,
		ExecutedAt: executedAt,
		Duration:   elapsed,
		Err:        publishErr,
	}

	attempt := &models.ExecutionAttempt{
		ScheduleID:      s.ID,
		AccountID:       s.AccountID,
		ContentID:       s.ContentID,
		UserID:          s.UserID,
		RetryCount:      s.RetryCount,
		ExecutedAt:      executedAt,
		ExecutionTimeMs: elapsed.Milliseconds(),
	}
	transition := store.Transition{LastRunAt: executedAt}

	if publishErr == nil {
		out.Result = ResultSuccess
		out.ExternalPostID = postID
		attempt.Status = models.AttemptStatusSuccess
		attempt.ExternalPostID = &postID

		transition.Succeeded = true
		transition.Status = models.ScheduleStatusActive
		next, err := p.calc.Following(s.Spec(), executedAt)
		switch {
		case err != nil:
			// Published, but the rule can no longer produce a run.
			l.Error().Err(err).Msg("Failed to compute next run after publish")
			transition.Status = models.ScheduleStatusError
		case next == nil:
			transition.Status = models.ScheduleStatusCompleted
		default:
			transition.NextRunAt = next
		}
	} else {
		decision := retry.Decision{}
		if retry.ShouldRetryError(publishErr) {
			decision = p.cfg.Retry.OnFailure(s.RetryCount)
		}

		msg := publishErr.Error()
		attempt.ErrorMessage = &msg

		if decision.Retry {
			delay := decision.Delay
			var pe *publisher.Error
			if errors.As(publishErr, &pe) && pe.RetryAfter > delay {
				delay = pe.RetryAfter
			}
			next := executedAt.Add(delay)

			out.Result = ResultRetrying
			attempt.Status = models.AttemptStatusRetrying
			transition.Status = models.ScheduleStatusActive
			transition.NextRunAt = &next
		} else {
			out.Result = ResultFailed
			attempt.Status = models.AttemptStatusFailed
			transition.Status = models.ScheduleStatusError
		}
	}

	out.Status = transition.Status
	out.NextRunAt = transition.NextRunAt
	metrics.RecordPublish(platform, string(out.Result), elapsed)

	if err := p.recorder.Append(ctx, attempt); err != nil {
		// The transition still happens; a missing audit row is better than
		// republishing.
		l.Error().Err(err).Msg("Failed to record execution attempt")
	}

	if err := p.store.Apply(ctx, s.ID, transition); err != nil {
		p.errored.Add(1)
		return out, fmt.Errorf("failed to update schedule %s: %w", s.ID, err)
	}

	switch out.Result {
	case ResultSuccess:
		p.succeeded.Add(1)
		l.Info().
			Str("post_id", postID).
			Str("status", transition.Status).
			Dur("duration", elapsed).
			Msg("Published")
		p.notify(ctx, s, notify.Event{
			Type:           notify.EventPublished,
			ExternalPostID: postID,
			NextRunAt:      transition.NextRunAt,
		})
	case ResultRetrying:
		p.retrying.Add(1)
		l.Warn().
			Err(publishErr).
			Int("attempt", s.RetryCount+1).
			Time("next_run_at", *transition.NextRunAt).
			Msg("Publish failed, retry scheduled")
	case ResultFailed:
		p.failed.Add(1)
		l.Error().
			Err(publishErr).
			Int("attempt", s.RetryCount+1).
			Msg("Publish failed permanently")
		p.notify(ctx, s, notify.Event{
			Type:         notify.EventPublishFailed,
			Error:        publishErr.Error(),
			FinalAttempt: true,
		})
	}

	return out, nil
}

// deferSchedule pushes a rate-limited schedule back. If the update fails the
// schedule simply stays due for the next cycle.
func (p *Pipeline) deferSchedule(ctx context.Context, s *store.Schedule) *Outcome {
	l := logger.WithSchedule(s.ID.String(), s.UserID.String())
	out := &Outcome{ScheduleID: s.ID, Result: ResultSkipped, Status: s.Status, NextRunAt: s.NextRunAt}

	next := p.now().UTC().Add(p.cfg.RateLimitDeferral)
	if err := p.store.Defer(ctx, s.ID, next); err != nil {
		l.Warn().Err(err).Msg("Failed to defer rate-limited schedule")
		return out
	}

	l.Debug().
		Str("account_id", s.AccountID.String()).
		Time("next_run_at", next).
		Msg("Account over publish rate, deferring")
	if s.NextRunAt == nil || s.NextRunAt.Before(next) {
		out.NextRunAt = &next
	}
	return out
}

// publish loads the snapshots and calls the platform, all under the attempt
// timeout. platform is "unknown" when the account could not be loaded.
func (p *Pipeline) publish(ctx context.Context, s *store.Schedule) (postID, platform string, err error) {
	platform = "unknown"

	attemptCtx, cancel := context.WithTimeout(ctx, p.cfg.AttemptTimeout)
	defer cancel()

	account, err := p.snapshots.Account(attemptCtx, s.UserID, s.AccountID)
	if err != nil {
		return "", platform, snapshotError("account", s.AccountID, err)
	}
	platform = account.Platform
	if !account.IsActive {
		return "", platform, retry.Permanent(fmt.Errorf("%w: account %s is disconnected", ErrNotFound, s.AccountID))
	}

	content, err := p.snapshots.Content(attemptCtx, s.UserID, s.ContentID)
	if err != nil {
		return "", platform, snapshotError("content", s.ContentID, err)
	}

	postID, err = p.publisher.Publish(attemptCtx, toAccount(account), toPost(content), proxyFor(account))
	if err != nil {
		if publisher.KindOf(err) == "" && errors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
			err = publisher.NetworkError(context.DeadlineExceeded)
		}
		return "", platform, err
	}
	return postID, platform, nil
}

func snapshotError(kind string, id uuid.UUID, err error) error {
	if errors.Is(err, repositories.ErrNotFound) {
		return retry.Permanent(fmt.Errorf("%w: %s %s", ErrNotFound, kind, id))
	}
	return fmt.Errorf("failed to load %s %s: %w", kind, id, err)
}

func (p *Pipeline) notify(ctx context.Context, s *store.Schedule, event notify.Event) {
	event.UserID = s.UserID
	event.ScheduleID = s.ID
	event.AccountID = s.AccountID
	event.OccurredAt = p.now().UTC()

	if err := p.notifier.Notify(ctx, event); err != nil {
		l := logger.WithSchedule(s.ID.String(), s.UserID.String())
		l.Warn().
			Err(err).
			Str("event", event.Type).
			Msg("Failed to send notification")
	}
}

func toAccount(a *models.SocialAccount) publisher.Account {
	return publisher.Account{
		ID:          a.ID,
		Platform:    a.Platform,
		ExternalID:  a.ExternalAccountID,
		Username:    a.Username,
		AccessToken: a.AccessToken,
	}
}

func toPost(c *models.Content) publisher.Post {
	return publisher.Post{
		ContentID: c.ID,
		Caption:   c.Caption,
		MediaType: c.MediaType,
		MediaKeys: []string(c.MediaKeys),
	}
}

func proxyFor(a *models.SocialAccount) *publisher.Proxy {
	if a.ProxyURL == nil || *a.ProxyURL == "" {
		return nil
	}
	return &publisher.Proxy{URL: *a.ProxyURL}
}
