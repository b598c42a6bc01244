package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/postflow-ai/postflow/internal/api/dto"
	"github.com/postflow-ai/postflow/internal/domain/models"
	"github.com/postflow-ai/postflow/internal/pkg/validator"
	"github.com/postflow-ai/postflow/internal/scheduler/pipeline"
	"github.com/postflow-ai/postflow/internal/scheduler/recorder"
	"github.com/rs/zerolog/log"
)

// Trigger runs a schedule outside the poll loop.
type Trigger interface {
	TriggerNow(ctx context.Context, scheduleID uuid.UUID) (*pipeline.TriggerResult, error)
}

// AttemptReader is the read side of the audit trail.
type AttemptReader interface {
	List(ctx context.Context, f recorder.ListFilter) (*recorder.Page, error)
	StatsFor(ctx context.Context, userID uuid.UUID, period string) (*recorder.Stats, error)
}

type ExecutionHandler struct {
	trigger  Trigger
	attempts AttemptReader
}

func NewExecutionHandler(trigger Trigger, attempts AttemptReader) *ExecutionHandler {
	return &ExecutionHandler{trigger: trigger, attempts: attempts}
}

// Trigger handles POST /schedules/{scheduleID}/execute.
func (h *ExecutionHandler) Trigger(w http.ResponseWriter, r *http.Request) {
	scheduleID, err := uuid.Parse(chi.URLParam(r, "scheduleID"))
	if err != nil {
		dto.BadRequest(w, "invalid schedule ID")
		return
	}

	res, err := h.trigger.TriggerNow(r.Context(), scheduleID)
	if err != nil {
		switch {
		case errors.Is(err, pipeline.ErrScheduleNotFound):
			dto.NotFound(w, "Schedule")
		case errors.Is(err, pipeline.ErrScheduleNotActive):
			dto.Conflict(w, err.Error())
		default:
			log.Error().Err(err).Str("schedule_id", scheduleID.String()).Msg("Manual trigger failed")
			dto.HandleServiceError(w, err)
		}
		return
	}

	resp := dto.TriggerResponse{
		Success:    res.Success,
		ScheduleID: res.ScheduleID.String(),
		ExecutedAt: res.ExecutedAt.Unix(),
		Result:     string(res.Result),
		Error:      res.Error,
	}
	if res.NextRunAt != nil {
		ts := res.NextRunAt.Unix()
		resp.NextRunAt = &ts
	}

	dto.OK(w, resp)
}

// List handles GET /executions. Pages are newest first; pass the returned
// cursor to continue.
func (h *ExecutionHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := dto.ListExecutionsQuery{
		ScheduleID: q.Get("schedule_id"),
		Cursor:     q.Get("cursor"),
	}
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil {
			dto.BadRequest(w, "limit must be a number")
			return
		}
		query.Limit = limit
	}
	if err := validator.Validate(&query); err != nil {
		dto.ValidationErrorResponse(w, err)
		return
	}

	filter := recorder.ListFilter{Limit: query.Limit, Cursor: query.Cursor}
	if query.ScheduleID != "" {
		id := uuid.MustParse(query.ScheduleID)
		filter.ScheduleID = &id
	}

	page, err := h.attempts.List(r.Context(), filter)
	if err != nil {
		if errors.Is(err, recorder.ErrInvalidCursor) {
			dto.InvalidCursor(w)
			return
		}
		log.Error().Err(err).Msg("Failed to list execution attempts")
		dto.InternalServerError(w, "failed to list executions")
		return
	}

	resp := dto.ExecutionPageResponse{
		Attempts: make([]dto.ExecutionAttemptResponse, 0, len(page.Attempts)),
		HasMore:  page.HasMore,
		Cursor:   page.Cursor,
	}
	for _, a := range page.Attempts {
		resp.Attempts = append(resp.Attempts, toAttemptResponse(a))
	}

	dto.OK(w, resp)
}

// Stats handles GET /executions/stats.
func (h *ExecutionHandler) Stats(w http.ResponseWriter, r *http.Request) {
	query := dto.ExecutionStatsQuery{
		UserID: r.URL.Query().Get("user_id"),
		Period: r.URL.Query().Get("period"),
	}
	if query.Period == "" {
		query.Period = "24h"
	}
	if err := validator.Validate(&query); err != nil {
		dto.ValidationErrorResponse(w, err)
		return
	}

	stats, err := h.attempts.StatsFor(r.Context(), uuid.MustParse(query.UserID), query.Period)
	if err != nil {
		if errors.Is(err, recorder.ErrInvalidPeriod) {
			dto.BadRequest(w, err.Error())
			return
		}
		log.Error().Err(err).Msg("Failed to aggregate execution stats")
		dto.InternalServerError(w, "failed to load stats")
		return
	}

	dto.OK(w, stats)
}

func toAttemptResponse(a models.ExecutionAttempt) dto.ExecutionAttemptResponse {
	return dto.ExecutionAttemptResponse{
		ID:              a.ID.String(),
		ScheduleID:      a.ScheduleID.String(),
		AccountID:       a.AccountID.String(),
		ContentID:       a.ContentID.String(),
		Status:          a.Status,
		ExternalPostID:  a.ExternalPostID,
		ErrorMessage:    a.ErrorMessage,
		RetryCount:      a.RetryCount,
		ExecutionTimeMs: a.ExecutionTimeMs,
		ExecutedAt:      a.ExecutedAt.Unix(),
	}
}
