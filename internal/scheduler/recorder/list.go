package recorder

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/postflow-ai/postflow/internal/domain/models"
	"github.com/postflow-ai/postflow/internal/domain/repositories"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

var ErrInvalidCursor = errors.New("invalid cursor")

type ListFilter struct {
	ScheduleID *uuid.UUID
	Limit      int
	Cursor     string
}

type Page struct {
	Attempts []models.ExecutionAttempt `json:"attempts"`
	HasMore  bool                      `json:"has_more"`
	Cursor   string                    `json:"cursor,omitempty"`
}

// List returns attempts newest first. Cursor is the opaque value from a
// previous page.
func (r *Recorder) List(ctx context.Context, f ListFilter) (*Page, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}

	var after *repositories.Keyset
	if f.Cursor != "" {
		k, err := decodeCursor(f.Cursor)
		if err != nil {
			return nil, err
		}
		after = k
	}

	attempts, err := r.repo.FindPage(ctx, f.ScheduleID, after, limit+1)
	if err != nil {
		return nil, fmt.Errorf("failed to list attempts: %w", err)
	}

	page := &Page{Attempts: attempts}
	if len(attempts) > limit {
		page.Attempts = attempts[:limit]
		page.HasMore = true
		last := page.Attempts[limit-1]
		page.Cursor = encodeCursor(last.ExecutedAt, last.ID)
	}
	if page.Attempts == nil {
		page.Attempts = []models.ExecutionAttempt{}
	}

	return page, nil
}

func encodeCursor(at time.Time, id uuid.UUID) string {
	raw := strconv.FormatInt(at.UnixNano(), 10) + "|" + id.String()
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

func decodeCursor(cursor string) (*repositories.Keyset, error) {
	raw, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		return nil, ErrInvalidCursor
	}
	nanos, idPart, ok := strings.Cut(string(raw), "|")
	if !ok {
		return nil, ErrInvalidCursor
	}
	n, err := strconv.ParseInt(nanos, 10, 64)
	if err != nil {
		return nil, ErrInvalidCursor
	}
	id, err := uuid.Parse(idPart)
	if err != nil {
		return nil, ErrInvalidCursor
	}
	return &repositories.Keyset{ExecutedAt: time.Unix(0, n).UTC(), ID: id}, nil
}
