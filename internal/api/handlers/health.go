package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/postflow-ai/postflow/internal/api/dto"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

const pingTimeout = 2 * time.Second

type HealthHandler struct {
	service string
	db      *gorm.DB
	redis   *redis.Client
}

// NewHealthHandler checks db and redis when they are non-nil.
func NewHealthHandler(service string, db *gorm.DB, redis *redis.Client) *HealthHandler {
	return &HealthHandler{service: service, db: db, redis: redis}
}

func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]string)
	healthy := true

	if h.db != nil {
		if err := h.pingDB(r.Context()); err != nil {
			checks["database"] = "error: " + err.Error()
			healthy = false
		} else {
			checks["database"] = "ok"
		}
	} else {
		checks["database"] = "not configured"
	}

	if h.redis != nil {
		if err := h.pingRedis(r.Context()); err != nil {
			checks["redis"] = "error: " + err.Error()
			healthy = false
		} else {
			checks["redis"] = "ok"
		}
	} else {
		checks["redis"] = "not configured"
	}

	status := "healthy"
	statusCode := http.StatusOK
	if !healthy {
		status = "unhealthy"
		statusCode = http.StatusServiceUnavailable
	}

	dto.JSON(w, statusCode, map[string]interface{}{
		"status":  status,
		"service": h.service,
		"checks":  checks,
	})
}

func (h *HealthHandler) Live(w http.ResponseWriter, r *http.Request) {
	dto.OK(w, map[string]string{"status": "alive"})
}

func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	if h.db != nil {
		if err := h.pingDB(r.Context()); err != nil {
			dto.ServiceUnavailable(w, "database not ready: "+err.Error())
			return
		}
	}
	if h.redis != nil {
		if err := h.pingRedis(r.Context()); err != nil {
			dto.ServiceUnavailable(w, "redis not ready: "+err.Error())
			return
		}
	}

	dto.OK(w, map[string]string{"status": "ready"})
}

func (h *HealthHandler) pingDB(ctx context.Context) error {
	sqlDB, err := h.db.DB()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	return sqlDB.PingContext(ctx)
}

func (h *HealthHandler) pingRedis(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	return h.redis.Ping(ctx).Err()
}
