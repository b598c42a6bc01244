package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/postflow-ai/postflow/internal/pkg/config"
	"github.com/postflow-ai/postflow/internal/pkg/database/dbtest"
	"github.com/postflow-ai/postflow/internal/scheduler/pipeline"
	"github.com/postflow-ai/postflow/internal/scheduler/recorder"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubEngine struct{}

func (stubEngine) TriggerNow(context.Context, uuid.UUID) (*pipeline.TriggerResult, error) {
	return nil, pipeline.ErrScheduleNotFound
}

func (stubEngine) List(context.Context, recorder.ListFilter) (*recorder.Page, error) {
	return &recorder.Page{}, nil
}

func (stubEngine) StatsFor(context.Context, uuid.UUID, string) (*recorder.Stats, error) {
	return &recorder.Stats{}, nil
}

func testConfig(rateLimit int) *config.Config {
	return &config.Config{
		App:    config.AppConfig{Name: "postflow", FrontendURL: "http://localhost:3000"},
		Server: config.ServerConfig{Host: "127.0.0.1", Port: 0, RateLimit: rateLimit},
	}
}

func TestServerRoutes(t *testing.T) {
	teapot := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	srv := NewServer(testConfig(0), Dependencies{
		DB:               dbtest.Open(t),
		Trigger:          stubEngine{},
		Attempts:         stubEngine{},
		SchedulerMetrics: teapot,
	})

	cases := []struct {
		method string
		target string
		code   int
	}{
		{http.MethodGet, "/health", http.StatusOK},
		{http.MethodGet, "/health/live", http.StatusOK},
		{http.MethodGet, "/health/ready", http.StatusOK},
		{http.MethodGet, "/metrics", http.StatusOK},
		{http.MethodGet, "/scheduler/metrics", http.StatusTeapot},
		{http.MethodPost, "/api/v1/schedules/" + uuid.NewString() + "/execute", http.StatusNotFound},
		{http.MethodGet, "/api/v1/executions", http.StatusOK},
		{http.MethodGet, "/api/v1/executions/stats?user_id=" + uuid.NewString(), http.StatusOK},
		{http.MethodGet, "/api/v1/schedules", http.StatusNotFound},
	}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		srv.Router().ServeHTTP(rec, httptest.NewRequest(tc.method, tc.target, nil))
		assert.Equal(t, tc.code, rec.Code, "%s %s", tc.method, tc.target)
	}
}

func TestHealthReportsChecks(t *testing.T) {
	srv := NewServer(testConfig(0), Dependencies{DB: dbtest.Open(t), Trigger: stubEngine{}, Attempts: stubEngine{}})

	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	var body struct {
		Success   bool   `json:"success"`
		RequestID string `json:"request_id"`
		Data      struct {
			Status  string            `json:"status"`
			Service string            `json:"service"`
			Checks  map[string]string `json:"checks"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.True(t, body.Success)
	assert.Equal(t, rec.Header().Get("X-Request-ID"), body.RequestID)
	assert.Equal(t, "healthy", body.Data.Status)
	assert.Equal(t, "postflow-api", body.Data.Service)
	assert.Equal(t, "ok", body.Data.Checks["database"])
	assert.Equal(t, "not configured", body.Data.Checks["redis"])
}

func TestAPIRateLimit(t *testing.T) {
	srv := NewServer(testConfig(2), Dependencies{Trigger: stubEngine{}, Attempts: stubEngine{}})

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/executions", nil)
		req.RemoteAddr = "10.0.0.1:5555"
		rec := httptest.NewRecorder()
		srv.Router().ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)

	// Other clients and the health routes are unaffected.
	req := httptest.NewRequest(http.MethodGet, "/api/v1/executions", nil)
	req.RemoteAddr = "10.0.0.2:5555"
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
