package metrics

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectorObserveCycle(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewCollector(func() time.Time { return now })

	c.ObserveCycle(Cycle{Due: 3, Published: 2, Retrying: 1, Duration: 100 * time.Millisecond})
	c.ObserveCycle(Cycle{Due: 1, Errored: 1, Duration: 300 * time.Millisecond})
	c.ObserveCycle(Cycle{Skipped: true})
	c.IncRepaired(2)
	c.IncPurged(50)

	s := c.Snapshot()
	assert.Equal(t, int64(2), s.CyclesTotal)
	assert.Equal(t, int64(1), s.CyclesSkipped)
	assert.Equal(t, int64(2), s.PublishedTotal)
	assert.Equal(t, int64(1), s.RetryingTotal)
	assert.Equal(t, int64(1), s.FailedTotal)
	assert.Equal(t, int64(1), s.LastDue)
	assert.Equal(t, int64(300), s.LastCycleDuration)
	assert.Equal(t, int64(200), s.AvgCycleDuration)
	assert.Equal(t, int64(2), s.RepairedTotal)
	assert.Equal(t, int64(50), s.PurgedTotal)
	require.NotNil(t, s.LastCycleAt)
	assert.Equal(t, now, *s.LastCycleAt)

	c.Reset()
	assert.Zero(t, c.Snapshot().CyclesTotal)
}

func TestExporterHealth(t *testing.T) {
	c := NewCollector(nil)
	e := NewExporter(c)

	rec := httptest.NewRecorder()
	e.Health()(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "standby", body["status"])

	c.SetLeader(true)
	rec = httptest.NewRecorder()
	e.Health()(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])

	rec = httptest.NewRecorder()
	e.Handler()(rec, httptest.NewRequest(http.MethodGet, "/scheduler/metrics", nil))
	var snap Snapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	assert.True(t, snap.IsLeader)
}
