package ticker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	for _, spec := range []string{"@every 1m", "*/5 * * * *", "0 */2 * * * *", "@hourly"} {
		_, err := Parse(spec)
		assert.NoError(t, err, spec)
	}

	_, err := Parse("every minute")
	assert.Error(t, err)
}

func TestCronTickerFires(t *testing.T) {
	tk, err := NewCronTicker("@every 1s")
	require.NoError(t, err)
	defer tk.Stop()

	select {
	case <-tk.C():
	case <-time.After(3 * time.Second):
		t.Fatal("cron ticker did not fire")
	}
}

func TestManualTicker(t *testing.T) {
	m := NewManual()
	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	go m.Tick(at)
	assert.Equal(t, at, <-m.C())
}

func TestIntervalTicker(t *testing.T) {
	tk := Every(10 * time.Millisecond)
	defer tk.Stop()

	select {
	case <-tk.C():
	case <-time.After(time.Second):
		t.Fatal("interval ticker did not fire")
	}
}
