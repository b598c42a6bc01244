package httpclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/postflow-ai/postflow/internal/pkg/circuitbreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func post(t *testing.T, p *PooledClient, url string) (*http.Response, error) {
	t.Helper()
	req, err := http.NewRequestWithContext(context.Background(), http.MethodPost, url, strings.NewReader("{}"))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	return p.DoVia(req, "")
}

func TestServerErrorsTripBreaker(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	cfg := DefaultConfig()
	cfg.Breaker.FailureThreshold = 2
	p := NewPooledClient(cfg)

	for i := 0; i < 2; i++ {
		resp, err := post(t, p, srv.URL)
		require.NoError(t, err)
		resp.Body.Close()
	}

	_, err := post(t, p, srv.URL)
	assert.ErrorIs(t, err, circuitbreaker.ErrCircuitOpen)
}

func TestClientErrorsDoNotTripBreaker(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	cfg := DefaultConfig()
	cfg.Breaker.FailureThreshold = 1
	p := NewPooledClient(cfg)

	for i := 0; i < 3; i++ {
		resp, err := post(t, p, srv.URL)
		require.NoError(t, err)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		resp.Body.Close()
	}
}

func TestInvalidProxyURL(t *testing.T) {
	p := NewPooledClient(DefaultConfig())
	req, err := http.NewRequest(http.MethodGet, "http://example.com", nil)
	require.NoError(t, err)

	_, err = p.DoVia(req, "://bad")
	assert.Error(t, err)
}

func TestClientsAreSharedPerProxy(t *testing.T) {
	p := NewPooledClient(DefaultConfig())

	a, err := p.client("")
	require.NoError(t, err)
	b, err := p.client("")
	require.NoError(t, err)
	c, err := p.client("http://proxy.internal:3128")
	require.NoError(t, err)

	assert.Same(t, a, b)
	assert.NotSame(t, a, c)
}
