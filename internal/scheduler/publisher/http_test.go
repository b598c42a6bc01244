package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/postflow-ai/postflow/internal/pkg/httpclient"
	"github.com/postflow-ai/postflow/internal/pkg/media"
	"github.com/postflow-ai/postflow/internal/scheduler/retry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memorySource map[string]string

func (m memorySource) Open(_ context.Context, key string) (*media.Object, error) {
	data, ok := m[key]
	if !ok {
		return nil, media.ErrNotFound
	}
	return &media.Object{
		Key:         key,
		ContentType: "image/png",
		Size:        int64(len(data)),
		Body:        io.NopCloser(strings.NewReader(data)),
	}, nil
}

var testAccount = Account{
	Platform:    "instagram",
	ExternalID:  "ext-1",
	Username:    "bakery",
	AccessToken: "tok-123",
}

func newTestClient(srv *httptest.Server, src media.Source) *HTTPClient {
	return NewHTTPClient(srv.URL, httpclient.NewPooledClient(httpclient.DefaultConfig()), src)
}

func TestPublishUploadsMediaThenCreatesPost(t *testing.T) {
	var uploaded []string

	mux := http.NewServeMux()
	mux.HandleFunc("/accounts/ext-1/media", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok-123", r.Header.Get("Authorization"))
		assert.Equal(t, "image/png", r.Header.Get("Content-Type"))
		body, _ := io.ReadAll(r.Body)
		uploaded = append(uploaded, string(body))
		_ = json.NewEncoder(w).Encode(map[string]string{"media_id": "m-" + string(body)})
	})
	mux.HandleFunc("/accounts/ext-1/posts", func(w http.ResponseWriter, r *http.Request) {
		var req createPostRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "Fresh bread at 9", req.Caption)
		assert.Equal(t, []string{"m-one", "m-two"}, req.MediaIDs)
		_ = json.NewEncoder(w).Encode(map[string]string{"id": "post-123"})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := newTestClient(srv, memorySource{"a.png": "one", "b.png": "two"})
	id, err := c.Publish(context.Background(), testAccount, Post{
		Caption:   "Fresh bread at 9",
		MediaType: "image",
		MediaKeys: []string{"a.png", "b.png"},
	}, nil)

	require.NoError(t, err)
	assert.Equal(t, "post-123", id)
	assert.Equal(t, []string{"one", "two"}, uploaded)
}

func TestPublishClassifiesStatus(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		kind      Kind
		retryable bool
		message   string
	}{
		{"unauthorized", 401, `{"error":{"message":"token expired"}}`, KindUnauthorized, false, "token expired"},
		{"forbidden", 403, `{"message":"not allowed"}`, KindUnauthorized, false, "not allowed"},
		{"bad request", 400, `{"message":"caption too long"}`, KindBadRequest, false, "caption too long"},
		{"rate limited", 429, ``, KindRateLimited, true, "Too Many Requests"},
		{"bad gateway", 502, `upstream down`, KindServerError, true, "upstream down"},
		{"not implemented", 501, ``, KindServerError, false, "Not Implemented"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			}))
			defer srv.Close()

			_, err := newTestClient(srv, memorySource{}).Publish(context.Background(), testAccount, Post{Caption: "hi"}, nil)
			require.Error(t, err)

			var pe *Error
			require.True(t, errors.As(err, &pe))
			assert.Equal(t, tt.kind, pe.Kind)
			assert.Equal(t, tt.status, pe.StatusCode)
			assert.Equal(t, tt.message, pe.Message)
			assert.Equal(t, tt.retryable, retry.ShouldRetryError(err))
		})
	}
}

func TestPublishParsesRetryAfter(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "30")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := newTestClient(srv, memorySource{}).Publish(context.Background(), testAccount, Post{}, nil)

	var pe *Error
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, 30*time.Second, pe.RetryAfter)
}

func TestParseRetryAfter(t *testing.T) {
	now := time.Date(2024, 7, 1, 12, 0, 0, 0, time.UTC)

	tests := map[string]time.Duration{
		"":                               0,
		"120":                            2 * time.Minute,
		"-5":                             0,
		"soon":                           0,
		"Mon, 01 Jul 2024 12:01:30 GMT":  90 * time.Second,
		"Mon, 01 Jul 2024 11:59:00 GMT":  0,
		"Monday, 01-Jul-24 12:00:10 GMT": 10 * time.Second,
	}
	for header, want := range tests {
		assert.Equal(t, want, parseRetryAfter(header, now), header)
	}
}

func TestPublishParsesRetryAfterDate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", time.Now().Add(time.Hour).UTC().Format(http.TimeFormat))
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := newTestClient(srv, memorySource{}).Publish(context.Background(), testAccount, Post{}, nil)

	var pe *Error
	require.True(t, errors.As(err, &pe))
	assert.Greater(t, pe.RetryAfter, 58*time.Minute)
	assert.LessOrEqual(t, pe.RetryAfter, time.Hour)
}

func TestPublishMissingMediaIsPermanent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected request to %s", r.URL.Path)
	}))
	defer srv.Close()

	_, err := newTestClient(srv, memorySource{}).Publish(context.Background(), testAccount, Post{MediaKeys: []string{"gone.png"}}, nil)
	assert.Equal(t, KindBadRequest, KindOf(err))
	assert.ErrorIs(t, err, media.ErrNotFound)
	assert.False(t, retry.ShouldRetryError(err))
}

func TestPublishTimeoutIsRetryableNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := newTestClient(srv, memorySource{}).Publish(ctx, testAccount, Post{Caption: "late"}, nil)
	assert.Equal(t, KindNetworkError, KindOf(err))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.True(t, retry.ShouldRetryError(err))
}

func TestPublishConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()

	_, err := newTestClient(srv, memorySource{}).Publish(context.Background(), testAccount, Post{}, nil)
	assert.Equal(t, KindNetworkError, KindOf(err))
	assert.True(t, retry.ShouldRetryError(err))
}

func TestPublishRejectsEmptyPostID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{}`)
	}))
	defer srv.Close()

	_, err := newTestClient(srv, memorySource{}).Publish(context.Background(), testAccount, Post{}, nil)
	assert.Equal(t, KindServerError, KindOf(err))
}
