package publisher

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/postflow-ai/postflow/internal/pkg/httpclient"
	"github.com/postflow-ai/postflow/internal/pkg/media"
)

const maxErrorBody = 4 << 10

// HTTPClient publishes through the platform's REST API: every media item is
// uploaded first, then the post is created referencing the uploaded ids.
type HTTPClient struct {
	baseURL string
	http    *httpclient.PooledClient
	media   media.Source
}

func NewHTTPClient(baseURL string, pool *httpclient.PooledClient, source media.Source) *HTTPClient {
	return &HTTPClient{
		baseURL: baseURL,
		http:    pool,
		media:   source,
	}
}

type uploadResponse struct {
	MediaID string `json:"media_id"`
}

type createPostRequest struct {
	Caption   string   `json:"caption"`
	MediaType string   `json:"media_type"`
	MediaIDs  []string `json:"media_ids,omitempty"`
}

type createPostResponse struct {
	ID string `json:"id"`
}

type errorResponse struct {
	Message string `json:"message"`
	Error   struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (c *HTTPClient) Publish(ctx context.Context, account Account, post Post, proxy *Proxy) (string, error) {
	proxyURL := ""
	if proxy != nil {
		proxyURL = proxy.URL
	}

	mediaIDs := make([]string, 0, len(post.MediaKeys))
	for _, key := range post.MediaKeys {
		id, err := c.upload(ctx, account, key, proxyURL)
		if err != nil {
			return "", err
		}
		mediaIDs = append(mediaIDs, id)
	}

	payload, err := json.Marshal(createPostRequest{
		Caption:   post.Caption,
		MediaType: post.MediaType,
		MediaIDs:  mediaIDs,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal post: %w", err)
	}

	var out createPostResponse
	endpoint := c.endpoint(account, "posts")
	if err := c.send(ctx, account, endpoint, "application/json", bytes.NewReader(payload), int64(len(payload)), proxyURL, &out); err != nil {
		return "", err
	}
	if out.ID == "" {
		return "", &Error{Kind: KindServerError, Message: "response carried no post id"}
	}

	return out.ID, nil
}

func (c *HTTPClient) upload(ctx context.Context, account Account, key, proxyURL string) (string, error) {
	obj, err := c.media.Open(ctx, key)
	if err != nil {
		if errors.Is(err, media.ErrNotFound) {
			return "", &Error{Kind: KindBadRequest, Message: err.Error(), Err: err}
		}
		return "", NetworkError(err)
	}
	defer obj.Body.Close()

	contentType := obj.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	var out uploadResponse
	if err := c.send(ctx, account, c.endpoint(account, "media"), contentType, obj.Body, obj.Size, proxyURL, &out); err != nil {
		return "", err
	}
	if out.MediaID == "" {
		return "", &Error{Kind: KindServerError, Message: "upload response carried no media id"}
	}
	return out.MediaID, nil
}

func (c *HTTPClient) endpoint(account Account, resource string) string {
	return fmt.Sprintf("%s/accounts/%s/%s", c.baseURL, url.PathEscape(account.ExternalID), resource)
}

func (c *HTTPClient) send(ctx context.Context, account Account, endpoint, contentType string, body io.Reader, size int64, proxyURL string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	if size > 0 {
		req.ContentLength = size
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+account.AccessToken)

	resp, err := c.http.DoVia(req, proxyURL)
	if err != nil {
		return NetworkError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusMultipleChoices {
		pe := FromStatus(resp.StatusCode, readErrorMessage(resp))
		pe.RetryAfter = parseRetryAfter(resp.Header.Get("Retry-After"), time.Now())
		return pe
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &Error{Kind: KindServerError, StatusCode: resp.StatusCode, Message: "malformed response body", Err: err}
	}
	return nil
}

func readErrorMessage(resp *http.Response) string {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	var body errorResponse
	if json.Unmarshal(raw, &body) == nil {
		if body.Error.Message != "" {
			return body.Error.Message
		}
		if body.Message != "" {
			return body.Message
		}
	}
	if len(raw) > 0 {
		return string(raw)
	}
	return http.StatusText(resp.StatusCode)
}

// parseRetryAfter accepts delay-seconds or an HTTP date. Dates in the past
// yield zero.
func parseRetryAfter(v string, now time.Time) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	at, err := http.ParseTime(v)
	if err != nil || !at.After(now) {
		return 0
	}
	return at.Sub(now)
}
