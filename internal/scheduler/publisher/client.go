// Package publisher talks to the social platform that receives posts.
package publisher

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/postflow-ai/postflow/internal/scheduler/retry"
)

// Account is the credential snapshot used for one publish.
type Account struct {
	ID          uuid.UUID
	Platform    string
	ExternalID  string
	Username    string
	AccessToken string
}

// Post is the content snapshot used for one publish.
type Post struct {
	ContentID uuid.UUID
	Caption   string
	MediaType string
	MediaKeys []string
}

// Proxy routes the platform traffic of an account through an egress proxy.
type Proxy struct {
	URL string
}

// Client publishes a post and returns the platform's post id.
type Client interface {
	Publish(ctx context.Context, account Account, post Post, proxy *Proxy) (string, error)
}

type Kind string

const (
	KindUnauthorized Kind = "unauthorized"
	KindRateLimited  Kind = "rate_limited"
	KindBadRequest   Kind = "bad_request"
	KindServerError  Kind = "server_error"
	KindNetworkError Kind = "network_error"
)

// Error is a classified publish failure.
type Error struct {
	Kind       Kind
	StatusCode int
	Message    string
	RetryAfter time.Duration
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("publish failed (%s, status %d): %s", e.Kind, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("publish failed (%s): %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Retryable implements retry.Retryable.
func (e *Error) Retryable() bool {
	switch e.Kind {
	case KindUnauthorized, KindBadRequest:
		return false
	case KindServerError:
		if e.StatusCode != 0 {
			return retry.RetryableStatus(e.StatusCode)
		}
		return true
	default:
		return true
	}
}

// FromStatus classifies a non-2xx platform response.
func FromStatus(code int, message string) *Error {
	kind := KindBadRequest
	switch {
	case code == 401 || code == 403:
		kind = KindUnauthorized
	case code == 429:
		kind = KindRateLimited
	case code >= 500:
		kind = KindServerError
	}
	return &Error{Kind: kind, StatusCode: code, Message: message}
}

// NetworkError wraps a transport failure, timeouts included.
func NetworkError(err error) *Error {
	msg := err.Error()
	if errors.Is(err, context.DeadlineExceeded) {
		msg = "request timed out"
	}
	return &Error{Kind: KindNetworkError, Message: msg, Err: err}
}

// KindOf returns the kind of a classified error, or "" for anything else.
func KindOf(err error) Kind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return ""
}
