package recorder

import "strings"

const (
	BucketAuth       = "auth"
	BucketRateLimit  = "rate_limit"
	BucketBadRequest = "bad_request"
	BucketServer     = "server"
	BucketTimeout    = "timeout"
	BucketNetwork    = "network"
	BucketOther      = "other"
)

// Buckets lists every error bucket in match order.
var Buckets = []string{
	BucketAuth,
	BucketRateLimit,
	BucketBadRequest,
	BucketServer,
	BucketTimeout,
	BucketNetwork,
	BucketOther,
}

var timeoutKeywords = []string{"timeout", "timed out", "deadline exceeded"}

var bucketKeywords = []struct {
	bucket   string
	keywords []string
}{
	{BucketAuth, []string{"unauthorized", "forbidden", "status 401", "status 403", "token expired", "invalid token", "authentication"}},
	{BucketRateLimit, []string{"rate_limited", "rate limit", "too many requests", "status 429"}},
	{BucketBadRequest, []string{"bad_request", "bad request", "status 400", "invalid", "validation"}},
	{BucketServer, []string{"server_error", "internal server", "bad gateway", "service unavailable", "status 500", "status 502", "status 503", "status 504"}},
	// timeouts are usually reported by the network layer, so they win
	{BucketTimeout, timeoutKeywords},
	{BucketNetwork, []string{"network", "connection", "dial tcp", "no such host", "eof", "circuit breaker"}},
}

// kindBuckets maps the kind a publish error writes into its message,
// "publish failed (<kind>, status N): ...", to a bucket.
var kindBuckets = map[string]string{
	"unauthorized":  BucketAuth,
	"rate_limited":  BucketRateLimit,
	"bad_request":   BucketBadRequest,
	"server_error":  BucketServer,
	"network_error": BucketNetwork,
}

const publishPrefix = "publish failed ("

// ClassifyError maps a stored error message to a stats bucket. The kind of
// a publish error decides over any keyword in the platform's message text.
func ClassifyError(message string) string {
	msg := strings.ToLower(message)

	if bucket, ok := publishKindBucket(msg); ok {
		if bucket == BucketNetwork && containsAny(msg, timeoutKeywords) {
			return BucketTimeout
		}
		return bucket
	}

	for _, b := range bucketKeywords {
		if containsAny(msg, b.keywords) {
			return b.bucket
		}
	}
	return BucketOther
}

func publishKindBucket(msg string) (string, bool) {
	_, rest, ok := strings.Cut(msg, publishPrefix)
	if !ok {
		return "", false
	}
	end := strings.IndexAny(rest, ",)")
	if end < 0 {
		return "", false
	}
	bucket, ok := kindBuckets[rest[:end]]
	return bucket, ok
}

func containsAny(msg string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(msg, kw) {
			return true
		}
	}
	return false
}
