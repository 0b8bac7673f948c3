package llmclient

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// RateLimitHeaders holds the throttling signals a provider returned with its last response.
type RateLimitHeaders struct {
	RetryAfterSeconds int

	LimitRequests     int
	LimitTokens       int
	RemainingRequests int
	RemainingTokens   int

	ResetRequests time.Duration
	ResetTokens   time.Duration
}

type RateLimitHeaderHandler func(headers RateLimitHeaders)

// RateLimitHeaderAwareClient is implemented by backends that surface parsed
// rate-limit headers.
type RateLimitHeaderAwareClient interface {
	SetRateLimitHeaderHandler(handler RateLimitHeaderHandler)
	LastRateLimitHeaders() (RateLimitHeaders, bool)
}

// Backoff returns how long a caller should hold off before the next request.
func (h RateLimitHeaders) Backoff() time.Duration {
	switch {
	case h.RetryAfterSeconds > 0:
		return time.Duration(h.RetryAfterSeconds) * time.Second
	case h.RemainingTokens == 0 && h.ResetTokens > 0:
		return h.ResetTokens
	case h.RemainingRequests == 0 && h.ResetRequests > 0:
		return h.ResetRequests
	}
	return 0
}

// parseGroqRateLimitHeaders reads Groq's x-ratelimit-* headers. Request
// counters are per day and token counters are per minute.
func parseGroqRateLimitHeaders(h http.Header) (RateLimitHeaders, bool) {
	var out RateLimitHeaders
	found := false

	ints := []struct {
		key string
		dst *int
	}{
		{"retry-after", &out.RetryAfterSeconds},
		{"x-ratelimit-limit-requests", &out.LimitRequests},
		{"x-ratelimit-limit-tokens", &out.LimitTokens},
		{"x-ratelimit-remaining-requests", &out.RemainingRequests},
		{"x-ratelimit-remaining-tokens", &out.RemainingTokens},
	}
	for _, f := range ints {
		v := strings.TrimSpace(h.Get(f.key))
		if v == "" {
			continue
		}
		if n, err := strconv.Atoi(v); err == nil {
			*f.dst = n
			found = true
		}
	}

	durs := []struct {
		key string
		dst *time.Duration
	}{
		{"x-ratelimit-reset-requests", &out.ResetRequests},
		{"x-ratelimit-reset-tokens", &out.ResetTokens},
	}
	for _, f := range durs {
		v := strings.TrimSpace(h.Get(f.key))
		if v == "" {
			continue
		}
		if d, err := time.ParseDuration(v); err == nil {
			*f.dst = d
			found = true
		}
	}
	return out, found
}
