package llmclient

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseGroqRateLimitHeaders(t *testing.T) {
	h := http.Header{}
	h.Set("retry-after", "2")
	h.Set("x-ratelimit-limit-requests", "14400")
	h.Set("x-ratelimit-limit-tokens", "18000")
	h.Set("x-ratelimit-remaining-requests", "14370")
	h.Set("x-ratelimit-remaining-tokens", "17997")
	h.Set("x-ratelimit-reset-requests", "2m59.56s")
	h.Set("x-ratelimit-reset-tokens", "7.66s")

	got, ok := parseGroqRateLimitHeaders(h)
	require.True(t, ok)
	assert.Equal(t, 2, got.RetryAfterSeconds)
	assert.Equal(t, 14400, got.LimitRequests)
	assert.Equal(t, 18000, got.LimitTokens)
	assert.Equal(t, 14370, got.RemainingRequests)
	assert.Equal(t, 17997, got.RemainingTokens)
	assert.Equal(t, 2*time.Minute+59*time.Second+560*time.Millisecond, got.ResetRequests)
	assert.Equal(t, 7*time.Second+660*time.Millisecond, got.ResetTokens)
}

func TestParseGroqRateLimitHeaders_IgnoresGarbage(t *testing.T) {
	h := http.Header{}
	h.Set("retry-after", "soon")
	_, ok := parseGroqRateLimitHeaders(h)
	assert.False(t, ok)
}

func TestRateLimitHeaders_Backoff(t *testing.T) {
	cases := []struct {
		name string
		in   RateLimitHeaders
		want time.Duration
	}{
		{"retry after wins", RateLimitHeaders{RetryAfterSeconds: 3, ResetTokens: time.Minute}, 3 * time.Second},
		{"tokens exhausted", RateLimitHeaders{ResetTokens: 5 * time.Second, RemainingRequests: 4}, 5 * time.Second},
		{"requests exhausted", RateLimitHeaders{RemainingTokens: 10, ResetRequests: 11 * time.Second}, 11 * time.Second},
		{"headroom", RateLimitHeaders{RemainingTokens: 10, RemainingRequests: 1}, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.in.Backoff())
		})
	}
}
