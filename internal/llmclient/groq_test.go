package llmclient

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGroqClient_GenerateSendsHistoryAndJSONMode(t *testing.T) {
	var got groqChatReq
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("x-ratelimit-remaining-requests", "99")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"{\"ok\":true}"}}]}`))
	}))
	defer srv.Close()

	cli, err := NewGroqClient("secret", "llama-3.3-70b-versatile", srv.URL, 0)
	require.NoError(t, err)

	var seen RateLimitHeaders
	cli.SetRateLimitHeaderHandler(func(h RateLimitHeaders) { seen = h })

	out, err := cli.Generate(t.Context(), Request{
		System:  "be terse",
		History: []Message{{Role: RoleUser, Content: "hi"}, {Role: RoleAssistant, Content: "hello"}},
		Prompt:  "extract",
		JSON:    true,
	})
	require.NoError(t, err)
	assert.Equal(t, `{"ok":true}`, out)

	assert.Equal(t, "llama-3.3-70b-versatile", got.Model)
	require.Len(t, got.Messages, 4)
	assert.Equal(t, RoleSystem, got.Messages[0].Role)
	assert.Equal(t, RoleAssistant, got.Messages[2].Role)
	assert.Equal(t, "extract", got.Messages[3].Content)
	assert.Equal(t, "json_object", got.ResponseFormat["type"])

	assert.Equal(t, 99, seen.RemainingRequests)
	last, ok := cli.LastRateLimitHeaders()
	assert.True(t, ok)
	assert.Equal(t, seen, last)
}

func TestGroqClient_StatusMapping(t *testing.T) {
	cases := []struct {
		name      string
		status    int
		body      string
		reason    FailureReason
		permanent bool
	}{
		{"quota", http.StatusTooManyRequests, `{}`, ReasonQuota, false},
		{"auth", http.StatusUnauthorized, `{}`, ReasonAuth, true},
		{"context length", http.StatusBadRequest, `{"error":{"code":"context_length_exceeded"}}`, ReasonBadRequest, true},
		{"server", http.StatusBadGateway, `oops`, ReasonServer, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("retry-after", "4")
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			cli, err := NewGroqClient("k", "m", srv.URL, 0)
			require.NoError(t, err)
			_, err = cli.Generate(t.Context(), Request{Prompt: "x"})
			require.Error(t, err)

			var perr *ProviderError
			require.True(t, errors.As(err, &perr))
			assert.Equal(t, tc.reason, perr.Reason)
			assert.Equal(t, tc.status, perr.StatusCode)
			assert.Equal(t, 4, perr.RetryAfter)

			var permanent *PermanentError
			assert.Equal(t, tc.permanent, errors.As(err, &permanent))
		})
	}
}

func TestGroqClient_EmptyChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	cli, err := NewGroqClient("k", "m", srv.URL, 0)
	require.NoError(t, err)
	_, err = cli.Generate(t.Context(), Request{Prompt: "x"})
	assert.ErrorIs(t, err, ErrEmptyResponse)
}
