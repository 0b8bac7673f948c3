package llmclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"
)

const defaultGroqBaseURL = "https://api.groq.com/openai/v1/chat/completions"

// GroqClient calls the Groq Chat Completions API (OpenAI-compatible).
// See: https://console.groq.com/docs/api-reference
type GroqClient struct {
	http     *http.Client
	apiKey   string
	model    string
	baseURL  string
	tokenCap int

	rlMu      sync.RWMutex
	rlLast    RateLimitHeaders
	rlHasLast bool
	rlHandler RateLimitHeaderHandler
}

// NewGroqClient creates a Groq client. An empty baseURL selects the public endpoint.
func NewGroqClient(apiKey, model, baseURL string, tokenCap int) (*GroqClient, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("groq: %w", ErrMissingAPIKey)
	}
	if tokenCap <= 0 {
		tokenCap = 6000
	}
	if strings.TrimSpace(baseURL) == "" {
		baseURL = defaultGroqBaseURL
	}
	return &GroqClient{
		http:     &http.Client{Timeout: 60 * time.Second},
		apiKey:   apiKey,
		model:    model,
		baseURL:  baseURL,
		tokenCap: tokenCap,
	}, nil
}

func (g *GroqClient) Name() string { return "Groq:" + g.model }
func (g *GroqClient) Close() error { return nil }
func (g *GroqClient) CountTokens(text string) int {
	return CountTokens(text)
}
func (g *GroqClient) TokenCapacity() int { return g.tokenCap }

func (g *GroqClient) SetRateLimitHeaderHandler(handler RateLimitHeaderHandler) {
	g.rlMu.Lock()
	defer g.rlMu.Unlock()
	g.rlHandler = handler
}

func (g *GroqClient) LastRateLimitHeaders() (RateLimitHeaders, bool) {
	g.rlMu.RLock()
	defer g.rlMu.RUnlock()
	return g.rlLast, g.rlHasLast
}

type groqChatReq struct {
	Model          string            `json:"model"`
	Messages       []groqMessage     `json:"messages"`
	Temperature    *float32          `json:"temperature,omitempty"`
	ResponseFormat map[string]string `json:"response_format,omitempty"`
}
type groqMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}
type groqChatResp struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Generate sends system + history + prompt as chat messages.
func (g *GroqClient) Generate(ctx context.Context, req Request) (string, error) {
	msgs := make([]groqMessage, 0, len(req.History)+2)
	if s := strings.TrimSpace(req.System); s != "" {
		msgs = append(msgs, groqMessage{Role: RoleSystem, Content: s})
	}
	for _, m := range req.History {
		role := m.Role
		if role != RoleSystem && role != RoleAssistant {
			role = RoleUser
		}
		msgs = append(msgs, groqMessage{Role: role, Content: m.Content})
	}
	msgs = append(msgs, groqMessage{Role: RoleUser, Content: req.Prompt})

	reqBody := groqChatReq{
		Model:       g.model,
		Messages:    msgs,
		Temperature: req.Temperature,
	}
	if req.JSON {
		reqBody.ResponseFormat = map[string]string{"type": "json_object"}
	}
	b, err := json.Marshal(reqBody)
	if err != nil {
		return "", err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL, bytes.NewReader(b))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+g.apiKey)

	resp, err := g.http.Do(httpReq)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	headers, _ := g.captureRateLimitHeaders(resp.Header)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		perr := &ProviderError{
			Provider:   "groq",
			StatusCode: resp.StatusCode,
			Reason:     reasonForStatus(resp.StatusCode),
			RetryAfter: headers.RetryAfterSeconds,
			Err:        fmt.Errorf("unexpected status %s: %s", resp.Status, string(body)),
		}
		if resp.StatusCode == http.StatusBadRequest && strings.Contains(string(body), `"code":"context_length_exceeded"`) {
			return "", NewPermanentError(perr)
		}
		if perr.Reason == ReasonAuth {
			return "", NewPermanentError(perr)
		}
		return "", perr
	}
	var out groqChatResp
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("groq: decode response: %w", err)
	}
	if len(out.Choices) == 0 || strings.TrimSpace(out.Choices[0].Message.Content) == "" {
		return "", ErrEmptyResponse
	}
	return out.Choices[0].Message.Content, nil
}

func (g *GroqClient) captureRateLimitHeaders(h http.Header) (RateLimitHeaders, bool) {
	parsed, ok := parseGroqRateLimitHeaders(h)
	if !ok {
		return RateLimitHeaders{}, false
	}
	g.rlMu.Lock()
	g.rlLast = parsed
	g.rlHasLast = true
	handler := g.rlHandler
	g.rlMu.Unlock()
	if handler != nil {
		handler(parsed)
	}
	return parsed, true
}

func RegisterGroqModels(reg ModelRegistrar, opts ProviderOptions) error {
	tier := normalizeTier(opts.Tier, "free")

	type groqModel struct {
		name   string
		level  ModelLevel
		tokens int
		limit  *RateLimitConfig
	}
	// Limits are hints taken from https://console.groq.com/docs/rate-limits and vary by account.
	models := []groqModel{
		{name: "llama-3.1-8b-instant", level: ModelLevelLow, tokens: 6000, limit: &RateLimitConfig{RPM: 30, RPD: 14_400, TPM: 6_000}},
		{name: "llama-3.3-70b-versatile", level: ModelLevelMiddle, tokens: 6000, limit: &RateLimitConfig{RPM: 30, RPD: 1_000, TPM: 12_000}},
		{name: "llama-3.3-70b-versatile", level: ModelLevelHigh, tokens: 6000, limit: &RateLimitConfig{RPM: 30, RPD: 1_000, TPM: 12_000}},
		{name: "openai/gpt-oss-20b", level: ModelLevelMiddle, tokens: 6000, limit: &RateLimitConfig{RPM: 30, RPD: 1_000, TPM: 8_000}},
		{name: "openai/gpt-oss-120b", level: ModelLevelXHigh, tokens: 6000, limit: &RateLimitConfig{RPM: 30, RPD: 1_000, TPM: 8_000}},
		{name: "qwen/qwen3-32b", level: ModelLevelMiddle, tokens: 6000, limit: &RateLimitConfig{RPM: 60, RPD: 1_000, TPM: 6_000}},
	}

	boostLimitForTier := func(in *RateLimitConfig) *RateLimitConfig {
		if in == nil {
			return nil
		}
		out := *in
		if tier == "developer" {
			out.RPM *= 3
			out.RPD *= 3
			out.TPM *= 3
		}
		return &out
	}

	for _, m := range models {
		modelName := m.name
		tokens := m.tokens
		if err := reg.RegisterModel(ModelRegistration{
			Provider:  "groq",
			Tier:      tier,
			Model:     modelName,
			Level:     m.level,
			MaxTokens: tokens,
			RateLimit: boostLimitForTier(m.limit),
			Factory: func(ctx context.Context, tokenCap int) (LLMClient, error) {
				_ = ctx
				if tokenCap <= 0 {
					tokenCap = tokens
				}
				return NewGroqClient(opts.APIKey, modelName, opts.BaseURL, tokenCap)
			},
		}); err != nil {
			return err
		}
	}
	return nil
}
