package llmclient

import (
	"context"
	"fmt"
	"strings"

	genai "google.golang.org/genai"
)

// GeminiClient is a thin wrapper around the official genai client.
// It only focuses on the API call itself. Cross-cutting concerns
// (rate limiting, logging, circuit breaking) are applied via middleware.
type GeminiClient struct {
	cli      *genai.Client
	model    string
	tokenCap int
}

func NewGeminiClient(ctx context.Context, apiKey, model string, tokenCap int) (*GeminiClient, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("gemini: %w", ErrMissingAPIKey)
	}
	cli, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, err
	}
	if tokenCap <= 0 {
		tokenCap = 12000
	}
	return &GeminiClient{cli: cli, model: model, tokenCap: tokenCap}, nil
}

func (g *GeminiClient) Name() string { return "Gemini:" + g.model }
func (g *GeminiClient) Close() error { return nil }
func (g *GeminiClient) CountTokens(text string) int {
	return CountTokens(text)
}
func (g *GeminiClient) TokenCapacity() int { return g.tokenCap }

// Generate sends the history plus prompt and returns the concatenated text parts
// of the first candidate.
func (g *GeminiClient) Generate(ctx context.Context, req Request) (string, error) {
	system := strings.TrimSpace(req.System)
	contents := make([]*genai.Content, 0, len(req.History)+1)
	for _, m := range req.History {
		switch m.Role {
		case RoleSystem:
			system = strings.TrimSpace(system + "\n" + m.Content)
			continue
		case RoleAssistant:
			contents = append(contents, &genai.Content{Role: "model", Parts: []*genai.Part{{Text: m.Content}}})
		default:
			contents = append(contents, &genai.Content{Role: "user", Parts: []*genai.Part{{Text: m.Content}}})
		}
	}
	contents = append(contents, &genai.Content{Role: "user", Parts: []*genai.Part{{Text: req.Prompt}}})

	cfg := &genai.GenerateContentConfig{}
	if system != "" {
		cfg.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: system}}}
	}
	if req.Temperature != nil {
		temp := *req.Temperature
		cfg.Temperature = &temp
	}
	if req.JSON {
		cfg.ResponseMIMEType = "application/json"
		if req.Schema != nil {
			cfg.ResponseSchema = toGenaiSchema(req.Schema)
		}
	}

	resp, err := g.cli.Models.GenerateContent(ctx, g.model, contents, cfg)
	if err != nil {
		return "", classifyGeminiError(err)
	}
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", ErrEmptyResponse
	}
	var b strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		if p == nil {
			continue
		}
		b.WriteString(p.Text)
	}
	if strings.TrimSpace(b.String()) == "" {
		return "", ErrEmptyResponse
	}
	return b.String(), nil
}

func toGenaiSchema(s *Schema) *genai.Schema {
	if s == nil {
		return nil
	}
	out := &genai.Schema{
		Description: s.Description,
		Required:    s.Required,
		Enum:        s.Enum,
	}
	switch s.Type {
	case TypeObject:
		out.Type = genai.TypeObject
	case TypeArray:
		out.Type = genai.TypeArray
	case TypeInteger:
		out.Type = genai.TypeInteger
	case TypeNumber:
		out.Type = genai.TypeNumber
	case TypeBoolean:
		out.Type = genai.TypeBoolean
	default:
		out.Type = genai.TypeString
	}
	if len(s.Properties) > 0 {
		out.Properties = make(map[string]*genai.Schema, len(s.Properties))
		for k, v := range s.Properties {
			out.Properties[k] = toGenaiSchema(v)
		}
	}
	if s.Items != nil {
		out.Items = toGenaiSchema(s.Items)
	}
	return out
}

// classifyGeminiError maps SDK errors onto ProviderError using the status text
// the API embeds in its messages.
func classifyGeminiError(err error) error {
	msg := err.Error()
	code := 0
	switch {
	case strings.Contains(msg, "RESOURCE_EXHAUSTED") || strings.Contains(msg, "Error 429"):
		code = 429
	case strings.Contains(msg, "PERMISSION_DENIED") || strings.Contains(msg, "Error 403"):
		code = 403
	case strings.Contains(msg, "UNAUTHENTICATED") || strings.Contains(msg, "API key not valid") || strings.Contains(msg, "Error 401"):
		code = 401
	case strings.Contains(msg, "INVALID_ARGUMENT") || strings.Contains(msg, "Error 400"):
		code = 400
	case strings.Contains(msg, "UNAVAILABLE") || strings.Contains(msg, "INTERNAL") || strings.Contains(msg, "Error 500") || strings.Contains(msg, "Error 503"):
		code = 503
	default:
		return err
	}
	perr := &ProviderError{Provider: "gemini", StatusCode: code, Reason: reasonForStatus(code), Err: err}
	if perr.Reason == ReasonAuth || perr.Reason == ReasonBadRequest {
		return NewPermanentError(perr)
	}
	return perr
}

func RegisterGeminiModels(reg ModelRegistrar, opts ProviderOptions) error {
	tier := normalizeTier(opts.Tier, "free")

	type geminiModel struct {
		name   string
		level  ModelLevel
		tokens int
		limit  *RateLimitConfig
	}
	limits := &RateLimitConfig{RPM: 15, RPS: 0.25, Burst: 1}
	if tier == "tier1" {
		limits = &RateLimitConfig{RPM: 60, RPS: 1, Burst: 1}
	}
	models := []geminiModel{
		{name: "gemini-2.5-flash-lite", level: ModelLevelLow, tokens: 12000, limit: limits},
		{name: "gemini-2.5-flash", level: ModelLevelMiddle, tokens: 12000, limit: limits},
		{name: "gemini-2.5-pro", level: ModelLevelHigh, tokens: 12000, limit: limits},
		{name: "gemini-2.5-pro", level: ModelLevelXHigh, tokens: 12000, limit: limits},
	}
	for _, m := range models {
		modelName := m.name
		tokens := m.tokens
		if err := reg.RegisterModel(ModelRegistration{
			Provider:  "gemini",
			Tier:      tier,
			Model:     modelName,
			Level:     m.level,
			MaxTokens: tokens,
			RateLimit: m.limit,
			Factory: func(ctx context.Context, tokenCap int) (LLMClient, error) {
				if tokenCap <= 0 {
					tokenCap = tokens
				}
				return NewGeminiClient(ctx, opts.APIKey, modelName, tokenCap)
			},
		}); err != nil {
			return err
		}
	}
	return nil
}
