package llmclient

import "context"

// Chat roles accepted in Message.Role.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one turn of a chat-style history.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request is a single text-generation call.
type Request struct {
	Prompt      string
	System      string
	History     []Message
	Temperature *float32
	// JSON asks the backend for a JSON-only response when it supports it.
	JSON bool
	// Schema is honoured by backends with native structured output (Gemini).
	Schema *Schema
}

// LLMClient is the capability every backend implements. Cross-cutting concerns
// (rate limiting, logging, circuit breaking, metrics) are applied as middleware.
type LLMClient interface {
	Name() string
	Close() error
	CountTokens(text string) int
	TokenCapacity() int
	Generate(ctx context.Context, req Request) (string, error)
}
