package aiengine

import (
	"ultraflow/internal/llmclient"
)

// AskOption customizes a single Ask call.
type AskOption func(*askOptions)

type askOptions struct {
	history     []llmclient.Message
	system      string
	temperature *float32
	json        bool
	schema      *llmclient.Schema
	provider    string
	model       string
}

// WithHistory prepends prior conversation turns.
func WithHistory(msgs []llmclient.Message) AskOption {
	return func(o *askOptions) { o.history = append(o.history, msgs...) }
}

func WithSystem(instruction string) AskOption {
	return func(o *askOptions) { o.system = instruction }
}

func WithTemperature(t float32) AskOption {
	return func(o *askOptions) { o.temperature = &t }
}

// WithJSON requests a JSON-only answer, constrained by schema when the backend supports it.
func WithJSON(schema *llmclient.Schema) AskOption {
	return func(o *askOptions) {
		o.json = true
		o.schema = schema
	}
}

// WithModel routes the call to a specific provider and model instead of the
// engine default. An empty provider keeps the default provider.
func WithModel(provider, model string) AskOption {
	return func(o *askOptions) {
		o.provider = provider
		o.model = model
	}
}
