package llm

import (
	"context"
	"time"

	"ultraflow/internal/llmclient"
)

// CallRecorder receives one observation per backend call.
type CallRecorder interface {
	ObserveLLMCall(client string, elapsed time.Duration, err error)
}

// WithMetrics reports every Generate call to rec. A nil recorder disables it.
func WithMetrics(rec CallRecorder) Middleware {
	return func(next llmclient.LLMClient) llmclient.LLMClient {
		if rec == nil {
			return next
		}
		return &metered{passthrough: passthrough{next}, rec: rec}
	}
}

type metered struct {
	passthrough
	rec CallRecorder
}

func (m *metered) Generate(ctx context.Context, req llmclient.Request) (string, error) {
	start := time.Now()
	out, err := m.next.Generate(ctx, req)
	m.rec.ObserveLLMCall(m.next.Name(), time.Since(start), err)
	return out, err
}
