package llm

import (
	"context"
	"time"

	"go.uber.org/zap"

	"ultraflow/internal/llmclient"
)

// WithLogging logs request size, latency and errors. A nil logger disables it.
func WithLogging(logger *zap.Logger) Middleware {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next llmclient.LLMClient) llmclient.LLMClient {
		return &logging{passthrough: passthrough{next}, log: logger.Named("llm")}
	}
}

type logging struct {
	passthrough
	log *zap.Logger
}

func (l *logging) Generate(ctx context.Context, req llmclient.Request) (string, error) {
	start := time.Now()
	fields := []zap.Field{
		zap.String("client", l.next.Name()),
		zap.Int("prompt_bytes", len(req.System)+len(req.Prompt)),
		zap.Int("history", len(req.History)),
		zap.Bool("json", req.JSON),
	}
	if id := RequestIDFrom(ctx); id != "" {
		fields = append(fields, zap.String("request_id", id))
	}
	l.log.Debug("llm request", fields...)

	out, err := l.next.Generate(ctx, req)
	fields = append(fields, zap.Duration("elapsed", time.Since(start)))
	if err != nil {
		l.log.Warn("llm error", append(fields, zap.Error(err))...)
		return out, err
	}
	l.log.Debug("llm response", append(fields, zap.Int("response_bytes", len(out)))...)
	return out, nil
}
