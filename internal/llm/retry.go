package llm

import (
	"context"
	"errors"
	"time"

	"ultraflow/internal/llmclient"
)

// Retry retries Generate up to maxAttempts with exponential backoff starting at
// baseDelay. Permanent errors and context cancellation stop immediately; a
// provider-supplied retry-after replaces the computed delay.
func Retry(maxAttempts int, baseDelay time.Duration) Middleware {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	if baseDelay <= 0 {
		baseDelay = 300 * time.Millisecond
	}
	return func(next llmclient.LLMClient) llmclient.LLMClient {
		return &retrying{passthrough: passthrough{next}, max: maxAttempts, base: baseDelay}
	}
}

type retrying struct {
	passthrough
	max  int
	base time.Duration
}

func (r *retrying) Generate(ctx context.Context, req llmclient.Request) (string, error) {
	var last error
	for i := 0; i < r.max; i++ {
		out, err := r.next.Generate(ctx, req)
		if err == nil {
			return out, nil
		}
		last = err
		if !retryable(err) || i == r.max-1 {
			break
		}
		delay := r.base * time.Duration(1<<i)
		var perr *llmclient.ProviderError
		if errors.As(err, &perr) && perr.RetryAfter > 0 {
			delay = time.Duration(perr.RetryAfter) * time.Second
		}
		if err := sleepCtx(ctx, delay); err != nil {
			return "", err
		}
	}
	return "", last
}

func retryable(err error) bool {
	var pErr *llmclient.PermanentError
	if errors.As(err, &pErr) {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return !errors.Is(err, ErrCircuitOpen)
}
