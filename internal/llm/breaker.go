package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"ultraflow/internal/llmclient"
)

// ErrCircuitOpen is returned while the breaker rejects calls to a failing backend.
var ErrCircuitOpen = errors.New("llm: circuit breaker open")

// BreakerConfig configures CircuitBreaker.
type BreakerConfig struct {
	Name             string
	MaxRequests      uint32
	Interval         time.Duration
	Timeout          time.Duration
	FailureThreshold float64
	MinRequests      uint32
	Logger           *zap.Logger
}

// DefaultBreakerConfig returns the settings used when none are configured.
func DefaultBreakerConfig(name string) BreakerConfig {
	return BreakerConfig{
		Name:             name,
		MaxRequests:      1,
		Interval:         60 * time.Second,
		Timeout:          30 * time.Second,
		FailureThreshold: 0.6,
		MinRequests:      5,
	}
}

// CircuitBreaker stops calling the backend after repeated transport, server or
// deadline failures. Permanent errors and caller cancellation do not count.
func CircuitBreaker(cfg BreakerConfig) Middleware {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next llmclient.LLMClient) llmclient.LLMClient {
		name := cfg.Name
		if name == "" {
			name = next.Name()
		}
		cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        name,
			MaxRequests: cfg.MaxRequests,
			Interval:    cfg.Interval,
			Timeout:     cfg.Timeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				if counts.Requests < cfg.MinRequests {
					return false
				}
				return float64(counts.TotalFailures)/float64(counts.Requests) >= cfg.FailureThreshold
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				logger.Warn("circuit breaker state changed",
					zap.String("breaker", name),
					zap.String("from", from.String()),
					zap.String("to", to.String()))
			},
			IsSuccessful: breakerSuccess,
		})
		return &breaking{passthrough: passthrough{next}, cb: cb}
	}
}

type breaking struct {
	passthrough
	cb *gobreaker.CircuitBreaker
}

func (b *breaking) Generate(ctx context.Context, req llmclient.Request) (string, error) {
	out, err := b.cb.Execute(func() (any, error) {
		return b.next.Generate(ctx, req)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return "", fmt.Errorf("%w: %s: %v", ErrCircuitOpen, b.cb.Name(), err)
	}
	if err != nil {
		return "", err
	}
	s, _ := out.(string)
	return s, nil
}

func breakerSuccess(err error) bool {
	switch {
	case err == nil:
		return true
	case errors.Is(err, context.DeadlineExceeded):
		return false
	default:
		return !retryable(err)
	}
}
