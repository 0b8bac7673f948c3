package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"ultraflow/internal/llmclient"
)

// stubClient returns queued results and records call times.
type stubClient struct {
	mu      sync.Mutex
	results []error
	calls   []time.Time
	closed  bool
	handler llmclient.RateLimitHeaderHandler
}

func (s *stubClient) Name() string                { return "stub" }
func (s *stubClient) Close() error                { s.closed = true; return nil }
func (s *stubClient) CountTokens(text string) int { return len(strings.Fields(text)) }
func (s *stubClient) TokenCapacity() int          { return 1024 }
func (s *stubClient) Generate(ctx context.Context, req llmclient.Request) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, time.Now())
	if len(s.results) == 0 {
		return "ok:" + req.Prompt, nil
	}
	err := s.results[0]
	s.results = s.results[1:]
	if err != nil {
		return "", err
	}
	return "ok:" + req.Prompt, nil
}

func (s *stubClient) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

type headerStub struct {
	stubClient
}

func (h *headerStub) SetRateLimitHeaderHandler(fn llmclient.RateLimitHeaderHandler) { h.handler = fn }
func (h *headerStub) LastRateLimitHeaders() (llmclient.RateLimitHeaders, bool) {
	return llmclient.RateLimitHeaders{}, false
}

type orderMW struct {
	passthrough
	tag string
	log *[]string
}

func (o *orderMW) Generate(ctx context.Context, req llmclient.Request) (string, error) {
	*o.log = append(*o.log, o.tag)
	return o.next.Generate(ctx, req)
}

func TestWrap_AppliesLeftToRight(t *testing.T) {
	var seen []string
	mk := func(tag string) Middleware {
		return func(next llmclient.LLMClient) llmclient.LLMClient {
			return &orderMW{passthrough: passthrough{next}, tag: tag, log: &seen}
		}
	}
	cli := Wrap(&stubClient{}, mk("A"), nil, mk("B"))
	_, err := cli.Generate(t.Context(), llmclient.Request{Prompt: "p"})
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B"}, seen)
}

func TestRateLimit_SpacesCalls(t *testing.T) {
	base := &stubClient{}
	cli := Wrap(base, RateLimit(10, 1))

	for i := 0; i < 3; i++ {
		_, err := cli.Generate(t.Context(), llmclient.Request{Prompt: "p"})
		require.NoError(t, err)
	}
	require.Len(t, base.calls, 3)
	assert.GreaterOrEqual(t, base.calls[2].Sub(base.calls[0]), 150*time.Millisecond)

	require.NoError(t, cli.Close())
	assert.True(t, base.closed)
}

func TestRateLimit_CancelledWhileWaiting(t *testing.T) {
	cli := Wrap(&stubClient{}, RateLimit(0.1, 1))
	t.Cleanup(func() { _ = cli.Close() })

	_, err := cli.Generate(t.Context(), llmclient.Request{Prompt: "first"})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(t.Context(), 30*time.Millisecond)
	defer cancel()
	_, err = cli.Generate(ctx, llmclient.Request{Prompt: "second"})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRateLimit_DisabledIsPassthrough(t *testing.T) {
	base := &stubClient{}
	cli := Wrap(base, RateLimit(0, 0), MultiLimit(0, 0, 0))
	for i := 0; i < 5; i++ {
		_, err := cli.Generate(t.Context(), llmclient.Request{Prompt: "p"})
		require.NoError(t, err)
	}
	assert.Equal(t, 5, base.callCount())
}

func TestMultiLimit_TPMChargesPromptSize(t *testing.T) {
	base := &stubClient{}
	// a 10-word prompt drains the whole 10 token bucket
	cli := Wrap(base, MultiLimit(0, 0, 10))
	t.Cleanup(func() { _ = cli.Close() })

	prompt := strings.Repeat("w ", 10)
	start := time.Now()
	_, err := cli.Generate(t.Context(), llmclient.Request{Prompt: prompt})
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 100*time.Millisecond)

	ctx, cancel := context.WithTimeout(t.Context(), 50*time.Millisecond)
	defer cancel()
	_, err = cli.Generate(ctx, llmclient.Request{Prompt: prompt})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestMultiLimit_TPMChargesHistory(t *testing.T) {
	history := []llmclient.Message{
		{Role: llmclient.RoleUser, Content: strings.Repeat("article ", 10)},
		{Role: llmclient.RoleAssistant, Content: strings.Repeat("answer ", 5)},
	}
	small := func(cli llmclient.LLMClient) error {
		ctx, cancel := context.WithTimeout(t.Context(), 50*time.Millisecond)
		defer cancel()
		_, err := cli.Generate(ctx, llmclient.Request{Prompt: "w"})
		return err
	}

	// 5 prompt words leave 15 of 20 tokens for the next call
	plain := Wrap(&stubClient{}, MultiLimit(0, 0, 20))
	t.Cleanup(func() { _ = plain.Close() })
	_, err := plain.Generate(t.Context(), llmclient.Request{Prompt: strings.Repeat("w ", 5)})
	require.NoError(t, err)
	assert.NoError(t, small(plain))

	// the same prompt with 15 words of history drains the bucket
	repair := Wrap(&stubClient{}, MultiLimit(0, 0, 20))
	t.Cleanup(func() { _ = repair.Close() })
	_, err = repair.Generate(t.Context(), llmclient.Request{Prompt: strings.Repeat("w ", 5), History: history})
	require.NoError(t, err)
	assert.ErrorIs(t, small(repair), context.DeadlineExceeded)
}

func TestRetry_RecoversFromTransientError(t *testing.T) {
	base := &stubClient{results: []error{errors.New("flaky"), nil}}
	cli := Wrap(base, Retry(3, time.Millisecond))

	out, err := cli.Generate(t.Context(), llmclient.Request{Prompt: "p"})
	require.NoError(t, err)
	assert.Equal(t, "ok:p", out)
	assert.Equal(t, 2, base.callCount())
}

func TestRetry_StopsOnPermanentError(t *testing.T) {
	perm := llmclient.NewPermanentError(errors.New("bad key"))
	base := &stubClient{results: []error{perm, nil}}
	cli := Wrap(base, Retry(3, time.Millisecond))

	_, err := cli.Generate(t.Context(), llmclient.Request{Prompt: "p"})
	require.Error(t, err)
	var pErr *llmclient.PermanentError
	assert.True(t, errors.As(err, &pErr))
	assert.Equal(t, 1, base.callCount())
}

func TestRetry_ReturnsLastErrorAfterMaxAttempts(t *testing.T) {
	e1, e2 := errors.New("one"), errors.New("two")
	base := &stubClient{results: []error{e1, e2}}
	cli := Wrap(base, Retry(2, time.Millisecond))

	_, err := cli.Generate(t.Context(), llmclient.Request{Prompt: "p"})
	assert.ErrorIs(t, err, e2)
	assert.Equal(t, 2, base.callCount())
}

func TestWithLogging_RecordsErrors(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	boom := errors.New("boom")
	cli := Wrap(&stubClient{results: []error{boom}}, WithLogging(zap.New(core)))

	ctx := WithRequestID(t.Context(), "req-1")
	_, err := cli.Generate(ctx, llmclient.Request{Prompt: "p"})
	require.ErrorIs(t, err, boom)

	warn := logs.FilterMessage("llm error").All()
	require.Len(t, warn, 1)
	assert.Equal(t, "req-1", warn[0].ContextMap()["request_id"])
	assert.Equal(t, "stub", warn[0].ContextMap()["client"])
	assert.Equal(t, 1, logs.FilterMessage("llm request").Len())
}

func TestCircuitBreaker_OpensAfterFailures(t *testing.T) {
	boom := errors.New("upstream down")
	base := &stubClient{results: []error{boom, boom, boom, boom}}
	cfg := DefaultBreakerConfig("test")
	cfg.MinRequests = 2
	cfg.FailureThreshold = 0.5
	cfg.Timeout = time.Minute
	cli := Wrap(base, CircuitBreaker(cfg))

	for i := 0; i < 2; i++ {
		_, err := cli.Generate(t.Context(), llmclient.Request{Prompt: "p"})
		require.ErrorIs(t, err, boom)
	}
	_, err := cli.Generate(t.Context(), llmclient.Request{Prompt: "p"})
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, 2, base.callCount())
}

func TestCircuitBreaker_IgnoresPermanentErrors(t *testing.T) {
	perm := llmclient.NewPermanentError(errors.New("bad request"))
	base := &stubClient{results: []error{perm, perm, perm}}
	cfg := DefaultBreakerConfig("test")
	cfg.MinRequests = 1
	cli := Wrap(base, CircuitBreaker(cfg))

	for i := 0; i < 3; i++ {
		_, err := cli.Generate(t.Context(), llmclient.Request{Prompt: "p"})
		assert.NotErrorIs(t, err, ErrCircuitOpen)
	}
	assert.Equal(t, 3, base.callCount())
}

func TestCircuitBreaker_CountsDeadlines(t *testing.T) {
	slow := fmt.Errorf("gemini: %w", context.DeadlineExceeded)
	base := &stubClient{results: []error{slow, slow, slow}}
	cfg := DefaultBreakerConfig("test")
	cfg.MinRequests = 2
	cfg.FailureThreshold = 0.5
	cfg.Timeout = time.Minute
	cli := Wrap(base, CircuitBreaker(cfg))

	for i := 0; i < 2; i++ {
		_, err := cli.Generate(t.Context(), llmclient.Request{Prompt: "p"})
		require.ErrorIs(t, err, context.DeadlineExceeded)
	}
	_, err := cli.Generate(t.Context(), llmclient.Request{Prompt: "p"})
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, 2, base.callCount())
}

func TestCircuitBreaker_IgnoresCancellation(t *testing.T) {
	base := &stubClient{results: []error{context.Canceled, context.Canceled, context.Canceled}}
	cfg := DefaultBreakerConfig("test")
	cfg.MinRequests = 1
	cli := Wrap(base, CircuitBreaker(cfg))

	for i := 0; i < 3; i++ {
		_, err := cli.Generate(t.Context(), llmclient.Request{Prompt: "p"})
		assert.ErrorIs(t, err, context.Canceled)
	}
	assert.Equal(t, 3, base.callCount())
}

type recorder struct {
	mu    sync.Mutex
	calls []error
}

func (r *recorder) ObserveLLMCall(_ string, _ time.Duration, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, err)
}

func TestWithMetrics_ObservesEveryCall(t *testing.T) {
	rec := &recorder{}
	boom := errors.New("boom")
	cli := Wrap(&stubClient{results: []error{nil, boom}}, WithMetrics(rec))

	_, _ = cli.Generate(t.Context(), llmclient.Request{Prompt: "a"})
	_, _ = cli.Generate(t.Context(), llmclient.Request{Prompt: "b"})
	require.Len(t, rec.calls, 2)
	assert.NoError(t, rec.calls[0])
	assert.ErrorIs(t, rec.calls[1], boom)

	base := &stubClient{}
	assert.Same(t, base, WithMetrics(nil)(base))
}

func TestHeaderBackoff_WaitsForReset(t *testing.T) {
	base := &headerStub{}
	cli := Wrap(base, HeaderBackoff())
	require.NotNil(t, base.handler)

	base.handler(llmclient.RateLimitHeaders{RemainingRequests: 0, ResetRequests: 80 * time.Millisecond})
	start := time.Now()
	_, err := cli.Generate(t.Context(), llmclient.Request{Prompt: "p"})
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 60*time.Millisecond)
}

func TestHeaderBackoff_SkipsUnawareClients(t *testing.T) {
	base := &stubClient{}
	assert.Same(t, llmclient.LLMClient(base), HeaderBackoff()(base))
}
