package llm

import (
	"context"
	"strings"
	"sync"
	"time"

	"ultraflow/internal/llmclient"
)

// rpsLimiter is a lightweight token-bucket limiter that throttles to at most
// R requests per second with an optional burst capacity.
type rpsLimiter struct {
	tokens   chan struct{}
	stopCh   chan struct{}
	stopOnce sync.Once
}

// newRPSLimiter returns nil when rps <= 0, which disables limiting.
func newRPSLimiter(rps float64, burst int) *rpsLimiter {
	if rps <= 0 {
		return nil
	}
	if burst <= 0 {
		burst = 1
	}

	l := &rpsLimiter{
		tokens: make(chan struct{}, burst),
		stopCh: make(chan struct{}),
	}
	for i := 0; i < burst; i++ {
		l.tokens <- struct{}{}
	}

	period := time.Duration(float64(time.Second) / rps)
	if period <= 0 {
		period = time.Millisecond
	}
	ticker := time.NewTicker(period)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				select {
				case l.tokens <- struct{}{}:
				default:
					// bucket full
				}
			case <-l.stopCh:
				return
			}
		}
	}()
	return l
}

// Acquire blocks until a token is available or the context is canceled.
func (l *rpsLimiter) Acquire(ctx context.Context) error {
	if l == nil {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-l.stopCh:
		return context.Canceled
	case <-l.tokens:
		return nil
	}
}

// AcquireN acquires n tokens sequentially.
func (l *rpsLimiter) AcquireN(ctx context.Context, n int) error {
	if l == nil || n <= 0 {
		return nil
	}
	for i := 0; i < n; i++ {
		if err := l.Acquire(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Stop terminates the refill goroutine. It is safe to call more than once.
func (l *rpsLimiter) Stop() {
	if l == nil {
		return
	}
	l.stopOnce.Do(func() { close(l.stopCh) })
}

// RateLimit limits request rate. If rps <= 0 the limiter is disabled.
func RateLimit(rps float64, burst int) Middleware {
	return func(next llmclient.LLMClient) llmclient.LLMClient {
		return &rateLimited{passthrough: passthrough{next}, rl: newRPSLimiter(rps, burst)}
	}
}

type rateLimited struct {
	passthrough
	rl *rpsLimiter
}

func (c *rateLimited) Generate(ctx context.Context, req llmclient.Request) (string, error) {
	if err := c.rl.Acquire(ctx); err != nil {
		return "", err
	}
	return c.next.Generate(ctx, req)
}

func (c *rateLimited) Close() error {
	c.rl.Stop()
	return c.next.Close()
}

// MultiLimit applies per-minute and per-day request limits plus a tokens-per-minute
// budget charged with the estimated size of everything sent: system instruction,
// history and prompt. Pass 0 to disable a limiter.
func MultiLimit(rpm, rpd, tpm int) Middleware {
	return func(next llmclient.LLMClient) llmclient.LLMClient {
		m := &multiLimited{passthrough: passthrough{next}}
		if rpm > 0 {
			m.rpm = newRPSLimiter(float64(rpm)/60.0, max1(rpm))
		}
		if rpd > 0 {
			m.rpd = newRPSLimiter(float64(rpd)/86400.0, max1(rpd))
		}
		if tpm > 0 {
			m.tpm = newRPSLimiter(float64(tpm)/60.0, max1(tpm))
			m.tpmCap = tpm
		}
		return m
	}
}

type multiLimited struct {
	passthrough
	rpm, rpd, tpm *rpsLimiter
	tpmCap        int
}

func (m *multiLimited) Generate(ctx context.Context, req llmclient.Request) (string, error) {
	if err := m.rpm.Acquire(ctx); err != nil {
		return "", err
	}
	if err := m.rpd.Acquire(ctx); err != nil {
		return "", err
	}
	if m.tpm != nil {
		est := m.next.CountTokens(requestText(req))
		if est > m.tpmCap {
			est = m.tpmCap
		}
		if err := m.tpm.AcquireN(ctx, max1(est)); err != nil {
			return "", err
		}
	}
	return m.next.Generate(ctx, req)
}

func (m *multiLimited) Close() error {
	m.rpm.Stop()
	m.rpd.Stop()
	m.tpm.Stop()
	return m.next.Close()
}

func requestText(req llmclient.Request) string {
	var b strings.Builder
	b.WriteString(req.System)
	for _, m := range req.History {
		b.WriteByte('\n')
		b.WriteString(m.Content)
	}
	b.WriteByte('\n')
	b.WriteString(req.Prompt)
	return b.String()
}

func max1(n int) int {
	if n < 1 {
		return 1
	}
	return n
}

// HeaderBackoff holds the next request back for as long as the provider's last
// rate-limit headers asked. Clients that do not report headers pass through.
func HeaderBackoff() Middleware {
	return func(next llmclient.LLMClient) llmclient.LLMClient {
		aware, ok := next.(llmclient.RateLimitHeaderAwareClient)
		if !ok {
			return next
		}
		hb := &headerBackoff{passthrough: passthrough{next}}
		aware.SetRateLimitHeaderHandler(hb.observe)
		return hb
	}
}

type headerBackoff struct {
	passthrough
	mu        sync.Mutex
	notBefore time.Time
}

func (h *headerBackoff) observe(headers llmclient.RateLimitHeaders) {
	wait := headers.Backoff()
	if wait <= 0 {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if until := time.Now().Add(wait); until.After(h.notBefore) {
		h.notBefore = until
	}
}

func (h *headerBackoff) Generate(ctx context.Context, req llmclient.Request) (string, error) {
	h.mu.Lock()
	wait := time.Until(h.notBefore)
	h.mu.Unlock()
	if err := sleepCtx(ctx, wait); err != nil {
		return "", err
	}
	return h.next.Generate(ctx, req)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
