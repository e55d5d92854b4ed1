package llm

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// RateLimitConfig configures rate limiting for LLM providers.
type RateLimitConfig struct {
	// RequestsPerMinute limits the number of API calls per minute (0 = unlimited)
	RequestsPerMinute int
	// TokensPerMinute limits total tokens per minute (0 = unlimited)
	TokensPerMinute int
	// BurstSize allows temporary burst above the request rate
	BurstSize int
}

// DefaultRateLimitConfig returns conservative defaults for a shared gateway.
func DefaultRateLimitConfig() *RateLimitConfig {
	return &RateLimitConfig{
		RequestsPerMinute: 60,
		TokensPerMinute:   0,
		BurstSize:         3,
	}
}

// RateLimitProvider wraps a provider with a request limiter and an optional
// token limiter. Token usage is charged after each response, so a large reply
// delays the calls that follow it rather than the one that produced it.
type RateLimitProvider struct {
	inner    Provider
	config   *RateLimitConfig
	requests *rate.Limiter
	tokens   *rate.Limiter
}

// NewRateLimitProvider creates a rate-limited provider wrapper.
func NewRateLimitProvider(inner Provider, config *RateLimitConfig) *RateLimitProvider {
	if config == nil {
		config = DefaultRateLimitConfig()
	}

	burst := config.BurstSize
	if burst <= 0 {
		burst = 1
	}

	requests := rate.NewLimiter(rate.Inf, burst)
	if config.RequestsPerMinute > 0 {
		requests = rate.NewLimiter(perMinute(config.RequestsPerMinute), burst)
	}
	tokens := rate.NewLimiter(rate.Inf, 1)
	if config.TokensPerMinute > 0 {
		tokens = rate.NewLimiter(perMinute(config.TokensPerMinute), config.TokensPerMinute)
	}

	return &RateLimitProvider{
		inner:    inner,
		config:   config,
		requests: requests,
		tokens:   tokens,
	}
}

func perMinute(n int) rate.Limit {
	return rate.Every(time.Minute / time.Duration(n))
}

// Name returns the underlying provider name.
func (r *RateLimitProvider) Name() string {
	return r.inner.Name()
}

// Complete waits for capacity and delegates to the inner provider.
func (r *RateLimitProvider) Complete(ctx context.Context, prompt *Prompt, opts *RequestOptions) (*Response, error) {
	if err := r.wait(ctx); err != nil {
		return nil, err
	}

	resp, err := r.inner.Complete(ctx, prompt, opts)
	if err == nil && resp != nil {
		r.charge(resp.InputTokens + resp.OutputTokens)
	}
	return resp, err
}

// Embed waits for capacity and delegates to the inner provider.
func (r *RateLimitProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if err := r.wait(ctx); err != nil {
		return nil, err
	}
	return r.inner.Embed(ctx, texts)
}

func (r *RateLimitProvider) wait(ctx context.Context) error {
	if err := r.requests.Wait(ctx); err != nil {
		return err
	}
	return r.tokens.Wait(ctx)
}

func (r *RateLimitProvider) charge(n int) {
	if r.config.TokensPerMinute <= 0 || n <= 0 {
		return
	}
	if n > r.config.TokensPerMinute {
		n = r.config.TokensPerMinute
	}
	r.tokens.ReserveN(time.Now(), n)
}

// WithRateLimit wraps a provider with rate limiting.
func WithRateLimit(p Provider, config *RateLimitConfig) Provider {
	if p == nil {
		return nil
	}
	return NewRateLimitProvider(p, config)
}
