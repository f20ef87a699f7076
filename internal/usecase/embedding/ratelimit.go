package embedding

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/kailas-cloud/bookrec/internal/domain"
	"github.com/kailas-cloud/bookrec/internal/metrics"
)

// RateLimitedEmbedder spaces provider calls with a token bucket. Dense and token
// requests share one budget.
type RateLimitedEmbedder struct {
	inner   domain.Provider
	limiter *rate.Limiter
}

var (
	_ domain.Provider      = (*RateLimitedEmbedder)(nil)
	_ domain.BatchEmbedder = (*RateLimitedEmbedder)(nil)
)

// NewRateLimitedEmbedder allows rps requests per second with the given burst.
func NewRateLimitedEmbedder(inner domain.Provider, rps float64, burst int) *RateLimitedEmbedder {
	if burst < 1 {
		burst = 1
	}
	return &RateLimitedEmbedder{inner: inner, limiter: rate.NewLimiter(rate.Limit(rps), burst)}
}

// Embed waits for a slot, then delegates.
func (r *RateLimitedEmbedder) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	if err := r.wait(ctx); err != nil {
		return domain.EmbeddingResult{}, err
	}
	return r.inner.Embed(ctx, text)
}

// EmbedTokens waits for a slot, then delegates.
func (r *RateLimitedEmbedder) EmbedTokens(ctx context.Context, text string) (domain.TokenEmbeddingResult, error) {
	if err := r.wait(ctx); err != nil {
		return domain.TokenEmbeddingResult{}, err
	}
	return r.inner.EmbedTokens(ctx, text)
}

// BatchEmbed takes one slot for the whole batch, then delegates.
func (r *RateLimitedEmbedder) BatchEmbed(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	if err := r.wait(ctx); err != nil {
		return domain.BatchEmbeddingResult{}, err
	}
	return domain.EmbedBatch(ctx, r.inner, texts)
}

// wait fails fast with ErrRateLimited when the deadline cannot be met.
func (r *RateLimitedEmbedder) wait(ctx context.Context) error {
	start := time.Now()
	err := r.limiter.Wait(ctx)
	metrics.EmbeddingRateLimitWaitSeconds.Observe(time.Since(start).Seconds())
	if err == nil {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("rate limit wait: %w", ctxErr)
	}
	return fmt.Errorf("%w: %w: %w", domain.ErrEmbeddingUnavailable, domain.ErrRateLimited, err)
}
