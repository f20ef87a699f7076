// Package embedding holds the provider-independent decorators of the embedding chain.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/bookrec/internal/domain"
	"github.com/kailas-cloud/bookrec/internal/metrics"
)

// Dimensions is the expected output shape of a provider.
type Dimensions struct {
	Dense  int
	Tokens int
}

// InstrumentedEmbedder wraps a Provider with metrics, logging, usage accounting and
// shape validation. Every failure leaves as ErrEmbeddingUnavailable.
type InstrumentedEmbedder struct {
	inner    domain.Provider
	provider string
	model    string
	dims     Dimensions
	logger   *zap.Logger
}

var (
	_ domain.Provider      = (*InstrumentedEmbedder)(nil)
	_ domain.BatchEmbedder = (*InstrumentedEmbedder)(nil)
)

// NewInstrumentedEmbedder wraps a provider with observability. Zero dims skip validation.
func NewInstrumentedEmbedder(
	inner domain.Provider, provider, model string,
	dims Dimensions, logger *zap.Logger,
) *InstrumentedEmbedder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &InstrumentedEmbedder{
		inner:    inner,
		provider: provider,
		model:    model,
		dims:     dims,
		logger:   logger,
	}
}

// Embed delegates to the inner provider and validates the vector length.
func (p *InstrumentedEmbedder) Embed(
	ctx context.Context, text string,
) (domain.EmbeddingResult, error) {
	start := time.Now()
	result, err := p.inner.Embed(ctx, text)
	if err == nil && p.dims.Dense > 0 {
		err = domain.CheckDimensions(result.Embedding, p.dims.Dense)
	}
	duration := time.Since(start)

	if err != nil {
		return domain.EmbeddingResult{}, p.fail(ctx, "dense", duration, err)
	}
	p.observe(ctx, "dense", duration, result.PromptTokens, result.TotalTokens)

	p.logger.Debug("Embedding request completed",
		zap.String("provider", p.provider),
		zap.String("model", p.model),
		zap.Duration("duration", duration),
		zap.Int("dimensions", len(result.Embedding)),
		zap.Int("total_tokens", result.TotalTokens),
	)
	return result, nil
}

// EmbedTokens delegates to the inner provider and validates every token vector.
func (p *InstrumentedEmbedder) EmbedTokens(
	ctx context.Context, text string,
) (domain.TokenEmbeddingResult, error) {
	start := time.Now()
	result, err := p.inner.EmbedTokens(ctx, text)
	if err == nil && p.dims.Tokens > 0 {
		for i, tok := range result.Tokens {
			if derr := domain.CheckDimensions(tok, p.dims.Tokens); derr != nil {
				err = fmt.Errorf("token %d: %w", i, derr)
				break
			}
		}
	}
	duration := time.Since(start)

	if err != nil {
		return domain.TokenEmbeddingResult{}, p.fail(ctx, "tokens", duration, err)
	}
	p.observe(ctx, "tokens", duration, result.PromptTokens, result.TotalTokens)

	p.logger.Debug("Token embedding request completed",
		zap.String("provider", p.provider),
		zap.String("model", p.model),
		zap.Duration("duration", duration),
		zap.Int("tokens", len(result.Tokens)),
	)
	return result, nil
}

// BatchEmbed embeds texts as one batch when the inner provider supports it and
// validates every vector.
func (p *InstrumentedEmbedder) BatchEmbed(
	ctx context.Context, texts []string,
) (domain.BatchEmbeddingResult, error) {
	start := time.Now()
	result, err := domain.EmbedBatch(ctx, p.inner, texts)
	if err == nil && p.dims.Dense > 0 {
		for i, vec := range result.Embeddings {
			if derr := domain.CheckDimensions(vec, p.dims.Dense); derr != nil {
				err = fmt.Errorf("text %d: %w", i, derr)
				break
			}
		}
	}
	duration := time.Since(start)

	if err != nil {
		return domain.BatchEmbeddingResult{}, p.fail(ctx, "dense", duration, err)
	}
	p.observe(ctx, "dense", duration, result.PromptTokens, result.TotalTokens)

	p.logger.Debug("Batch embedding request completed",
		zap.String("provider", p.provider),
		zap.String("model", p.model),
		zap.Duration("duration", duration),
		zap.Int("texts", len(texts)),
		zap.Int("total_tokens", result.TotalTokens),
	)
	return result, nil
}

func (p *InstrumentedEmbedder) observe(ctx context.Context, kind string, d time.Duration, prompt, total int) {
	metrics.EmbeddingRequestsTotal.WithLabelValues(p.provider, p.model, kind, "ok").Inc()
	metrics.EmbeddingRequestDuration.WithLabelValues(p.provider, p.model, kind).Observe(d.Seconds())
	if prompt > 0 {
		metrics.EmbeddingTokensTotal.WithLabelValues(p.provider, p.model, "prompt").Add(float64(prompt))
	}
	if total > 0 {
		metrics.EmbeddingTokensTotal.WithLabelValues(p.provider, p.model, "total").Add(float64(total))
	}
	domain.UsageFromContext(ctx).AddTokens(total)
}

func (p *InstrumentedEmbedder) fail(ctx context.Context, kind string, d time.Duration, err error) error {
	errType := classify(err)
	metrics.EmbeddingRequestsTotal.WithLabelValues(p.provider, p.model, kind, "error").Inc()
	metrics.EmbeddingErrorsTotal.WithLabelValues(p.provider, p.model, errType).Inc()

	if errType == "canceled" {
		p.logger.Debug("Embedding request canceled", zap.String("kind", kind), zap.Error(err))
		return fmt.Errorf("embed %s: %w", kind, err)
	}
	p.logger.Error("Embedding request failed",
		zap.String("provider", p.provider),
		zap.String("model", p.model),
		zap.String("kind", kind),
		zap.Duration("duration", d),
		zap.Error(err),
	)
	if errors.Is(err, domain.ErrEmbeddingUnavailable) {
		return fmt.Errorf("embed %s: %w", kind, err)
	}
	return fmt.Errorf("embed %s: %w: %w", kind, domain.ErrEmbeddingUnavailable, err)
}

func classify(err error) string {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	case errors.Is(err, domain.ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, domain.ErrVectorDimMismatch):
		return "dimension"
	default:
		return "unavailable"
	}
}
