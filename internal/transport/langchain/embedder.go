// Package langchain implements the embedding provider over langchaingo, for local
// OpenAI-compatible model servers (Ollama, llama.cpp, vLLM).
package langchain

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"
	"go.uber.org/zap"

	"github.com/kailas-cloud/bookrec/internal/domain"
	"github.com/kailas-cloud/bookrec/internal/tokenize"
)

// Config holds the model server settings.
type Config struct {
	BaseURL         string
	APIKey          string // "none" is sent when empty; local servers ignore it
	Model           string
	TokenDimensions int
	BatchSize       int
	Logger          *zap.Logger
}

// Embedder implements domain.Provider. Token vectors are the model's word embeddings
// truncated to TokenDimensions and renormalised.
type Embedder struct {
	embedder  embeddings.Embedder
	tokenDims int
	logger    *zap.Logger
}

var _ domain.Provider = (*Embedder)(nil)

// NewEmbedder creates a langchaingo-backed provider.
func NewEmbedder(cfg *Config) (*Embedder, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("model is required")
	}
	token := cfg.APIKey
	if token == "" {
		token = "none"
	}
	opts := []openai.Option{
		openai.WithToken(token),
		openai.WithEmbeddingModel(cfg.Model),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}
	client, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("create client: %w", err)
	}

	embOpts := []embeddings.Option{embeddings.WithStripNewLines(true)}
	if cfg.BatchSize > 0 {
		embOpts = append(embOpts, embeddings.WithBatchSize(cfg.BatchSize))
	}
	embedder, err := embeddings.NewEmbedder(client, embOpts...)
	if err != nil {
		return nil, fmt.Errorf("create embedder: %w", err)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Embedder{
		embedder:  embedder,
		tokenDims: cfg.TokenDimensions,
		logger:    logger.With(zap.String("component", "langchain-embedder")),
	}, nil
}

// Embed implements domain.Embedder. The server reports no usage, so tokens are 0.
func (e *Embedder) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	vec, err := e.embedder.EmbedQuery(ctx, text)
	if err != nil {
		return domain.EmbeddingResult{}, e.wrap(ctx, err)
	}
	if len(vec) == 0 {
		return domain.EmbeddingResult{}, fmt.Errorf("empty embedding: %w", domain.ErrEmbeddingUnavailable)
	}
	return domain.EmbeddingResult{Embedding: vec}, nil
}

// EmbedTokens implements domain.TokenEmbedder.
func (e *Embedder) EmbedTokens(ctx context.Context, text string) (domain.TokenEmbeddingResult, error) {
	words := tokenize.Tokenize(text)
	if len(words) == 0 {
		return domain.TokenEmbeddingResult{}, nil
	}
	e.logger.Debug("embedding tokens", zap.Int("count", len(words)))

	vecs, err := e.embedder.EmbedDocuments(ctx, words)
	if err != nil {
		return domain.TokenEmbeddingResult{}, e.wrap(ctx, err)
	}
	if len(vecs) != len(words) {
		return domain.TokenEmbeddingResult{}, fmt.Errorf("got %d vectors for %d tokens: %w",
			len(vecs), len(words), domain.ErrEmbeddingUnavailable)
	}
	out := domain.TokenEmbeddingResult{Tokens: make([][]float32, len(vecs))}
	for i, v := range vecs {
		out.Tokens[i] = truncate(v, e.tokenDims)
	}
	return out, nil
}

func (e *Embedder) wrap(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("embedding request: %w", ctxErr)
	}
	return fmt.Errorf("embedding request failed: %w: %w", domain.ErrEmbeddingUnavailable, err)
}

// truncate keeps the leading dims components (Matryoshka-style) and renormalises.
// The input is never modified.
func truncate(v []float32, dims int) []float32 {
	if dims <= 0 || dims > len(v) {
		dims = len(v)
	}
	out := make([]float32, dims)
	copy(out, v[:dims])
	return domain.Normalize(out)
}
