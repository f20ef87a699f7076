// Package openai implements the embedding provider over an OpenAI-compatible API.
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/kailas-cloud/bookrec/internal/domain"
	"github.com/kailas-cloud/bookrec/internal/tokenize"
)

// maxInputsPerRequest caps the inputs of one embeddings call.
const maxInputsPerRequest = 256

// Embedder is an embedding provider using the OpenAI-compatible API (e.g. Nebius).
// Token vectors are produced by embedding each word of the text at reduced dimensions.
type Embedder struct {
	client          *openai.Client
	model           openai.EmbeddingModel
	tokenModel      openai.EmbeddingModel
	dimensions      int
	tokenDimensions int
	user            string
	logger          *zap.Logger
}

var (
	_ domain.Provider      = (*Embedder)(nil)
	_ domain.BatchEmbedder = (*Embedder)(nil)
	_ domain.HealthChecker = (*Embedder)(nil)
)

// Config holds the embedding provider settings.
type Config struct {
	APIKey          string
	BaseURL         string
	Model           string
	TokenModel      string // defaults to Model
	Dimensions      int
	TokenDimensions int
	User            string
	Logger          *zap.Logger
}

// NewEmbedder creates an OpenAI-compatible embedding provider.
func NewEmbedder(cfg *Config) *Embedder {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	tokenModel := cfg.TokenModel
	if tokenModel == "" {
		tokenModel = cfg.Model
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Embedder{
		client:          openai.NewClientWithConfig(clientCfg),
		model:           openai.EmbeddingModel(cfg.Model),
		tokenModel:      openai.EmbeddingModel(tokenModel),
		dimensions:      cfg.Dimensions,
		tokenDimensions: cfg.TokenDimensions,
		user:            cfg.User,
		logger:          logger,
	}
}

// Embed implements domain.Embedder.
func (e *Embedder) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	res, err := e.create(ctx, e.model, e.dimensions, []string{text})
	if err != nil {
		return domain.EmbeddingResult{}, err
	}
	return domain.EmbeddingResult{
		Embedding:    res.Embeddings[0],
		PromptTokens: res.PromptTokens,
		TotalTokens:  res.TotalTokens,
	}, nil
}

// BatchEmbed embeds texts in as few calls as possible, preserving order.
func (e *Embedder) BatchEmbed(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	var out domain.BatchEmbeddingResult
	for offset := 0; offset < len(texts); offset += maxInputsPerRequest {
		chunk := texts[offset:min(offset+maxInputsPerRequest, len(texts))]
		res, err := e.create(ctx, e.model, e.dimensions, chunk)
		if err != nil {
			return domain.BatchEmbeddingResult{}, fmt.Errorf("chunk at %d: %w", offset, err)
		}
		out.Embeddings = append(out.Embeddings, res.Embeddings...)
		out.PromptTokens += res.PromptTokens
		out.TotalTokens += res.TotalTokens
	}
	return out, nil
}

// EmbedTokens implements domain.TokenEmbedder: one unit vector per word of text.
func (e *Embedder) EmbedTokens(ctx context.Context, text string) (domain.TokenEmbeddingResult, error) {
	words := tokenize.Tokenize(text)
	if len(words) == 0 {
		return domain.TokenEmbeddingResult{}, nil
	}
	var out domain.TokenEmbeddingResult
	for offset := 0; offset < len(words); offset += maxInputsPerRequest {
		chunk := words[offset:min(offset+maxInputsPerRequest, len(words))]
		res, err := e.create(ctx, e.tokenModel, e.tokenDimensions, chunk)
		if err != nil {
			return domain.TokenEmbeddingResult{}, fmt.Errorf("token chunk at %d: %w", offset, err)
		}
		for _, v := range res.Embeddings {
			out.Tokens = append(out.Tokens, domain.Normalize(v))
		}
		out.PromptTokens += res.PromptTokens
		out.TotalTokens += res.TotalTokens
	}
	return out, nil
}

func (e *Embedder) create(
	ctx context.Context, model openai.EmbeddingModel, dims int, input []string,
) (domain.BatchEmbeddingResult, error) {
	req := openai.EmbeddingRequest{
		Input:          input,
		Model:          model,
		EncodingFormat: openai.EmbeddingEncodingFormatFloat,
		User:           e.user,
	}
	if dims > 0 {
		req.Dimensions = dims
	}

	resp, err := e.client.CreateEmbeddings(ctx, req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return domain.BatchEmbeddingResult{}, fmt.Errorf("embedding request: %w", ctxErr)
		}
		return domain.BatchEmbeddingResult{}, parseAPIError(err)
	}
	if len(resp.Data) != len(input) {
		return domain.BatchEmbeddingResult{}, fmt.Errorf("embedding response has %d vectors for %d inputs: %w",
			len(resp.Data), len(input), domain.ErrEmbeddingUnavailable)
	}

	out := make([][]float32, len(input))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(out) || out[d.Index] != nil {
			return domain.BatchEmbeddingResult{}, fmt.Errorf("embedding response index %d out of order: %w",
				d.Index, domain.ErrEmbeddingUnavailable)
		}
		out[d.Index] = d.Embedding
	}
	return domain.BatchEmbeddingResult{
		Embeddings:   out,
		PromptTokens: resp.Usage.PromptTokens,
		TotalTokens:  resp.Usage.TotalTokens,
	}, nil
}

// HealthCheck verifies API availability via ListModels (free endpoint).
func (e *Embedder) HealthCheck(ctx context.Context) error {
	if _, err := e.client.ListModels(ctx); err != nil {
		return fmt.Errorf("list models: %w", err)
	}
	return nil
}

// parseAPIError extracts a human-readable error from the API response.
// All errors are wrapped with domain.ErrEmbeddingUnavailable.
func parseAPIError(err error) error {
	wrap := domain.ErrEmbeddingUnavailable

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		detail := extractDetail(reqErr.Body)
		if detail == "" {
			detail = string(reqErr.Body)
		}
		return fmt.Errorf("embedding API error %d: %s: %w", reqErr.HTTPStatusCode, detail, wrap)
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		if apiErr.HTTPStatusCode == 429 {
			return fmt.Errorf("embedding API error %d: %s: %w: %w",
				apiErr.HTTPStatusCode, apiErr.Message, wrap, domain.ErrRateLimited)
		}
		return fmt.Errorf("embedding API error %d: %s: %w",
			apiErr.HTTPStatusCode, apiErr.Message, wrap)
	}

	return fmt.Errorf("embedding request failed: %w: %w", wrap, err)
}

// extractDetail extracts the "detail" field from a JSON error body (Nebius error format).
func extractDetail(body []byte) string {
	var parsed struct {
		Detail string `json:"detail"`
	}
	if json.Unmarshal(body, &parsed) == nil && parsed.Detail != "" {
		return parsed.Detail
	}
	return ""
}
