// Package hashing is a deterministic, offline embedding provider. Dense vectors are
// signed feature hashes of the text's tokens, so texts sharing words are close; token
// vectors are seeded by the word, so equal words have dot product 1.
//
// It backs tests and air-gapped runs; it carries no semantics beyond word overlap.
package hashing

import (
	"context"
	"hash/fnv"

	"github.com/kailas-cloud/bookrec/internal/domain"
	"github.com/kailas-cloud/bookrec/internal/tokenize"
)

// Embedder implements domain.Provider without any network call.
type Embedder struct {
	dense  int
	tokens int
}

var (
	_ domain.Provider      = (*Embedder)(nil)
	_ domain.HealthChecker = (*Embedder)(nil)
)

// New creates a hashing embedder. Non-positive dims fall back to 384 and 16.
func New(denseDims, tokenDims int) *Embedder {
	if denseDims <= 0 {
		denseDims = domain.DenseDimensions
	}
	if tokenDims <= 0 {
		tokenDims = domain.TokenDimensions
	}
	return &Embedder{dense: denseDims, tokens: tokenDims}
}

// Embed implements domain.Embedder.
func (e *Embedder) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	if err := ctx.Err(); err != nil {
		return domain.EmbeddingResult{}, err
	}
	words := tokenize.Tokenize(text)
	vec := make([]float32, e.dense)
	for _, w := range words {
		h := hash64(w)
		idx := int(h % uint64(e.dense))
		if h&(1<<63) != 0 {
			vec[idx]--
		} else {
			vec[idx]++
		}
	}
	if isZero(vec) {
		vec = seeded(text, e.dense)
	}
	return domain.EmbeddingResult{
		Embedding:    domain.Normalize(vec),
		PromptTokens: len(words),
		TotalTokens:  len(words),
	}, nil
}

// EmbedTokens implements domain.TokenEmbedder.
func (e *Embedder) EmbedTokens(ctx context.Context, text string) (domain.TokenEmbeddingResult, error) {
	if err := ctx.Err(); err != nil {
		return domain.TokenEmbeddingResult{}, err
	}
	words := tokenize.Tokenize(text)
	out := domain.TokenEmbeddingResult{PromptTokens: len(words), TotalTokens: len(words)}
	if len(words) == 0 {
		return out, nil
	}
	out.Tokens = make([][]float32, len(words))
	for i, w := range words {
		out.Tokens[i] = domain.Normalize(seeded(w, e.tokens))
	}
	return out, nil
}

// HealthCheck always succeeds.
func (e *Embedder) HealthCheck(context.Context) error { return nil }

func hash64(s string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(s))
	return h.Sum64()
}

// seeded expands an FNV seed into dim components in [-1, 1) with an LCG.
func seeded(s string, dim int) []float32 {
	seed := uint32(hash64(s))
	vec := make([]float32, dim)
	for i := range vec {
		seed = seed*1664525 + 1013904223
		vec[i] = float32(seed%2000)/1000 - 1
	}
	if isZero(vec) {
		vec[0] = 1
	}
	return vec
}

func isZero(v []float32) bool {
	for _, x := range v {
		if x != 0 {
			return false
		}
	}
	return true
}
