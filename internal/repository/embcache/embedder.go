// Package embcache caches provider output in a key-value store, keyed by a hash of
// the model namespace and the text.
package embcache

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/kailas-cloud/bookrec/internal/db"
	"github.com/kailas-cloud/bookrec/internal/domain"
)

// KeyPrefix namespaces cache keys in a shared store.
const KeyPrefix = "emb:"

// store is the consumer interface for the embedding cache (ISP).
type store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// CachedEmbedder caches dense and token embeddings in a key-value store.
type CachedEmbedder struct {
	inner      domain.Provider
	store      store
	namespace  string
	ttl        time.Duration
	cacheTotal *prometheus.CounterVec
	logger     *zap.Logger
}

var (
	_ domain.Provider      = (*CachedEmbedder)(nil)
	_ domain.BatchEmbedder = (*CachedEmbedder)(nil)
)

// New creates a caching decorator.
// namespace separates models sharing one store (usually the model name); ttl 0 never expires.
// cacheTotal is a counter vec with labels "kind" ("dense"/"tokens") and "result" ("hit"/"miss").
func New(
	inner domain.Provider,
	s store,
	namespace string,
	ttl time.Duration,
	cacheTotal *prometheus.CounterVec,
	logger *zap.Logger,
) *CachedEmbedder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachedEmbedder{
		inner:      inner,
		store:      s,
		namespace:  namespace,
		ttl:        ttl,
		cacheTotal: cacheTotal,
		logger:     logger,
	}
}

// Embed returns a cached embedding or calls the inner embedder.
// Cache hit: TotalTokens = 0 (no real tokens consumed).
func (c *CachedEmbedder) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	key := c.cacheKey("d", text)

	if data, ok := c.getFromCache(ctx, key); ok {
		vec, err := bytesToVector(data)
		if err == nil {
			c.incCache("dense", "hit")
			return domain.EmbeddingResult{Embedding: vec}, nil
		}
		c.logger.Warn("Failed to parse cached embedding", zap.String("key", key), zap.Error(err))
	}
	c.incCache("dense", "miss")

	result, err := c.inner.Embed(ctx, text)
	if err != nil {
		return domain.EmbeddingResult{}, fmt.Errorf("embed text: %w", err)
	}

	c.putToCache(ctx, key, vectorToCacheBytes(result.Embedding))
	return result, nil
}

// EmbedTokens returns cached token vectors or calls the inner embedder.
func (c *CachedEmbedder) EmbedTokens(ctx context.Context, text string) (domain.TokenEmbeddingResult, error) {
	key := c.cacheKey("t", text)

	if data, ok := c.getFromCache(ctx, key); ok {
		tokens, err := bytesToTokens(data)
		if err == nil {
			c.incCache("tokens", "hit")
			return domain.TokenEmbeddingResult{Tokens: tokens}, nil
		}
		c.logger.Warn("Failed to parse cached token embedding", zap.String("key", key), zap.Error(err))
	}
	c.incCache("tokens", "miss")

	result, err := c.inner.EmbedTokens(ctx, text)
	if err != nil {
		return domain.TokenEmbeddingResult{}, fmt.Errorf("embed tokens: %w", err)
	}

	c.putToCache(ctx, key, tokensToCacheBytes(result.Tokens))
	return result, nil
}

// BatchEmbed serves cached texts from the store and embeds the misses as one batch.
// TotalTokens counts only the misses.
func (c *CachedEmbedder) BatchEmbed(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	out := domain.BatchEmbeddingResult{Embeddings: make([][]float32, len(texts))}
	keys := make([]string, len(texts))
	var missIdx []int
	var missTexts []string
	for i, text := range texts {
		keys[i] = c.cacheKey("d", text)
		if data, ok := c.getFromCache(ctx, keys[i]); ok {
			if vec, err := bytesToVector(data); err == nil {
				c.incCache("dense", "hit")
				out.Embeddings[i] = vec
				continue
			}
		}
		c.incCache("dense", "miss")
		missIdx = append(missIdx, i)
		missTexts = append(missTexts, text)
	}
	if len(missTexts) == 0 {
		return out, nil
	}

	res, err := domain.EmbedBatch(ctx, c.inner, missTexts)
	if err != nil {
		return domain.BatchEmbeddingResult{}, fmt.Errorf("embed batch: %w", err)
	}
	for j, i := range missIdx {
		out.Embeddings[i] = res.Embeddings[j]
		c.putToCache(ctx, keys[i], vectorToCacheBytes(res.Embeddings[j]))
	}
	out.PromptTokens, out.TotalTokens = res.PromptTokens, res.TotalTokens
	return out, nil
}

func (c *CachedEmbedder) incCache(kind, result string) {
	if c.cacheTotal != nil {
		c.cacheTotal.WithLabelValues(kind, result).Inc()
	}
}

func (c *CachedEmbedder) cacheKey(kind, text string) string {
	h := sha256.Sum256([]byte(c.namespace + "\x00" + text))
	return KeyPrefix + kind + ":" + hex.EncodeToString(h[:])
}

func (c *CachedEmbedder) getFromCache(ctx context.Context, key string) ([]byte, bool) {
	data, err := c.store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, db.ErrKeyNotFound) {
			c.logger.Warn("Failed to get cached embedding", zap.String("key", key), zap.Error(err))
		}
		return nil, false
	}
	return data, len(data) > 0
}

func (c *CachedEmbedder) putToCache(ctx context.Context, key string, data []byte) {
	if err := c.store.SetWithTTL(ctx, key, data, c.ttl); err != nil {
		c.logger.Warn("Failed to cache embedding", zap.String("key", key), zap.Error(err))
	}
}

func vectorToCacheBytes(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func bytesToVector(data []byte) ([]float32, error) {
	if len(data)%4 != 0 {
		return nil, fmt.Errorf("invalid embedding cache data: len=%d (not multiple of 4)", len(data))
	}
	vec := make([]float32, len(data)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return vec, nil
}

// tokensToCacheBytes packs [count][dim] then count*dim floats.
func tokensToCacheBytes(tokens [][]float32) []byte {
	dim := 0
	if len(tokens) > 0 {
		dim = len(tokens[0])
	}
	buf := make([]byte, 8, 8+len(tokens)*dim*4)
	binary.LittleEndian.PutUint32(buf[0:], uint32(len(tokens)))
	binary.LittleEndian.PutUint32(buf[4:], uint32(dim))
	for _, t := range tokens {
		buf = append(buf, vectorToCacheBytes(t)...)
	}
	return buf
}

func bytesToTokens(data []byte) ([][]float32, error) {
	if len(data) < 8 {
		return nil, fmt.Errorf("invalid token cache data: len=%d", len(data))
	}
	count := int(binary.LittleEndian.Uint32(data[0:]))
	dim := int(binary.LittleEndian.Uint32(data[4:]))
	if len(data)-8 != count*dim*4 {
		return nil, fmt.Errorf("invalid token cache data: %d tokens of %d dims in %d bytes", count, dim, len(data)-8)
	}
	flat, err := bytesToVector(data[8:])
	if err != nil {
		return nil, err
	}
	out := make([][]float32, count)
	for i := range out {
		out[i] = flat[i*dim : (i+1)*dim : (i+1)*dim]
	}
	return out, nil
}
