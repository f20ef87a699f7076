// Package bookrec is an embeddable book search engine: BM25, HNSW and late
// interaction indexes over a persistent document store, ranked by named profiles.
package bookrec

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/bookrec/internal/config"
	"github.com/kailas-cloud/bookrec/internal/db"
	dbBadger "github.com/kailas-cloud/bookrec/internal/db/badger"
	dbBolt "github.com/kailas-cloud/bookrec/internal/db/bolt"
	dbRedis "github.com/kailas-cloud/bookrec/internal/db/redis"
	"github.com/kailas-cloud/bookrec/internal/domain"
	"github.com/kailas-cloud/bookrec/internal/index"
	"github.com/kailas-cloud/bookrec/internal/index/hnsw"
	"github.com/kailas-cloud/bookrec/internal/index/text"
	"github.com/kailas-cloud/bookrec/internal/metrics"
	"github.com/kailas-cloud/bookrec/internal/ranking"
	documentrepo "github.com/kailas-cloud/bookrec/internal/repository/document"
	"github.com/kailas-cloud/bookrec/internal/repository/embcache"
	chiTransport "github.com/kailas-cloud/bookrec/internal/transport/chi"
	"github.com/kailas-cloud/bookrec/internal/transport/hashing"
	langchainEmb "github.com/kailas-cloud/bookrec/internal/transport/langchain"
	openaiEmb "github.com/kailas-cloud/bookrec/internal/transport/openai"
	batchuc "github.com/kailas-cloud/bookrec/internal/usecase/batch"
	documentuc "github.com/kailas-cloud/bookrec/internal/usecase/document"
	embeddinguc "github.com/kailas-cloud/bookrec/internal/usecase/embedding"
	healthuc "github.com/kailas-cloud/bookrec/internal/usecase/health"
	searchuc "github.com/kailas-cloud/bookrec/internal/usecase/search"
)

const readinessTimeout = 10 * time.Second

// Engine owns the document store, the indexes and the services over them.
// It is safe for concurrent use.
type Engine struct {
	store    db.Store
	cache    db.Store // embedding cache, nil when disabled
	catalog  *index.Catalog
	profiles *ranking.Registry
	docs     *documentuc.Service
	search   *searchuc.Service
	batch    *batchuc.Service
	health   *healthuc.Service
	logger   *zap.Logger
}

// Open opens the store at storePath (ignored by the redis and memory drivers),
// assembles the embedding chain and rebuilds the indexes from the stored documents.
func Open(ctx context.Context, storePath string, opts Options) (*Engine, error) {
	opts = opts.withDefaults()
	if storePath != "" {
		opts.Store.Path = storePath
	}
	logger := opts.Logger

	profiles, err := buildProfiles(opts.Ranking)
	if err != nil {
		return nil, fmt.Errorf("bookrec: %w", err)
	}

	catalog, err := index.NewCatalog(catalogConfig(opts), logger)
	if err != nil {
		return nil, fmt.Errorf("bookrec: %w", err)
	}

	store, err := openStore(ctx, opts.Store, logger)
	if err != nil {
		return nil, err
	}

	e := &Engine{store: store, catalog: catalog, profiles: profiles, logger: logger}
	ok := false
	defer func() {
		if !ok {
			_ = e.Close()
		}
	}()

	base, err := e.buildProvider(ctx, opts)
	if err != nil {
		return nil, err
	}
	provider := e.decorate(base, opts)
	docEmbedder := domain.NewInstructionEmbedder(provider, opts.Embedding.DocumentInstruction)
	queryEmbedder := domain.NewInstructionEmbedder(provider, opts.Embedding.QueryInstruction)

	dims := documentuc.Dimensions{Dense: opts.Embedding.DenseDimensions, Tokens: opts.Embedding.TokenDimensions}
	e.docs = documentuc.New(documentrepo.New(store), catalog, docEmbedder, provider, dims, logger).
		WithPassageWorkers(opts.Ingest.PassageWorkers)
	e.search = searchuc.New(
		catalog, profiles,
		ranking.NewEngine(ranking.WithRRFK(opts.Ranking.RRFK)),
		queryEmbedder, provider,
		searchuc.Config{DefaultProfile: opts.Search.DefaultProfile, Timeout: opts.Search.Timeout()},
		logger,
	)
	e.batch, err = batchuc.New(e.docs,
		batchuc.WithWorkers(opts.Ingest.Workers),
		batchuc.WithMaxBatchSize(opts.Ingest.MaxBatchSize),
		batchuc.WithLogger(logger),
	)
	if err != nil {
		return nil, fmt.Errorf("bookrec: %w", err)
	}
	e.health = healthuc.New(store, healthChecker{base}, catalog)

	n, err := e.docs.Rebuild(ctx)
	if err != nil {
		return nil, fmt.Errorf("bookrec: %w", err)
	}
	logger.Info("engine opened",
		zap.String("driver", opts.Store.Driver),
		zap.String("provider", opts.Embedding.Provider),
		zap.Int("documents", n),
	)
	ok = true
	return e, nil
}

func buildProfiles(cfg config.RankingConfig) (*ranking.Registry, error) {
	profiles, err := ranking.Overrides{RerankCount: cfg.RerankCount, TargetHits: cfg.TargetHits}.Apply(ranking.Builtin())
	if err != nil {
		return nil, fmt.Errorf("ranking overrides: %w", err)
	}
	return ranking.NewRegistry(profiles)
}

func catalogConfig(opts Options) index.Config {
	return index.Config{
		HNSW: hnsw.Config{
			Dim:            opts.Embedding.DenseDimensions,
			M:              opts.Index.HNSWM,
			EfConstruction: opts.Index.HNSWEFConstruct,
			EfSearch:       opts.Index.HNSWEFSearch,
			Seed:           opts.Index.HNSWSeed,
		},
		BM25:        text.Params{K1: opts.Index.BM25K1, B: opts.Index.BM25B},
		TokenDim:    opts.Embedding.TokenDimensions,
		VacuumRatio: opts.Index.VacuumRatio,
	}
}

func openStore(ctx context.Context, cfg config.StoreConfig, logger *zap.Logger) (db.Store, error) {
	switch cfg.Driver {
	case config.DriverBadger:
		if cfg.Path == "" {
			return nil, errors.New("bookrec: store path required for badger")
		}
		s, err := dbBadger.Open(dbBadger.Config{Path: cfg.Path, Logger: logger})
		if err != nil {
			return nil, fmt.Errorf("bookrec: open badger store: %w", err)
		}
		return s, nil
	case config.DriverMemory:
		s, err := dbBadger.Open(dbBadger.Config{InMemory: true, Logger: logger})
		if err != nil {
			return nil, fmt.Errorf("bookrec: open memory store: %w", err)
		}
		return s, nil
	case config.DriverBolt:
		if cfg.Path == "" {
			return nil, errors.New("bookrec: store path required for bolt")
		}
		s, err := dbBolt.Open(dbBolt.Config{Path: cfg.Path})
		if err != nil {
			return nil, fmt.Errorf("bookrec: open bolt store: %w", err)
		}
		return s, nil
	case config.DriverRedis:
		s, err := dbRedis.NewStore(dbRedis.Config{Addrs: cfg.Addrs, Password: cfg.Password})
		if err != nil {
			return nil, fmt.Errorf("bookrec: create redis store: %w", err)
		}
		if err := s.WaitForReady(ctx, readinessTimeout); err != nil {
			_ = s.Close()
			return nil, fmt.Errorf("bookrec: redis not ready: %w", err)
		}
		return s, nil
	default:
		return nil, fmt.Errorf("bookrec: unknown store driver %q", cfg.Driver)
	}
}

// buildProvider creates the base embedding backend.
func (e *Engine) buildProvider(ctx context.Context, opts Options) (domain.Provider, error) {
	if opts.Provider != nil {
		return opts.Provider, nil
	}
	emb := opts.Embedding
	switch emb.Provider {
	case config.ProviderHashing:
		return hashing.New(emb.DenseDimensions, emb.TokenDimensions), nil
	case config.ProviderOpenAI:
		return openaiEmb.NewEmbedder(&openaiEmb.Config{
			APIKey:          emb.APIKey,
			BaseURL:         emb.BaseURL,
			Model:           emb.Model,
			Dimensions:      emb.DenseDimensions,
			TokenDimensions: emb.TokenDimensions,
			Logger:          e.logger,
		}), nil
	case config.ProviderLangchain:
		p, err := langchainEmb.NewEmbedder(&langchainEmb.Config{
			BaseURL:         emb.BaseURL,
			APIKey:          emb.APIKey,
			Model:           emb.Model,
			TokenDimensions: emb.TokenDimensions,
			Logger:          e.logger,
		})
		if err != nil {
			return nil, fmt.Errorf("bookrec: langchain embedder: %w", err)
		}
		return p, nil
	}
	return nil, fmt.Errorf("bookrec: unknown embedding provider %q", emb.Provider)
}

// decorate assembles base -> cache -> instrumented -> rate limit. The instruction
// prefix is applied per role by the caller.
func (e *Engine) decorate(base domain.Provider, opts Options) domain.Provider {
	emb := opts.Embedding
	p := base
	if emb.Cache.Enabled() {
		cache, err := dbRedis.NewStore(dbRedis.Config{Addrs: emb.Cache.Addrs, Password: emb.Cache.Password})
		if err != nil {
			e.logger.Warn("embedding cache disabled", zap.Error(err))
		} else {
			e.cache = cache
			ttl := time.Duration(emb.Cache.TTLHours) * time.Hour
			p = embcache.New(p, cache, emb.Provider+":"+emb.Model, ttl, metrics.EmbeddingCacheTotal, e.logger)
		}
	}
	p = embeddinguc.NewInstrumentedEmbedder(p, emb.Provider, emb.Model,
		embeddinguc.Dimensions{Dense: emb.DenseDimensions, Tokens: emb.TokenDimensions}, e.logger)
	if emb.RateLimitRPS > 0 {
		p = embeddinguc.NewRateLimitedEmbedder(p, emb.RateLimitRPS, emb.RateLimitBurst)
	}
	return p
}

// Close releases the worker pool and closes the stores.
func (e *Engine) Close() error {
	if e.batch != nil {
		e.batch.Release()
	}
	var errs []error
	if e.cache != nil {
		errs = append(errs, e.cache.Close())
	}
	if e.store != nil {
		errs = append(errs, e.store.Close())
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("bookrec: close: %w", err)
	}
	return nil
}

// Ping checks store connectivity.
func (e *Engine) Ping(ctx context.Context) error {
	if err := e.store.Ping(ctx); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	return nil
}

// Stats reports index sizes.
func (e *Engine) Stats() index.Stats { return e.catalog.Stats() }

// Handler returns the HTTP API. Writes require one of apiKeys when any is set.
func (e *Engine) Handler(apiKeys []string) http.Handler {
	srv := chiTransport.NewServer(e.docs, e.search, e.batch, e.health, e.logger)
	return srv.Router(chiTransport.Options{APIKeys: apiKeys})
}

// healthChecker probes the base provider when it supports it.
type healthChecker struct {
	provider domain.Provider
}

func (h healthChecker) HealthCheck(ctx context.Context) error {
	if hc, ok := h.provider.(domain.HealthChecker); ok {
		if err := hc.HealthCheck(ctx); err != nil {
			return fmt.Errorf("embedding health check: %w", err)
		}
	}
	return nil
}
