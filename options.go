package bookrec

import (
	"go.uber.org/zap"

	"github.com/kailas-cloud/bookrec/internal/config"
	"github.com/kailas-cloud/bookrec/internal/domain"
)

// Options configures an Engine. The sections match the YAML configuration; zero
// values take the same defaults.
type Options struct {
	Store     config.StoreConfig
	Embedding config.EmbeddingConfig
	Index     config.IndexConfig
	Ranking   config.RankingConfig
	Search    config.SearchConfig
	Ingest    config.IngestConfig

	// Provider replaces the configured embedding backend. The cache, metrics, rate
	// limit and instruction decorators still apply.
	Provider domain.Provider
	Logger   *zap.Logger
}

// FromConfig builds Options from a loaded configuration file.
func FromConfig(cfg config.Config) Options {
	return Options{
		Store:     cfg.Store,
		Embedding: cfg.Embedding,
		Index:     cfg.Index,
		Ranking:   cfg.Ranking,
		Search:    cfg.Search,
		Ingest:    cfg.Ingest,
	}
}

func (o Options) withDefaults() Options {
	cfg := config.Config{
		Store:     o.Store,
		Embedding: o.Embedding,
		Index:     o.Index,
		Ranking:   o.Ranking,
		Search:    o.Search,
		Ingest:    o.Ingest,
	}
	cfg.ApplyDefaults()
	o.Store, o.Embedding, o.Index = cfg.Store, cfg.Embedding, cfg.Index
	o.Ranking, o.Search, o.Ingest = cfg.Ranking, cfg.Search, cfg.Ingest
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	return o
}
