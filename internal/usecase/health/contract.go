package health

import (
	"context"

	"github.com/kailas-cloud/bookrec/internal/index"
)

// StorePinger checks document store availability.
type StorePinger interface {
	Ping(ctx context.Context) error
}

// EmbeddingChecker checks embedding provider availability.
type EmbeddingChecker interface {
	HealthCheck(ctx context.Context) error
}

// IndexStats reports index sizes.
type IndexStats interface {
	Stats() index.Stats
}
