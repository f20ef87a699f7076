package search

import (
	"context"

	"github.com/kailas-cloud/bookrec/internal/index"
	"github.com/kailas-cloud/bookrec/internal/ranking"
)

// Catalog is the read side of the index catalog.
type Catalog interface {
	View(fn func(v index.View) error) error
}

// Profiles resolves ranking profiles by name.
type Profiles interface {
	Get(name string) (ranking.Profile, error)
	List() []ranking.Profile
}

// Ranker orders a candidate set under a profile.
type Ranker interface {
	Rank(ctx context.Context, p ranking.Profile, candidates []string, sig ranking.Signals) ([]ranking.Scored, error)
}
