package bookrec

import (
	"context"
	"fmt"

	"github.com/kailas-cloud/bookrec/internal/domain/search/request"
	"github.com/kailas-cloud/bookrec/internal/domain/search/result"
	"github.com/kailas-cloud/bookrec/internal/ranking"
)

// Profile names accepted by Query.Profile.
const (
	ProfileBM25              = ranking.ProfileBM25
	ProfileSemantic          = ranking.ProfileSemantic
	ProfileFusion            = ranking.ProfileFusion
	ProfileBM25Semantic      = ranking.ProfileBM25Semantic
	ProfileColbertLocal      = ranking.ProfileColbertLocal
	ProfileColbertGlobal     = ranking.ProfileColbertGlobal
	ProfileBM25Colbert       = ranking.ProfileBM25Colbert
	ProfileBM25ColbertGlobal = ranking.ProfileBM25ColbertGlobal
)

// Query configures a search. Zero values take the engine defaults.
type Query struct {
	Text       string
	Profile    string
	Limit      int      // default 10, max 100
	Fields     []string // output fields, all when empty
	TargetHits int      // ANN candidates for semantic profiles
	Ef         int      // ANN search breadth
}

// Hit is one ranked result. Features holds the raw signals the profile computed.
type Hit struct {
	ID       string
	Score    float64
	Fields   map[string]any
	Features map[string]float64
}

// Search ranks the corpus for q.
func (e *Engine) Search(ctx context.Context, q Query) ([]Hit, error) {
	req, err := request.New(q.Text, q.Profile, q.Limit, q.Fields, q.TargetHits, q.Ef)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	results, err := e.search.Execute(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	return fromResults(results), nil
}

// Profiles lists the registered ranking profile names.
func (e *Engine) Profiles() []string {
	list := e.profiles.List()
	out := make([]string, len(list))
	for i, p := range list {
		out[i] = p.Name
	}
	return out
}

func fromResults(results []result.Result) []Hit {
	out := make([]Hit, len(results))
	for i := range results {
		r := &results[i]
		out[i] = Hit{
			ID:       r.ID(),
			Score:    r.Score(),
			Fields:   r.Fields(),
			Features: r.Features(),
		}
	}
	return out
}
