package ranking

import (
	"context"
	"runtime"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/kailas-cloud/bookrec/internal/domain/document"
	"github.com/kailas-cloud/bookrec/internal/domain/search/result"
)

// Signals evaluates the raw ranking features of one query against one document.
// Implementations must be safe for concurrent reads.
type Signals interface {
	BM25Sum(id string) float64
	Closeness(id string) (float64, bool)
	MaxSimLocal(id string) (float64, bool)
	MaxSimGlobal(id string) (float64, bool)
}

// Scored is a ranked candidate.
type Scored struct {
	ID       string
	Score    float64
	Features map[string]float64
}

const chunkSize = 64

// Option configures an Engine.
type Option func(*Engine)

// WithRRFK sets the reciprocal rank fusion constant.
func WithRRFK(k int) Option {
	return func(e *Engine) {
		if k > 0 {
			e.rrfK = k
		}
	}
}

// WithParallelism bounds the goroutines scoring one phase. 1 scores inline.
func WithParallelism(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.parallelism = n
		}
	}
}

// Engine executes profiles. Stateless between calls; safe for concurrent use.
type Engine struct {
	rrfK        int
	parallelism int
}

// NewEngine creates an Engine with k=60 and GOMAXPROCS workers.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{rrfK: DefaultRRFK, parallelism: runtime.GOMAXPROCS(0)}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Rank runs FirstPhase over every candidate, then the optional SecondPhase or
// GlobalPhase over the top rerank-count window. Candidates past the window keep their
// first-phase score and order. Output is deterministic for the same inputs: every sort
// breaks score ties by ascending id.
func (e *Engine) Rank(ctx context.Context, p Profile, candidates []string, sig Signals) ([]Scored, error) {
	ids := dedupe(candidates)
	if len(ids) == 0 {
		return nil, nil
	}
	out := make([]Scored, len(ids))
	for i, id := range ids {
		out[i] = Scored{ID: id, Features: make(map[string]float64, 4)}
	}

	err := e.each(ctx, len(out), func(i int) {
		out[i].Score = evaluate(p.First, out[i].ID, sig, out[i].Features)
	})
	if err != nil {
		return nil, err
	}
	sortScored(out)

	switch {
	case p.Second != nil:
		err = e.secondPhase(ctx, *p.Second, out, sig)
	case p.Global != nil:
		err = e.globalPhase(ctx, *p.Global, out, sig)
	}
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (e *Engine) secondPhase(ctx context.Context, ph SecondPhase, ranked []Scored, sig Signals) error {
	window := ranked[:min(ph.RerankCount, len(ranked))]
	err := e.each(ctx, len(window), func(i int) {
		window[i].Score = evaluate(ph.Expression, window[i].ID, sig, window[i].Features)
	})
	if err != nil {
		return err
	}
	sortScored(window)
	return nil
}

func (e *Engine) globalPhase(ctx context.Context, ph GlobalPhase, ranked []Scored, sig Signals) error {
	window := ranked[:min(ph.RerankCount, len(ranked))]

	rankings := make([][]string, len(ph.Signals))
	for s, expr := range ph.Signals {
		values := make([]Scored, len(window))
		err := e.each(ctx, len(window), func(i int) {
			values[i] = Scored{ID: window[i].ID, Score: evaluate(expr, window[i].ID, sig, window[i].Features)}
		})
		if err != nil {
			return err
		}
		sortScored(values)
		rankings[s] = make([]string, len(values))
		for i, v := range values {
			rankings[s][i] = v.ID
		}
	}

	byID := make(map[string]Scored, len(window))
	for _, c := range window {
		byID[c.ID] = c
	}
	for i, f := range FuseRRF(e.rrfK, rankings...) {
		c := byID[f.ID]
		c.Score = f.Score
		c.Features[result.FeatureRRF] = f.Score
		window[i] = c
	}
	return nil
}

// each calls fn for 0..n-1, in parallel chunks when worthwhile. fn writes only to its
// own index.
func (e *Engine) each(ctx context.Context, n int, fn func(i int)) error {
	if e.parallelism <= 1 || n <= chunkSize {
		if err := ctx.Err(); err != nil {
			return err
		}
		for i := 0; i < n; i++ {
			fn(i)
		}
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.parallelism)
	for start := 0; start < n; start += chunkSize {
		end := min(start+chunkSize, n)
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			for i := start; i < end; i++ {
				fn(i)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

// evaluate computes expr for id, recording base features. A document without
// passages scores 0 for max-sim and gets no max-sim feature.
func evaluate(expr Expression, id string, sig Signals, features map[string]float64) float64 {
	switch expr {
	case ExprBM25Sum:
		return bm25(id, sig, features)
	case ExprCloseness:
		return closeness(id, sig, features)
	case ExprBM25SumCloseness:
		return bm25(id, sig, features) + closeness(id, sig, features)
	case ExprMaxSimLocal:
		v, ok := sig.MaxSimLocal(id)
		if ok {
			features[result.FeatureMaxSimLocal] = v
		}
		return v
	case ExprMaxSimGlobal:
		v, ok := sig.MaxSimGlobal(id)
		if ok {
			features[result.FeatureMaxSimGlobal] = v
		}
		return v
	}
	return 0
}

func bm25(id string, sig Signals, features map[string]float64) float64 {
	if v, ok := features[result.FeatureBM25Sum]; ok {
		return v
	}
	v := sig.BM25Sum(id)
	features[result.FeatureBM25Sum] = v
	return v
}

// closeness is 0 for documents without a vector, as for lexical-only matches.
func closeness(id string, sig Signals, features map[string]float64) float64 {
	if v, ok := features[result.FeatureCloseness]; ok {
		return v
	}
	v, _ := sig.Closeness(id)
	features[result.FeatureCloseness] = v
	return v
}

func sortScored(s []Scored) {
	sort.Slice(s, func(i, j int) bool {
		if s[i].Score != s[j].Score {
			return s[i].Score > s[j].Score
		}
		return document.CompareID(s[i].ID, s[j].ID) < 0
	})
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return document.CompareID(out[i], out[j]) < 0 })
	return out
}
