package search

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kailas-cloud/bookrec/internal/domain"
	"github.com/kailas-cloud/bookrec/internal/domain/document"
	"github.com/kailas-cloud/bookrec/internal/domain/search/request"
	"github.com/kailas-cloud/bookrec/internal/domain/search/result"
	"github.com/kailas-cloud/bookrec/internal/index"
	"github.com/kailas-cloud/bookrec/internal/index/text"
	"github.com/kailas-cloud/bookrec/internal/logger"
	"github.com/kailas-cloud/bookrec/internal/metrics"
	"github.com/kailas-cloud/bookrec/internal/ranking"
	"github.com/kailas-cloud/bookrec/internal/tokenize"
)

// Config holds orchestrator settings.
type Config struct {
	DefaultProfile string
	Timeout        time.Duration // 0 disables the deadline
}

// Service resolves a profile, embeds the query, matches candidates and ranks them.
type Service struct {
	catalog  Catalog
	profiles Profiles
	ranker   Ranker
	dense    domain.Embedder
	tokens   domain.TokenEmbedder
	cfg      Config
	logger   *zap.Logger
}

// New creates a search service. dense should already prepend the query instruction.
func New(
	catalog Catalog, profiles Profiles, ranker Ranker,
	dense domain.Embedder, tokens domain.TokenEmbedder, cfg Config, logger *zap.Logger,
) *Service {
	if cfg.DefaultProfile == "" {
		cfg.DefaultProfile = ranking.ProfileBM25
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		catalog:  catalog,
		profiles: profiles,
		ranker:   ranker,
		dense:    dense,
		tokens:   tokens,
		cfg:      cfg,
		logger:   logger,
	}
}

// Profiles lists the available ranking profiles.
func (s *Service) Profiles() []ranking.Profile { return s.profiles.List() }

// queryInputs are the per-request tensors a profile may read.
type queryInputs struct {
	vector []float32
	tokens [][]float32
}

// Execute runs req and returns at most req.Limit() hits, best first.
func (s *Service) Execute(ctx context.Context, req request.Request) ([]result.Result, error) {
	start := time.Now()
	name := req.Profile()
	if name == "" {
		name = s.cfg.DefaultProfile
	}
	p, err := s.profiles.Get(name)
	if err != nil {
		metrics.SearchRequestsTotal.WithLabelValues("unknown", "error").Inc()
		return nil, err
	}
	if req.TargetHits() > 0 && p.Match.UsesSemantic() {
		p.TargetHits = req.TargetHits()
	}

	if s.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.Timeout)
		defer cancel()
	}

	results, err := s.execute(ctx, p, req)
	status := "ok"
	if err != nil {
		status = "error"
	}
	metrics.SearchRequestsTotal.WithLabelValues(p.Name, status).Inc()
	metrics.SearchDuration.WithLabelValues(p.Name).Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, err
	}

	logger.FromContext(ctx).Debug("search",
		zap.String("profile", p.Name),
		zap.Int("hits", len(results)),
		zap.Duration("took", time.Since(start)),
	)
	return results, nil
}

func (s *Service) execute(ctx context.Context, p ranking.Profile, req request.Request) ([]result.Result, error) {
	in, err := s.embedQuery(ctx, p, req.Query())
	if err != nil {
		return nil, err
	}
	terms := tokenize.Unique(req.Query())

	var out []result.Result
	err = s.catalog.View(func(v index.View) error {
		candidates, err := match(v, p, terms, in.vector, req.Ef())
		if err != nil {
			return err
		}
		observeCandidates(p, len(candidates))

		sig := querySignals{view: v, terms: terms, vector: in.vector, tokens: in.tokens}
		scored, err := s.ranker.Rank(ctx, p, candidates, sig)
		if err != nil {
			return fmt.Errorf("rank: %w", err)
		}
		out = render(v, scored, req.Limit(), req.Fields())
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// embedQuery computes only the inputs the profile reads, concurrently.
func (s *Service) embedQuery(ctx context.Context, p ranking.Profile, query string) (queryInputs, error) {
	var in queryInputs
	g, gctx := errgroup.WithContext(ctx)
	if p.Needs(ranking.InputQueryVector) {
		g.Go(func() error {
			res, err := s.dense.Embed(gctx, query)
			if err != nil {
				return fmt.Errorf("vectorize query: %w", err)
			}
			in.vector = res.Embedding
			return nil
		})
	}
	if p.Needs(ranking.InputQueryTokens) {
		g.Go(func() error {
			res, err := s.tokens.EmbedTokens(gctx, query)
			if err != nil {
				return fmt.Errorf("vectorize query tokens: %w", err)
			}
			in.tokens = res.Tokens
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(err, ctxErr) {
			return queryInputs{}, fmt.Errorf("%w: %w", err, ctxErr)
		}
		return queryInputs{}, err
	}
	return in, nil
}

// match collects the candidate ids of the profile's match predicate: OR over the
// query terms in the default fieldset, the ANN neighbours, or their union.
func match(v index.View, p ranking.Profile, terms []string, vector []float32, ef int) ([]string, error) {
	seen := make(map[string]struct{})
	if p.Match.UsesLexical() {
		for id := range v.MatchText(terms, text.DefaultMatchFields) {
			seen[id] = struct{}{}
		}
	}
	if p.Match.UsesSemantic() {
		nn, err := v.Nearest(vector, p.TargetHits, ef)
		if err != nil {
			return nil, fmt.Errorf("nearest neighbours: %w", err)
		}
		for _, n := range nn {
			seen[n.ID] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return document.CompareID(out[i], out[j]) < 0 })
	return out, nil
}

func render(v index.View, scored []ranking.Scored, limit int, fields []string) []result.Result {
	out := make([]result.Result, 0, min(limit, len(scored)))
	for _, c := range scored {
		if len(out) == limit {
			break
		}
		doc, ok := v.Document(c.ID)
		if !ok {
			continue
		}
		out = append(out, result.New(c.ID, c.Score, doc.Fields(fields), c.Features))
	}
	return out
}

func observeCandidates(p ranking.Profile, n int) {
	metrics.RankingCandidates.WithLabelValues(p.Name, "first").Observe(float64(n))
	switch {
	case p.Second != nil:
		metrics.RankingCandidates.WithLabelValues(p.Name, "second").Observe(float64(min(n, p.Second.RerankCount)))
	case p.Global != nil:
		metrics.RankingCandidates.WithLabelValues(p.Name, "global").Observe(float64(min(n, p.Global.RerankCount)))
	}
}
