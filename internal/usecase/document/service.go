package document

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kailas-cloud/bookrec/internal/domain"
	domdoc "github.com/kailas-cloud/bookrec/internal/domain/document"
	"github.com/kailas-cloud/bookrec/internal/logger"
	"github.com/kailas-cloud/bookrec/internal/metrics"
)

const (
	// defaultPassageWorkers bounds concurrent token embedding calls per document.
	defaultPassageWorkers = 4
	// rebuildBatchSize is the number of documents per dense batch call during Rebuild.
	rebuildBatchSize = 64
)

// Dimensions are the embedding shapes the indexes expect.
type Dimensions struct {
	Dense  int
	Tokens int
}

// Service handles document writes with automatic vectorization.
//
// Embedding runs outside any lock. Persisting and publishing one id is serialised by
// the catalog's keyed lock, so the last completed write of an id wins in both the
// store and the indexes.
type Service struct {
	repo    Repository
	catalog Indexer
	dense   domain.Embedder
	tokens  domain.TokenEmbedder
	dims    Dimensions
	workers int
	logger  *zap.Logger
}

// New creates a document service. dense should already prepend the document
// instruction.
func New(
	repo Repository, catalog Indexer, dense domain.Embedder, tokens domain.TokenEmbedder,
	dims Dimensions, logger *zap.Logger,
) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		repo:    repo,
		catalog: catalog,
		dense:   dense,
		tokens:  tokens,
		dims:    dims,
		workers: defaultPassageWorkers,
		logger:  logger,
	}
}

// WithPassageWorkers bounds concurrent token embedding calls per document.
func (s *Service) WithPassageWorkers(n int) *Service {
	if n > 0 {
		s.workers = n
	}
	return s
}

// Put embeds, persists and publishes doc, replacing any previous version.
func (s *Service) Put(ctx context.Context, doc domdoc.Document) error {
	e, err := s.embed(ctx, doc)
	if err != nil {
		return err
	}
	if err := s.write(ctx, e, true); err != nil {
		return err
	}
	s.afterWrite()
	return nil
}

// Get returns the stored version of id.
func (s *Service) Get(ctx context.Context, id string) (domdoc.Document, error) {
	e, err := s.repo.Get(ctx, id)
	if err != nil {
		return domdoc.Document{}, fmt.Errorf("get document: %w", err)
	}
	return e.Doc, nil
}

// Delete removes id from the store and from every index.
func (s *Service) Delete(ctx context.Context, id string) error {
	unlock := s.catalog.Lock(id)
	err := s.repo.Delete(ctx, id)
	if err == nil || errors.Is(err, domain.ErrDocumentNotFound) {
		// an index entry without a stored document is stale either way
		if s.catalog.Remove(id) && err != nil {
			err = nil
		}
	}
	unlock()
	if err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	s.afterWrite()
	return nil
}

// Rebuild publishes every stored document into the indexes. Stored vectors are
// reused when their shape matches. Other documents are collected during the scan
// and embedded again, in batches, once the scan has returned: drivers may hold a
// read transaction for the whole scan, so nothing is written from inside it.
// Returns the number of published documents.
func (s *Service) Rebuild(ctx context.Context) (int, error) {
	log := logger.FromContext(ctx)
	var (
		published int
		stale     []domdoc.Document
	)
	err := s.repo.Scan(ctx, func(e domdoc.Embedded) error {
		if !s.reusable(e) {
			stale = append(stale, e.Doc)
			return nil
		}
		if err := s.write(ctx, e, false); err != nil {
			return err
		}
		published++
		return nil
	})
	if err != nil {
		s.afterWrite()
		return published, fmt.Errorf("rebuild indexes: %w", err)
	}

	for start := 0; start < len(stale); start += rebuildBatchSize {
		chunk := stale[start:min(start+rebuildBatchSize, len(stale))]
		embedded, err := s.embedBatch(ctx, chunk)
		if err != nil {
			s.afterWrite()
			return published, fmt.Errorf("rebuild indexes: re-embed: %w", err)
		}
		for _, e := range embedded {
			if err := s.write(ctx, e, true); err != nil {
				s.afterWrite()
				return published, fmt.Errorf("rebuild indexes: %w", err)
			}
			published++
		}
	}
	s.afterWrite()
	log.Info("indexes rebuilt", zap.Int("documents", published), zap.Int("reembedded", len(stale)))
	return published, nil
}

// embedBatch embeds the dense texts of docs in one batch call, then the passages of
// each document.
func (s *Service) embedBatch(ctx context.Context, docs []domdoc.Document) ([]domdoc.Embedded, error) {
	texts := make([]string, len(docs))
	for i, d := range docs {
		texts[i] = d.DenseText()
	}
	dense, err := domain.EmbedBatch(ctx, s.dense, texts)
	if err != nil {
		return nil, fmt.Errorf("vectorize documents: %w", err)
	}
	out := make([]domdoc.Embedded, len(docs))
	for i, d := range docs {
		tokens, err := s.embedPassages(ctx, d)
		if err != nil {
			return nil, fmt.Errorf("document %q: %w", d.ID(), err)
		}
		out[i] = domdoc.Embedded{Doc: d, Dense: dense.Embeddings[i], Tokens: tokens}
	}
	return out, nil
}

// embedPassages computes one token sequence per passage concurrently.
func (s *Service) embedPassages(ctx context.Context, doc domdoc.Document) ([][][]float32, error) {
	passages := doc.Description()
	tokens := make([][][]float32, len(passages))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for i, p := range passages {
		g.Go(func() error {
			res, err := s.tokens.EmbedTokens(gctx, p)
			if err != nil {
				return fmt.Errorf("vectorize passage %d: %w", i, err)
			}
			tokens[i] = res.Tokens
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return tokens, nil
}

// embed computes the dense vector and the passage token sequences concurrently.
func (s *Service) embed(ctx context.Context, doc domdoc.Document) (domdoc.Embedded, error) {
	e := domdoc.Embedded{Doc: doc}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		res, err := s.dense.Embed(gctx, doc.DenseText())
		if err != nil {
			return fmt.Errorf("vectorize document: %w", err)
		}
		e.Dense = res.Embedding
		return nil
	})
	g.Go(func() error {
		tokens, err := s.embedPassages(gctx, doc)
		e.Tokens = tokens
		return err
	})
	if err := g.Wait(); err != nil {
		return domdoc.Embedded{}, err
	}
	return e, nil
}

// write publishes e under the id lock, persisting it first when persist is set.
// A failed persist leaves the previous version visible.
func (s *Service) write(ctx context.Context, e domdoc.Embedded, persist bool) error {
	unlock := s.catalog.Lock(e.Doc.ID())
	defer unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	p, err := s.catalog.Prepare(e.Doc, e.Dense, e.Tokens)
	if err != nil {
		return fmt.Errorf("prepare %q: %w", e.Doc.ID(), err)
	}
	if persist {
		if err := s.repo.Put(ctx, e); err != nil {
			s.catalog.Abort(p)
			return fmt.Errorf("store document: %w", err)
		}
	}
	s.catalog.Publish(p)
	return nil
}

func (s *Service) reusable(e domdoc.Embedded) bool {
	if domain.CheckDimensions(e.Dense, s.dims.Dense) != nil {
		return false
	}
	if len(e.Tokens) != e.Doc.PassageCount() {
		return false
	}
	for _, passage := range e.Tokens {
		for _, tok := range passage {
			if len(tok) != s.dims.Tokens {
				return false
			}
		}
	}
	return true
}

func (s *Service) afterWrite() {
	if purged := s.catalog.MaybeVacuum(); purged > 0 {
		s.logger.Debug("ann graph vacuumed", zap.Int("purged", purged))
	}
	st := s.catalog.Stats()
	metrics.IndexDocuments.Set(float64(st.Documents))
	metrics.ANNTombstones.Set(float64(st.Tombstones))
}
