package document

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"

	"github.com/kailas-cloud/bookrec/internal/domain"
	domdoc "github.com/kailas-cloud/bookrec/internal/domain/document"
	"github.com/kailas-cloud/bookrec/internal/index"
	"github.com/kailas-cloud/bookrec/internal/index/hnsw"
	"github.com/kailas-cloud/bookrec/internal/transport/hashing"
)

const (
	testDenseDim = 8
	testTokenDim = 4
)

// --- Mocks ---

type memRepo struct {
	mu       sync.Mutex
	docs     map[string]domdoc.Embedded
	putErr   error
	puts     int
	scanning bool
}

func newMemRepo() *memRepo { return &memRepo{docs: make(map[string]domdoc.Embedded)} }

func (m *memRepo) Put(_ context.Context, e domdoc.Embedded) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.putErr != nil {
		return m.putErr
	}
	// bolt runs Scan inside a read transaction; writing from the callback deadlocks
	if m.scanning {
		return errors.New("write during scan")
	}
	m.puts++
	m.docs[e.Doc.ID()] = e
	return nil
}

func (m *memRepo) Get(_ context.Context, id string) (domdoc.Embedded, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.docs[id]
	if !ok {
		return domdoc.Embedded{}, domain.ErrDocumentNotFound
	}
	return e, nil
}

func (m *memRepo) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.docs[id]; !ok {
		return domain.ErrDocumentNotFound
	}
	delete(m.docs, id)
	return nil
}

func (m *memRepo) Scan(_ context.Context, fn func(domdoc.Embedded) error) error {
	m.mu.Lock()
	ids := make([]string, 0, len(m.docs))
	for id := range m.docs {
		ids = append(ids, id)
	}
	m.scanning = true
	m.mu.Unlock()
	defer func() {
		m.mu.Lock()
		m.scanning = false
		m.mu.Unlock()
	}()
	sort.Strings(ids)
	for _, id := range ids {
		m.mu.Lock()
		e := m.docs[id]
		m.mu.Unlock()
		if err := fn(e); err != nil {
			return err
		}
	}
	return nil
}

// countingProvider wraps the hashing embedder and counts calls.
type countingProvider struct {
	inner  *hashing.Embedder
	mu     sync.Mutex
	dense  int
	tokens int
	err    error
}

func (p *countingProvider) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	p.mu.Lock()
	p.dense++
	err := p.err
	p.mu.Unlock()
	if err != nil {
		return domain.EmbeddingResult{}, err
	}
	return p.inner.Embed(ctx, text)
}

func (p *countingProvider) EmbedTokens(ctx context.Context, text string) (domain.TokenEmbeddingResult, error) {
	p.mu.Lock()
	p.tokens++
	p.mu.Unlock()
	return p.inner.EmbedTokens(ctx, text)
}

func (p *countingProvider) calls() (dense, tokens int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.dense, p.tokens
}

// batchingProvider adds a native batch call to countingProvider.
type batchingProvider struct {
	*countingProvider
	batches [][]string
}

func (p *batchingProvider) BatchEmbed(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	p.mu.Lock()
	p.batches = append(p.batches, texts)
	p.mu.Unlock()
	out := domain.BatchEmbeddingResult{Embeddings: make([][]float32, len(texts))}
	for i, text := range texts {
		res, err := p.inner.Embed(ctx, text)
		if err != nil {
			return domain.BatchEmbeddingResult{}, err
		}
		out.Embeddings[i] = res.Embedding
	}
	return out, nil
}

type fixture struct {
	svc      *Service
	repo     *memRepo
	catalog  *index.Catalog
	provider *countingProvider
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cfg := index.DefaultConfig()
	cfg.HNSW = hnsw.DefaultConfig(testDenseDim)
	cfg.TokenDim = testTokenDim
	catalog, err := index.NewCatalog(cfg, nil)
	if err != nil {
		t.Fatalf("NewCatalog: %v", err)
	}
	repo := newMemRepo()
	p := &countingProvider{inner: hashing.New(testDenseDim, testTokenDim)}
	svc := New(repo, catalog, p, p, Dimensions{Dense: testDenseDim, Tokens: testTokenDim}, nil)
	return &fixture{svc: svc, repo: repo, catalog: catalog, provider: p}
}

func makeDoc(t *testing.T, id, title string, description ...string) domdoc.Document {
	t.Helper()
	d, err := domdoc.New(id, title, "Frank Herbert", "Fiction", description)
	if err != nil {
		t.Fatalf("domdoc.New: %v", err)
	}
	return d
}
