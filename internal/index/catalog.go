// Package index ties the inverted, ANN and late-interaction indexes into one catalog
// whose per-document updates become visible atomically.
package index

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/kailas-cloud/bookrec/internal/domain"
	"github.com/kailas-cloud/bookrec/internal/domain/document"
	"github.com/kailas-cloud/bookrec/internal/index/colbert"
	"github.com/kailas-cloud/bookrec/internal/index/hnsw"
	"github.com/kailas-cloud/bookrec/internal/index/text"
)

// Config holds catalog parameters.
type Config struct {
	HNSW        hnsw.Config
	BM25        text.Params
	TokenDim    int
	VacuumRatio float64 // vacuum the ANN graph once tombstones exceed this share; 0 disables
}

// DefaultConfig returns the book corpus defaults: 384-dim dense, 16-dim tokens.
func DefaultConfig() Config {
	return Config{
		HNSW:        hnsw.DefaultConfig(domain.DenseDimensions),
		BM25:        text.DefaultParams(),
		TokenDim:    domain.TokenDimensions,
		VacuumRatio: 0.2,
	}
}

// Stats is a point-in-time view of index sizes.
type Stats struct {
	Documents     int
	TextDocuments int
	Vectors       int
	LateDocuments int
	Tombstones    int
}

// Catalog owns the three indexes and the published copy of each document.
//
// Writers build entries with Prepare outside the lock, then Publish swaps all of them
// in under mu. Readers run inside View under the read lock and observe whole versions.
// The ANN graph does its own node-local locking, so Prepare never blocks searches.
type Catalog struct {
	cfg    Config
	logger *zap.Logger
	keys   *KeyedMutex

	mu      sync.RWMutex
	docs    map[string]document.Document
	text    *text.Index
	late    *colbert.Index
	vectors *hnsw.Index
}

// NewCatalog creates an empty catalog.
func NewCatalog(cfg Config, logger *zap.Logger) (*Catalog, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.TokenDim <= 0 {
		return nil, fmt.Errorf("token dimension must be positive, got %d", cfg.TokenDim)
	}
	vectors, err := hnsw.New(cfg.HNSW)
	if err != nil {
		return nil, fmt.Errorf("create ann index: %w", err)
	}
	return &Catalog{
		cfg:     cfg,
		logger:  logger,
		keys:    NewKeyedMutex(),
		docs:    make(map[string]document.Document),
		text:    text.New(cfg.BM25),
		late:    colbert.New(),
		vectors: vectors,
	}, nil
}

// Lock serialises writers of one id. Different ids never contend.
func (c *Catalog) Lock(id string) (unlock func()) { return c.keys.Lock(id) }

// Prepared is a document version built off to the side, not yet visible.
type Prepared struct {
	doc    document.Document
	text   *text.Entry
	late   *colbert.Entry
	handle hnsw.Handle
	done   bool
}

// ID returns the document id.
func (p *Prepared) ID() string { return p.doc.ID() }

// Prepare analyses the document and links its vector into the ANN graph as a pending
// node. Nothing becomes visible until Publish.
func (c *Catalog) Prepare(doc document.Document, dense []float32, tokens [][][]float32) (*Prepared, error) {
	if len(tokens) != doc.PassageCount() {
		return nil, fmt.Errorf("token passages: expected %d, got %d: %w",
			doc.PassageCount(), len(tokens), domain.ErrEmbeddingUnavailable)
	}
	late, err := colbert.NewEntry(doc.ID(), tokens, c.cfg.TokenDim)
	if err != nil {
		return nil, fmt.Errorf("token embeddings: %w", err)
	}
	h, err := c.vectors.Insert(doc.ID(), dense)
	if err != nil {
		return nil, fmt.Errorf("dense embedding: %w", err)
	}
	return &Prepared{doc: doc, text: text.Analyze(doc), late: late, handle: h}, nil
}

// Publish makes the prepared version visible in all three indexes at once and retires
// the previous version.
func (c *Catalog) Publish(p *Prepared) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if p.done {
		return
	}
	p.done = true
	c.text.Put(p.text)
	c.late.Put(p.late)
	c.vectors.Publish(p.handle)
	c.docs[p.doc.ID()] = p.doc
}

// Abort discards a prepared version that will not be published.
func (c *Catalog) Abort(p *Prepared) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if p.done {
		return
	}
	p.done = true
	c.vectors.Discard(p.handle)
}

// Remove unpublishes id from every index. Reports whether it was present.
func (c *Catalog) Remove(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.docs[id]
	delete(c.docs, id)
	c.text.Remove(id)
	c.late.Remove(id)
	c.vectors.Delete(id)
	return ok
}

// View runs fn under the read lock. fn must not call back into write methods.
func (c *Catalog) View(fn func(v View) error) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return fn(View{c: c})
}

// Stats returns index sizes.
func (c *Catalog) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Stats{
		Documents:     len(c.docs),
		TextDocuments: c.text.Len(),
		Vectors:       c.vectors.Len(),
		LateDocuments: c.late.Len(),
		Tombstones:    c.vectors.Tombstones(),
	}
}

// MaybeVacuum repairs the ANN graph once the tombstone share passes VacuumRatio.
// Returns the number of purged nodes.
func (c *Catalog) MaybeVacuum() int {
	if c.cfg.VacuumRatio <= 0 || c.vectors.TombstoneRatio() < c.cfg.VacuumRatio {
		return 0
	}
	purged := c.vectors.Vacuum()
	if purged > 0 {
		c.logger.Debug("ann vacuum", zap.Int("purged", purged))
	}
	return purged
}
