package index

import (
	"github.com/kailas-cloud/bookrec/internal/domain/document"
	"github.com/kailas-cloud/bookrec/internal/index/hnsw"
	"github.com/kailas-cloud/bookrec/internal/index/text"
)

// View is a read-only handle valid only inside Catalog.View.
type View struct {
	c *Catalog
}

// Document returns the published version of id.
func (v View) Document(id string) (document.Document, bool) {
	d, ok := v.c.docs[id]
	return d, ok
}

// Len returns the number of published documents.
func (v View) Len() int { return len(v.c.docs) }

// MatchText returns ids with any of terms in any of fields.
func (v View) MatchText(terms []string, fields []text.Field) map[string]struct{} {
	return v.c.text.Match(terms, fields)
}

// BM25 returns the weighted BM25 sum of id.
func (v View) BM25(id string, terms []string, weights map[text.Field]float64) float64 {
	return v.c.text.Score(id, terms, weights)
}

// Nearest returns up to k approximate nearest neighbours of q.
func (v View) Nearest(q []float32, k, ef int) ([]hnsw.Neighbor, error) {
	return v.c.vectors.Search(q, k, ef)
}

// Closeness recomputes the exact closeness of id to q.
func (v View) Closeness(id string, q []float32) (float64, bool) {
	return v.c.vectors.Closeness(id, q)
}

// MaxSimLocal is the best single-passage late-interaction score of id.
func (v View) MaxSimLocal(id string, q [][]float32) (float64, bool) {
	return v.c.late.MaxSimLocal(id, q)
}

// MaxSimGlobal is the cross-passage late-interaction score of id.
func (v View) MaxSimGlobal(id string, q [][]float32) (float64, bool) {
	return v.c.late.MaxSimGlobal(id, q)
}
