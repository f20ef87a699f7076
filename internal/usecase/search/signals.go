package search

import (
	"github.com/kailas-cloud/bookrec/internal/index"
	"github.com/kailas-cloud/bookrec/internal/index/text"
)

// querySignals evaluates one query's features against the published indexes.
// Valid only inside the Catalog.View call that created it.
type querySignals struct {
	view   index.View
	terms  []string
	vector []float32
	tokens [][]float32
}

func (q querySignals) BM25Sum(id string) float64 {
	return q.view.BM25(id, q.terms, text.DefaultWeights)
}

func (q querySignals) Closeness(id string) (float64, bool) {
	if q.vector == nil {
		return 0, false
	}
	return q.view.Closeness(id, q.vector)
}

func (q querySignals) MaxSimLocal(id string) (float64, bool) {
	return q.view.MaxSimLocal(id, q.tokens)
}

func (q querySignals) MaxSimGlobal(id string) (float64, bool) {
	return q.view.MaxSimGlobal(id, q.tokens)
}
