package document

import (
	"context"

	domdoc "github.com/kailas-cloud/bookrec/internal/domain/document"
	"github.com/kailas-cloud/bookrec/internal/index"
)

// Repository defines the storage contract for documents and their embeddings.
type Repository interface {
	Put(ctx context.Context, e domdoc.Embedded) error
	Get(ctx context.Context, id string) (domdoc.Embedded, error)
	Delete(ctx context.Context, id string) error
	Scan(ctx context.Context, fn func(domdoc.Embedded) error) error
}

// Indexer is the write side of the index catalog.
type Indexer interface {
	Lock(id string) (unlock func())
	Prepare(doc domdoc.Document, dense []float32, tokens [][][]float32) (*index.Prepared, error)
	Publish(p *index.Prepared)
	Abort(p *index.Prepared)
	Remove(id string) bool
	Stats() index.Stats
	MaybeVacuum() int
}
