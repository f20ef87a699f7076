package batch

import (
	"context"

	domdoc "github.com/kailas-cloud/bookrec/internal/domain/document"
)

// DocumentWriter embeds, stores and publishes single documents.
type DocumentWriter interface {
	Put(ctx context.Context, doc domdoc.Document) error
	Delete(ctx context.Context, id string) error
}
