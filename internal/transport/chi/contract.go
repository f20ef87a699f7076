package chi

import (
	"context"

	dombatch "github.com/kailas-cloud/bookrec/internal/domain/batch"
	domdoc "github.com/kailas-cloud/bookrec/internal/domain/document"
	"github.com/kailas-cloud/bookrec/internal/domain/search/request"
	"github.com/kailas-cloud/bookrec/internal/domain/search/result"
	"github.com/kailas-cloud/bookrec/internal/ranking"
	healthuc "github.com/kailas-cloud/bookrec/internal/usecase/health"
)

// DocumentService handles single-document writes and reads.
type DocumentService interface {
	Put(ctx context.Context, doc domdoc.Document) error
	Get(ctx context.Context, id string) (domdoc.Document, error)
	Delete(ctx context.Context, id string) error
}

// SearchService executes queries.
type SearchService interface {
	Execute(ctx context.Context, req request.Request) ([]result.Result, error)
	Profiles() []ranking.Profile
}

// BatchService ingests and deletes documents in bulk.
type BatchService interface {
	Ingest(ctx context.Context, records []dombatch.Record) dombatch.Report
	Delete(ctx context.Context, ids []string) dombatch.Report
}

// HealthService aggregates dependency checks.
type HealthService interface {
	Check(ctx context.Context) healthuc.Report
}
