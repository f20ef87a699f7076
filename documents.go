package bookrec

import (
	"context"
	"fmt"

	"github.com/kailas-cloud/bookrec/internal/domain"
	dombatch "github.com/kailas-cloud/bookrec/internal/domain/batch"
	domdoc "github.com/kailas-cloud/bookrec/internal/domain/document"
)

// Errors returned by the engine. Test with errors.Is.
var (
	ErrConfiguration        = domain.ErrConfiguration
	ErrProfileNotFound      = domain.ErrProfileNotFound
	ErrEmbeddingUnavailable = domain.ErrEmbeddingUnavailable
	ErrRateLimited          = domain.ErrRateLimited
	ErrEmptyQuery           = domain.ErrEmptyQuery
	ErrDocumentNotFound     = domain.ErrDocumentNotFound
	ErrInvalidDocument      = domain.ErrInvalidDocument
	ErrIngestionItemFailed  = domain.ErrIngestionItemFailed
)

// Book is a stored document. Description holds one entry per passage.
type Book struct {
	ID          string
	Title       string
	Authors     string
	Categories  string
	Description []string
}

// Record is one feed item: an id plus loosely typed book fields.
type Record struct {
	ID     string
	Fields map[string]any
}

// ItemResult is the outcome of one batch item. Cause is empty on success.
type ItemResult struct {
	ID    string
	OK    bool
	Cause string
	Err   error
}

// Report aggregates a batch. Items keep input order.
type Report struct {
	BatchID   string
	Succeeded int
	Failed    int
	Items     []ItemResult
}

// Put validates, embeds and stores b, replacing any previous version. The book is
// searchable once Put returns.
func (e *Engine) Put(ctx context.Context, b Book) error {
	doc, err := domdoc.New(b.ID, b.Title, b.Authors, b.Categories, b.Description)
	if err != nil {
		return fmt.Errorf("put: %w", err)
	}
	if err := e.docs.Put(ctx, doc); err != nil {
		return fmt.Errorf("put: %w", err)
	}
	return nil
}

// Get returns the latest stored version of id.
func (e *Engine) Get(ctx context.Context, id string) (Book, error) {
	doc, err := e.docs.Get(ctx, id)
	if err != nil {
		return Book{}, fmt.Errorf("get: %w", err)
	}
	return fromDocument(doc), nil
}

// Delete removes id from the store and every index.
func (e *Engine) Delete(ctx context.Context, id string) error {
	if err := e.docs.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete: %w", err)
	}
	return nil
}

// Ingest writes records concurrently. One bad record never aborts the others.
func (e *Engine) Ingest(ctx context.Context, records []Record) Report {
	in := make([]dombatch.Record, len(records))
	for i, r := range records {
		in[i] = dombatch.Record{ID: r.ID, Fields: r.Fields}
	}
	return fromReport(e.batch.Ingest(ctx, in))
}

// DeleteBatch removes ids, reporting each outcome.
func (e *Engine) DeleteBatch(ctx context.Context, ids []string) Report {
	return fromReport(e.batch.Delete(ctx, ids))
}

func fromDocument(doc domdoc.Document) Book {
	return Book{
		ID:          doc.ID(),
		Title:       doc.Title(),
		Authors:     doc.Authors(),
		Categories:  doc.Categories(),
		Description: doc.Description(),
	}
}

func fromReport(r dombatch.Report) Report {
	out := Report{
		BatchID:   r.BatchID,
		Succeeded: r.Succeeded,
		Failed:    r.Failed,
		Items:     make([]ItemResult, len(r.Results)),
	}
	for i, res := range r.Results {
		out.Items[i] = ItemResult{
			ID:    res.ID(),
			OK:    res.Status() == dombatch.StatusOK,
			Cause: string(res.Cause()),
			Err:   res.Err(),
		}
	}
	return out
}
