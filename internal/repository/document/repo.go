package document

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/kailas-cloud/bookrec/internal/db"
	"github.com/kailas-cloud/bookrec/internal/domain"
	domdoc "github.com/kailas-cloud/bookrec/internal/domain/document"
)

// KeyPrefix namespaces document keys in a shared store.
const KeyPrefix = "book:"

// store is the consumer interface for documents (ISP).
type store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Scan(ctx context.Context, prefix string, fn db.ScanFunc) error
}

// Repo implements usecase/document.Repository.
type Repo struct {
	store store
}

// New creates a document repository.
func New(s store) *Repo {
	return &Repo{store: s}
}

// Put inserts or replaces a document with its embeddings.
func (r *Repo) Put(ctx context.Context, e domdoc.Embedded) error {
	key := docKey(e.Doc.ID())
	data, err := json.Marshal(toDTO(e))
	if err != nil {
		return fmt.Errorf("marshal document: %w", err)
	}
	if err := r.store.Set(ctx, key, data); err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

// Get returns a document by ID.
func (r *Repo) Get(ctx context.Context, id string) (domdoc.Embedded, error) {
	key := docKey(id)
	raw, err := r.store.Get(ctx, key)
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return domdoc.Embedded{}, domain.ErrDocumentNotFound
		}
		return domdoc.Embedded{}, fmt.Errorf("get %s: %w", key, err)
	}
	return decode(key, raw)
}

// Delete removes a document. Returns ErrDocumentNotFound if it does not exist.
func (r *Repo) Delete(ctx context.Context, id string) error {
	key := docKey(id)
	if _, err := r.store.Get(ctx, key); err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return domain.ErrDocumentNotFound
		}
		return fmt.Errorf("get %s: %w", key, err)
	}
	if err := r.store.Delete(ctx, key); err != nil {
		return fmt.Errorf("del %s: %w", key, err)
	}
	return nil
}

// Scan visits every stored document. Records that fail to decode abort the scan.
func (r *Repo) Scan(ctx context.Context, fn func(domdoc.Embedded) error) error {
	return r.store.Scan(ctx, KeyPrefix, func(key string, val []byte) error {
		e, err := decode(key, val)
		if err != nil {
			return err
		}
		return fn(e)
	})
}

// Count returns the number of stored documents.
func (r *Repo) Count(ctx context.Context) (int, error) {
	n := 0
	err := r.store.Scan(ctx, KeyPrefix, func(string, []byte) error {
		n++
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("count: %w", err)
	}
	return n, nil
}

func decode(key string, raw []byte) (domdoc.Embedded, error) {
	var dto bookDTO
	if err := json.Unmarshal(raw, &dto); err != nil {
		return domdoc.Embedded{}, fmt.Errorf("unmarshal %s: %w", key, err)
	}
	if dto.ID == "" {
		dto.ID = strings.TrimPrefix(key, KeyPrefix)
	}
	e, err := fromDTO(dto)
	if err != nil {
		return domdoc.Embedded{}, fmt.Errorf("decode %s: %w", key, err)
	}
	return e, nil
}

func docKey(id string) string {
	return KeyPrefix + id
}
