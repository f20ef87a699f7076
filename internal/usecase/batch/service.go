package batch

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"

	"github.com/kailas-cloud/bookrec/internal/domain"
	dombatch "github.com/kailas-cloud/bookrec/internal/domain/batch"
	domdoc "github.com/kailas-cloud/bookrec/internal/domain/document"
	"github.com/kailas-cloud/bookrec/internal/logger"
	"github.com/kailas-cloud/bookrec/internal/metrics"
)

// Service ingests batches of records with per-item error reporting. Items are
// processed concurrently on a bounded worker pool; one bad record never aborts
// the others.
type Service struct {
	docs         DocumentWriter
	pool         *ants.Pool
	maxBatchSize int
	logger       *zap.Logger
}

// Option configures a Service.
type Option func(*Service) error

// WithWorkers sets the worker pool size. Default is runtime.NumCPU() / 2, min 1.
func WithWorkers(n int) Option {
	return func(s *Service) error {
		if n < 1 {
			n = 1
		}
		pool, err := ants.NewPool(n)
		if err != nil {
			return fmt.Errorf("create worker pool: %w", err)
		}
		if s.pool != nil {
			s.pool.Release()
		}
		s.pool = pool
		return nil
	}
}

// WithMaxBatchSize rejects larger batches whole. 0 means unlimited.
func WithMaxBatchSize(n int) Option {
	return func(s *Service) error {
		if n < 0 {
			return fmt.Errorf("max batch size must not be negative: %d", n)
		}
		s.maxBatchSize = n
		return nil
	}
}

// WithLogger sets the fallback logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Service) error {
		if l != nil {
			s.logger = l
		}
		return nil
	}
}

// New creates a batch service. Call Release when done.
func New(docs DocumentWriter, opts ...Option) (*Service, error) {
	size := max(runtime.NumCPU()/2, 1)
	pool, err := ants.NewPool(size)
	if err != nil {
		return nil, fmt.Errorf("create worker pool: %w", err)
	}
	s := &Service{docs: docs, pool: pool, logger: zap.NewNop()}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			s.Release()
			return nil, err
		}
	}
	return s, nil
}

// Release stops the worker pool.
func (s *Service) Release() {
	if s.pool != nil {
		s.pool.Release()
	}
}

// Ingest validates, embeds and publishes every record. Results keep input order.
// Once the provider reports a rate limit, items not yet started fail with the same
// error instead of hammering it.
func (s *Service) Ingest(ctx context.Context, records []dombatch.Record) dombatch.Report {
	batchID := uuid.NewString()
	log := s.log(ctx).With(zap.String("batch_id", batchID))
	results := make([]dombatch.Result, len(records))

	if s.maxBatchSize > 0 && len(records) > s.maxBatchSize {
		err := fmt.Errorf("batch size %d exceeds %d: %w", len(records), s.maxBatchSize, domain.ErrInvalidDocument)
		for i, r := range records {
			results[i] = dombatch.NewError(r.ID, err)
		}
		return s.report(log, batchID, results)
	}

	var (
		wg     sync.WaitGroup
		halted atomic.Pointer[error]
	)
	for i, rec := range records {
		wg.Add(1)
		task := func() {
			defer wg.Done()
			results[i] = s.ingestOne(ctx, rec, &halted)
		}
		if err := s.pool.Submit(task); err != nil {
			wg.Done()
			results[i] = dombatch.NewError(rec.ID, fmt.Errorf("submit: %w", err))
		}
	}
	wg.Wait()
	return s.report(log, batchID, results)
}

func (s *Service) ingestOne(ctx context.Context, rec dombatch.Record, halted *atomic.Pointer[error]) dombatch.Result {
	if errp := halted.Load(); errp != nil {
		return dombatch.NewError(rec.ID, *errp)
	}
	if err := ctx.Err(); err != nil {
		return dombatch.NewError(rec.ID, err)
	}
	doc, err := domdoc.FromFields(rec.ID, rec.Fields)
	if err != nil {
		return dombatch.NewError(rec.ID, err)
	}
	if err := s.docs.Put(ctx, doc); err != nil {
		if errors.Is(err, domain.ErrRateLimited) {
			halted.CompareAndSwap(nil, &err)
		}
		return dombatch.NewError(rec.ID, err)
	}
	return dombatch.NewOK(rec.ID)
}

// Delete removes documents by id. Results keep input order.
func (s *Service) Delete(ctx context.Context, ids []string) dombatch.Report {
	batchID := uuid.NewString()
	log := s.log(ctx).With(zap.String("batch_id", batchID))
	results := make([]dombatch.Result, len(ids))

	var wg sync.WaitGroup
	for i, id := range ids {
		wg.Add(1)
		task := func() {
			defer wg.Done()
			if err := s.docs.Delete(ctx, id); err != nil {
				results[i] = dombatch.NewError(id, err)
				return
			}
			results[i] = dombatch.NewOK(id)
		}
		if err := s.pool.Submit(task); err != nil {
			wg.Done()
			results[i] = dombatch.NewError(id, fmt.Errorf("submit: %w", err))
		}
	}
	wg.Wait()
	return s.report(log, batchID, results)
}

func (s *Service) report(log *zap.Logger, batchID string, results []dombatch.Result) dombatch.Report {
	r := dombatch.NewReport(batchID, results)
	for _, res := range results {
		metrics.IngestItemsTotal.WithLabelValues(string(res.Status()), string(res.Cause())).Inc()
		if res.Err() != nil {
			log.Debug("batch item failed", zap.String("id", res.ID()), zap.Error(res.Err()))
		}
	}
	log.Info("batch processed",
		zap.Int("items", len(results)),
		zap.Int("succeeded", r.Succeeded),
		zap.Int("failed", r.Failed),
	)
	return r
}

func (s *Service) log(ctx context.Context) *zap.Logger {
	if l := logger.FromContext(ctx); l.Core().Enabled(zap.ErrorLevel) {
		return l
	}
	return s.logger
}
