package chi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/oapi-codegen/runtime"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kailas-cloud/bookrec/internal/domain"
	dombatch "github.com/kailas-cloud/bookrec/internal/domain/batch"
	domdoc "github.com/kailas-cloud/bookrec/internal/domain/document"
	"github.com/kailas-cloud/bookrec/internal/domain/search/request"
	"github.com/kailas-cloud/bookrec/internal/metrics"
	"github.com/kailas-cloud/bookrec/internal/ranking"
	healthuc "github.com/kailas-cloud/bookrec/internal/usecase/health"
)

// maxBodyBytes caps request bodies (batch feeds included).
const maxBodyBytes = 32 << 20

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error) bool

// Server serves the search and document API.
type Server struct {
	documents     DocumentService
	search        SearchService
	batch         BatchService
	health        HealthService
	logger        *zap.Logger
	errorHandlers []errorHandler
}

// NewServer creates an HTTP API server.
func NewServer(
	documents DocumentService,
	search SearchService,
	batch BatchService,
	health HealthService,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		documents: documents,
		search:    search,
		batch:     batch,
		health:    health,
		logger:    logger,
	}
	// order matters: ErrProfileNotFound is an ErrConfiguration, rate limits are
	// reported as unavailable embeddings
	s.errorHandlers = []errorHandler{
		sentinelHandler(domain.ErrEmptyQuery, http.StatusBadRequest, ErrorCodeEmptyQuery),
		sentinelHandler(domain.ErrProfileNotFound, http.StatusBadRequest, ErrorCodeProfileNotFound),
		sentinelHandler(domain.ErrInvalidDocument, http.StatusBadRequest, ErrorCodeValidationFailed),
		sentinelHandler(domain.ErrDocumentNotFound, http.StatusNotFound, ErrorCodeDocumentNotFound),
		sentinelHandler(domain.ErrRateLimited, http.StatusTooManyRequests, ErrorCodeRateLimited),
		sentinelHandler(domain.ErrEmbeddingUnavailable, http.StatusBadGateway, ErrorCodeEmbeddingUnavailable),
		sentinelHandler(domain.ErrVectorDimMismatch, http.StatusBadGateway, ErrorCodeEmbeddingUnavailable),
		sentinelHandler(context.DeadlineExceeded, http.StatusServiceUnavailable, ErrorCodeTimeout),
	}
	return s
}

// Options configures the router.
type Options struct {
	APIKeys []string
}

// Router builds the chi router with the standard middleware stack.
func (s *Server) Router(opts Options) http.Handler {
	r := chi.NewRouter()
	r.Use(JSONRecoverer(s.logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(WideEventMiddleware(s.logger))
	r.Use(BearerAuthMiddleware(opts.APIKeys))
	r.Use(metrics.Middleware())

	r.Get("/search", s.Search)
	r.Get("/profiles", s.ListProfiles)
	r.Post("/documents:batch", s.Batch)
	r.Put("/documents/{id}", s.PutDocument)
	r.Get("/documents/{id}", s.GetDocument)
	r.Delete("/documents/{id}", s.DeleteDocument)
	r.Get("/health", s.HealthCheck)
	r.Handle("/metrics", promhttp.Handler())

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, ErrorCodeBadRequest, "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, ErrorCodeBadRequest, "method not allowed")
	})
	return r
}

// Search handles GET /search?q=&profile=&limit=&fields=&target_hits=&ef=.
func (s *Server) Search(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	var (
		q, profile      string
		limit, hits, ef int
		fields          []string
	)
	params := []struct {
		name string
		dest any
	}{
		{"q", &q}, {"profile", &profile}, {"limit", &limit},
		{"target_hits", &hits}, {"ef", &ef}, {"fields", &fields},
	}
	for _, p := range params {
		if err := runtime.BindQueryParameter("form", false, false, p.name, query, p.dest); err != nil {
			writeError(w, http.StatusBadRequest, ErrorCodeBadRequest, fmt.Sprintf("invalid parameter %s", p.name))
			return
		}
	}

	req, err := request.New(q, profile, limit, fields, hits, ef)
	if err != nil {
		if errors.Is(err, domain.ErrEmptyQuery) {
			s.handleDomainError(w, err)
			return
		}
		writeError(w, http.StatusBadRequest, ErrorCodeValidationFailed, err.Error())
		return
	}

	ctx, usage := domain.NewContextWithUsage(r.Context())
	results, err := s.search.Execute(ctx, req)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	items := make([]SearchHit, len(results))
	for i := range results {
		items[i] = SearchHit{
			ID:       results[i].ID(),
			Score:    results[i].Score(),
			Fields:   results[i].Fields(),
			Features: results[i].Features(),
		}
	}

	setEmbeddingHeaders(w, usage)
	writeJSON(w, http.StatusOK, SearchResponse{
		Profile: req.Profile(),
		Items:   items,
		Limit:   req.Limit(),
		Total:   len(items),
	})
}

// ListProfiles handles GET /profiles.
func (s *Server) ListProfiles(w http.ResponseWriter, _ *http.Request) {
	profiles := s.search.Profiles()
	items := make([]ProfileResponse, len(profiles))
	for i, p := range profiles {
		items[i] = profileToResponse(p)
	}
	writeJSON(w, http.StatusOK, items)
}

// PutDocument handles PUT /documents/{id}.
func (s *Server) PutDocument(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var fields map[string]any
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&fields); err != nil {
		writeError(w, http.StatusBadRequest, ErrorCodeBadRequest, "Invalid request body: "+err.Error())
		return
	}
	doc, err := domdoc.FromFields(id, fields)
	if err != nil {
		writeError(w, http.StatusBadRequest, ErrorCodeValidationFailed, err.Error())
		return
	}

	ctx, usage := domain.NewContextWithUsage(r.Context())
	if err := s.documents.Put(ctx, doc); err != nil {
		s.handleDomainError(w, err)
		return
	}
	setEmbeddingHeaders(w, usage)
	writeJSON(w, http.StatusOK, documentToResponse(doc))
}

// GetDocument handles GET /documents/{id}.
func (s *Server) GetDocument(w http.ResponseWriter, r *http.Request) {
	doc, err := s.documents.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, documentToResponse(doc))
}

// DeleteDocument handles DELETE /documents/{id}.
func (s *Server) DeleteDocument(w http.ResponseWriter, r *http.Request) {
	if err := s.documents.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.handleDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Batch handles POST /documents:batch. A request carries either upserts or deletes.
func (s *Server) Batch(w http.ResponseWriter, r *http.Request) {
	var req BatchRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, ErrorCodeBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if (len(req.Upsert) == 0) == (len(req.Delete) == 0) {
		writeError(w, http.StatusBadRequest, ErrorCodeValidationFailed, "exactly one of upsert or delete is required")
		return
	}

	var report dombatch.Report
	if len(req.Delete) > 0 {
		report = s.batch.Delete(r.Context(), req.Delete)
	} else {
		records := make([]dombatch.Record, len(req.Upsert))
		for i, item := range req.Upsert {
			records[i] = recordFromItem(item)
		}
		ctx, usage := domain.NewContextWithUsage(r.Context())
		report = s.batch.Ingest(ctx, records)
		setEmbeddingHeaders(w, usage)
	}

	resp := BatchResponse{
		BatchID:   report.BatchID,
		Succeeded: report.Succeeded,
		Failed:    report.Failed,
		Items:     make([]BatchItem, len(report.Results)),
	}
	for i, res := range report.Results {
		resp.Items[i] = batchResultToResponse(res)
	}
	writeJSON(w, http.StatusOK, resp)
}

// HealthCheck handles GET /health.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	checks := make(map[string]string, len(report.Checks))
	for k, v := range report.Checks {
		checks[k] = string(v)
	}

	httpStatus := http.StatusOK
	if report.Status == healthuc.Unhealthy {
		httpStatus = http.StatusServiceUnavailable
	}
	writeJSON(w, httpStatus, HealthResponse{
		Status:     string(report.Status),
		Checks:     checks,
		Documents:  report.Index.Documents,
		Tombstones: report.Index.Tombstones,
	})
}

func setEmbeddingHeaders(w http.ResponseWriter, usage *domain.EmbeddingUsage) {
	if tokens, used := usage.Snapshot(); used {
		w.Header().Set("X-Embedding-Tokens", strconv.Itoa(tokens))
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code ErrorCode, message string) {
	writeJSON(w, status, ErrorResponse{Code: code, Message: message})
}

// safeDomainMessage returns a sentinel error message for the client without exposing internals.
func safeDomainMessage(err error, sentinel error) string {
	var itemErr *domain.IngestionItemError
	switch {
	case errors.Is(sentinel, domain.ErrInvalidDocument), errors.Is(sentinel, domain.ErrProfileNotFound):
		return err.Error()
	case errors.As(err, &itemErr):
		return string(itemErr.Cause)
	}
	return sentinel.Error()
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
func sentinelHandler(sentinel error, status int, code ErrorCode) errorHandler {
	return func(w http.ResponseWriter, err error) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, safeDomainMessage(err, sentinel))
		return true
	}
}

func (s *Server) handleDomainError(w http.ResponseWriter, err error) {
	s.logger.Warn("domain error", zap.Error(err))
	for _, h := range s.errorHandlers {
		if h(w, err) {
			return
		}
	}
	s.logger.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, ErrorCodeInternalError, "internal error")
}

func documentToResponse(doc domdoc.Document) DocumentResponse {
	return DocumentResponse{
		ID:          doc.ID(),
		Title:       doc.Title(),
		Authors:     doc.Authors(),
		Categories:  doc.Categories(),
		Description: doc.Description(),
	}
}

func profileToResponse(p ranking.Profile) ProfileResponse {
	resp := ProfileResponse{
		Name:       p.Name,
		Match:      string(p.Match),
		Inputs:     make([]string, len(p.Inputs)),
		TargetHits: p.TargetHits,
		First:      string(p.First),
	}
	for i, in := range p.Inputs {
		resp.Inputs[i] = string(in)
	}
	if p.Second != nil {
		resp.Second = &PhaseResponse{
			Expressions: []string{string(p.Second.Expression)},
			RerankCount: p.Second.RerankCount,
		}
	}
	if p.Global != nil {
		g := &PhaseResponse{RerankCount: p.Global.RerankCount}
		for _, x := range p.Global.Signals {
			g.Expressions = append(g.Expressions, string(x))
		}
		resp.Global = g
	}
	return resp
}

// recordFromItem splits the id off a flat batch item. Numeric JSON ids are accepted.
func recordFromItem(item map[string]any) dombatch.Record {
	var id string
	switch v := item[domdoc.FieldID].(type) {
	case string:
		id = strings.TrimSpace(v)
	case float64:
		id = strconv.FormatFloat(v, 'f', -1, 64)
	}
	fields := make(map[string]any, len(item))
	for k, v := range item {
		if k != domdoc.FieldID {
			fields[k] = v
		}
	}
	return dombatch.Record{ID: id, Fields: fields}
}

func batchResultToResponse(r dombatch.Result) BatchItem {
	item := BatchItem{ID: r.ID(), Status: string(r.Status()), Cause: string(r.Cause())}
	if r.Err() != nil {
		var itemErr *domain.IngestionItemError
		if errors.As(r.Err(), &itemErr) && itemErr.Cause == domain.CauseInvalidDocument {
			item.Error = itemErr.Err.Error()
		} else {
			item.Error = string(r.Cause())
		}
	}
	return item
}
