package chi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/kailas-cloud/bookrec/internal/domain"
	dombatch "github.com/kailas-cloud/bookrec/internal/domain/batch"
	domdoc "github.com/kailas-cloud/bookrec/internal/domain/document"
	"github.com/kailas-cloud/bookrec/internal/domain/search/request"
	"github.com/kailas-cloud/bookrec/internal/domain/search/result"
	"github.com/kailas-cloud/bookrec/internal/ranking"
	healthuc "github.com/kailas-cloud/bookrec/internal/usecase/health"
)

// --- fakes ---

type fakeDocuments struct {
	docs   map[string]domdoc.Document
	putErr error
}

func (f *fakeDocuments) Put(ctx context.Context, doc domdoc.Document) error {
	if f.putErr != nil {
		return f.putErr
	}
	domain.UsageFromContext(ctx).AddTokens(12)
	f.docs[doc.ID()] = doc
	return nil
}

func (f *fakeDocuments) Get(_ context.Context, id string) (domdoc.Document, error) {
	d, ok := f.docs[id]
	if !ok {
		return domdoc.Document{}, fmt.Errorf("get document: %w", domain.ErrDocumentNotFound)
	}
	return d, nil
}

func (f *fakeDocuments) Delete(_ context.Context, id string) error {
	if _, ok := f.docs[id]; !ok {
		return fmt.Errorf("delete document: %w", domain.ErrDocumentNotFound)
	}
	delete(f.docs, id)
	return nil
}

type fakeSearch struct {
	last    request.Request
	results []result.Result
	err     error
}

func (f *fakeSearch) Execute(ctx context.Context, req request.Request) ([]result.Result, error) {
	f.last = req
	if f.err != nil {
		return nil, f.err
	}
	domain.UsageFromContext(ctx).AddTokens(3)
	return f.results, nil
}

func (f *fakeSearch) Profiles() []ranking.Profile { return ranking.Builtin() }

type fakeBatch struct {
	ingested []dombatch.Record
	deleted  []string
}

func (f *fakeBatch) Ingest(_ context.Context, records []dombatch.Record) dombatch.Report {
	f.ingested = records
	results := make([]dombatch.Result, len(records))
	for i, r := range records {
		if r.ID == "" {
			results[i] = dombatch.NewError(r.ID, fmt.Errorf("id is required: %w", domain.ErrInvalidDocument))
			continue
		}
		results[i] = dombatch.NewOK(r.ID)
	}
	return dombatch.NewReport("b-1", results)
}

func (f *fakeBatch) Delete(_ context.Context, ids []string) dombatch.Report {
	f.deleted = ids
	results := make([]dombatch.Result, len(ids))
	for i, id := range ids {
		results[i] = dombatch.NewOK(id)
	}
	return dombatch.NewReport("b-2", results)
}

type fakeHealth struct{ report healthuc.Report }

func (f *fakeHealth) Check(context.Context) healthuc.Report { return f.report }

type fixture struct {
	docs    *fakeDocuments
	search  *fakeSearch
	batch   *fakeBatch
	health  *fakeHealth
	handler http.Handler
}

func newFixture(apiKeys ...string) *fixture {
	f := &fixture{
		docs:   &fakeDocuments{docs: map[string]domdoc.Document{}},
		search: &fakeSearch{},
		batch:  &fakeBatch{},
		health: &fakeHealth{report: healthuc.Report{
			Status: healthuc.Healthy,
			Checks: map[string]healthuc.CheckResult{"store": healthuc.CheckOK},
		}},
	}
	srv := NewServer(f.docs, f.search, f.batch, f.health, nil)
	f.handler = srv.Router(Options{APIKeys: apiKeys})
	return f
}

func (f *fixture) do(method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, http.NoBody)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	f.handler.ServeHTTP(rr, req)
	return rr
}

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode error response: %v", err)
	}
	return resp
}

// --- search ---

func TestSearch_OK(t *testing.T) {
	f := newFixture()
	f.search.results = []result.Result{
		result.New("7", 1.5, map[string]any{"title": "Dune"}, map[string]float64{"bm25sum": 1.5}),
	}

	rr := f.do("GET", "/search?q=desert+planet&profile=bm25&limit=5&fields=id,title&target_hits=20&ef=64", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, body %s", rr.Code, rr.Body)
	}
	var resp SearchResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Total != 1 || resp.Items[0].ID != "7" || resp.Items[0].Fields["title"] != "Dune" {
		t.Errorf("unexpected response: %+v", resp)
	}
	if resp.Profile != "bm25" || resp.Limit != 5 {
		t.Errorf("profile/limit: %+v", resp)
	}
	if got := f.search.last.Fields(); len(got) != 2 || got[1] != "title" {
		t.Errorf("fields: got %v", got)
	}
	if f.search.last.TargetHits() != 20 || f.search.last.Ef() != 64 {
		t.Errorf("target_hits/ef not forwarded: %d %d", f.search.last.TargetHits(), f.search.last.Ef())
	}
	if rr.Header().Get("X-Embedding-Tokens") != "3" {
		t.Errorf("X-Embedding-Tokens: got %q", rr.Header().Get("X-Embedding-Tokens"))
	}
}

func TestSearch_ParameterErrors(t *testing.T) {
	tests := []struct {
		name   string
		target string
		code   ErrorCode
	}{
		{"missing query", "/search", ErrorCodeEmptyQuery},
		{"blank query", "/search?q=++", ErrorCodeEmptyQuery},
		{"non numeric limit", "/search?q=dune&limit=ten", ErrorCodeBadRequest},
		{"unknown field", "/search?q=dune&fields=isbn", ErrorCodeValidationFailed},
		{"negative ef", "/search?q=dune&ef=-1", ErrorCodeValidationFailed},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rr := newFixture().do("GET", tc.target, "")
			if rr.Code != http.StatusBadRequest {
				t.Fatalf("status: got %d, want 400", rr.Code)
			}
			if got := decodeError(t, rr).Code; got != tc.code {
				t.Errorf("code: got %s, want %s", got, tc.code)
			}
		})
	}
}

func TestSearch_DomainErrors(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   ErrorCode
	}{
		{"unknown profile", fmt.Errorf("%w: %q", domain.ErrProfileNotFound, "bm26"), http.StatusBadRequest, ErrorCodeProfileNotFound},
		{"broken profile", domain.ErrUndeclaredInput, http.StatusInternalServerError, ErrorCodeInternalError},
		{"rate limited", fmt.Errorf("%w: %w", domain.ErrEmbeddingUnavailable, domain.ErrRateLimited), http.StatusTooManyRequests, ErrorCodeRateLimited},
		{"embedding down", fmt.Errorf("vectorize query: %w", domain.ErrEmbeddingUnavailable), http.StatusBadGateway, ErrorCodeEmbeddingUnavailable},
		{"deadline", context.DeadlineExceeded, http.StatusServiceUnavailable, ErrorCodeTimeout},
		{"unexpected", errors.New("boom"), http.StatusInternalServerError, ErrorCodeInternalError},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture()
			f.search.err = tc.err
			rr := f.do("GET", "/search?q=dune", "")
			if rr.Code != tc.status {
				t.Fatalf("status: got %d, want %d", rr.Code, tc.status)
			}
			resp := decodeError(t, rr)
			if resp.Code != tc.code {
				t.Errorf("code: got %s, want %s", resp.Code, tc.code)
			}
			if tc.code == ErrorCodeInternalError && strings.Contains(resp.Message, "boom") {
				t.Errorf("internal error leaked: %q", resp.Message)
			}
		})
	}
}

func TestListProfiles(t *testing.T) {
	rr := newFixture().do("GET", "/profiles", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d", rr.Code)
	}
	var profiles []ProfileResponse
	if err := json.NewDecoder(rr.Body).Decode(&profiles); err != nil {
		t.Fatalf("decode: %v", err)
	}
	byName := make(map[string]ProfileResponse, len(profiles))
	for _, p := range profiles {
		byName[p.Name] = p
	}
	if len(byName) != len(ranking.Builtin()) {
		t.Errorf("got %d profiles", len(byName))
	}
	local, ok := byName[ranking.ProfileColbertLocal]
	if !ok || local.Second == nil || local.Second.RerankCount == 0 {
		t.Errorf("colbert_local must expose its second phase: %+v", local)
	}
	fusion := byName[ranking.ProfileFusion]
	if fusion.Global == nil || len(fusion.Global.Expressions) < 2 {
		t.Errorf("fusion must expose its global signals: %+v", fusion)
	}
}

// --- documents ---

func TestDocument_PutGetDelete(t *testing.T) {
	f := newFixture()

	body := `{"title":"Dune","authors":["Frank Herbert"],"categories":"Fiction","description":["Desert planet."]}`
	rr := f.do("PUT", "/documents/1", body)
	if rr.Code != http.StatusOK {
		t.Fatalf("put: got %d, body %s", rr.Code, rr.Body)
	}
	if rr.Header().Get("X-Embedding-Tokens") != "12" {
		t.Errorf("X-Embedding-Tokens: got %q", rr.Header().Get("X-Embedding-Tokens"))
	}

	rr = f.do("GET", "/documents/1", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("get: got %d", rr.Code)
	}
	var doc DocumentResponse
	if err := json.NewDecoder(rr.Body).Decode(&doc); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if doc.ID != "1" || doc.Title != "Dune" || doc.Authors != "Frank Herbert" || len(doc.Description) != 1 {
		t.Errorf("unexpected document: %+v", doc)
	}

	if rr = f.do("DELETE", "/documents/1", ""); rr.Code != http.StatusNoContent {
		t.Fatalf("delete: got %d", rr.Code)
	}
	rr = f.do("GET", "/documents/1", "")
	if rr.Code != http.StatusNotFound || decodeError(t, rr).Code != ErrorCodeDocumentNotFound {
		t.Errorf("get after delete: got %d", rr.Code)
	}
	if rr = f.do("DELETE", "/documents/1", ""); rr.Code != http.StatusNotFound {
		t.Errorf("second delete: got %d", rr.Code)
	}
}

func TestDocument_PutInvalid(t *testing.T) {
	f := newFixture()
	if rr := f.do("PUT", "/documents/1", `{not json`); rr.Code != http.StatusBadRequest {
		t.Errorf("malformed body: got %d", rr.Code)
	}
	rr := f.do("PUT", "/documents/1", `{"title":"Dune","description":42}`)
	if rr.Code != http.StatusBadRequest || decodeError(t, rr).Code != ErrorCodeValidationFailed {
		t.Errorf("bad description: got %d", rr.Code)
	}
}

func TestDocument_PutEmbeddingUnavailable(t *testing.T) {
	f := newFixture()
	f.docs.putErr = fmt.Errorf("vectorize document: %w", domain.ErrEmbeddingUnavailable)
	rr := f.do("PUT", "/documents/1", `{"title":"Dune"}`)
	if rr.Code != http.StatusBadGateway {
		t.Fatalf("status: got %d", rr.Code)
	}
	if _, ok := f.docs.docs["1"]; ok {
		t.Error("document must not be stored")
	}
}

// --- batch ---

func TestBatch_Upsert(t *testing.T) {
	f := newFixture()
	body := `{"upsert":[{"id":"1","title":"Dune"},{"id":2,"title":"Emma"},{"title":"No id"}]}`
	rr := f.do("POST", "/documents:batch", body)
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, body %s", rr.Code, rr.Body)
	}
	var resp BatchResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.BatchID != "b-1" || resp.Succeeded != 2 || resp.Failed != 1 || len(resp.Items) != 3 {
		t.Fatalf("unexpected report: %+v", resp)
	}
	if resp.Items[2].Cause != string(domain.CauseInvalidDocument) || resp.Items[2].Error == "" {
		t.Errorf("failed item: %+v", resp.Items[2])
	}
	if f.batch.ingested[1].ID != "2" {
		t.Errorf("numeric id: got %q", f.batch.ingested[1].ID)
	}
	if _, ok := f.batch.ingested[0].Fields["id"]; ok {
		t.Error("id must be split off the fields")
	}
}

func TestBatch_Delete(t *testing.T) {
	f := newFixture()
	rr := f.do("POST", "/documents:batch", `{"delete":["1","2"]}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d", rr.Code)
	}
	if len(f.batch.deleted) != 2 {
		t.Errorf("deleted: got %v", f.batch.deleted)
	}
}

func TestBatch_RequiresExactlyOneOperation(t *testing.T) {
	f := newFixture()
	for _, body := range []string{`{}`, `{"upsert":[{"id":"1"}],"delete":["2"]}`} {
		if rr := f.do("POST", "/documents:batch", body); rr.Code != http.StatusBadRequest {
			t.Errorf("%s: got %d", body, rr.Code)
		}
	}
}

// --- health, auth, routing ---

func TestHealthCheck(t *testing.T) {
	f := newFixture()
	f.health.report.Index.Documents = 4
	rr := f.do("GET", "/health", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("healthy: got %d", rr.Code)
	}
	var resp HealthResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Status != "ok" || resp.Documents != 4 || resp.Checks["store"] != "ok" {
		t.Errorf("unexpected health: %+v", resp)
	}

	f.health.report.Status = healthuc.Degraded
	if rr = f.do("GET", "/health", ""); rr.Code != http.StatusOK {
		t.Errorf("degraded: got %d", rr.Code)
	}
	f.health.report.Status = healthuc.Unhealthy
	if rr = f.do("GET", "/health", ""); rr.Code != http.StatusServiceUnavailable {
		t.Errorf("unhealthy: got %d", rr.Code)
	}
}

func TestRouter_WritesRequireKey(t *testing.T) {
	f := newFixture("secret")
	if rr := f.do("PUT", "/documents/1", `{"title":"Dune"}`); rr.Code != http.StatusUnauthorized {
		t.Errorf("unauthenticated write: got %d", rr.Code)
	}
	if rr := f.do("GET", "/search?q=dune", ""); rr.Code != http.StatusOK {
		t.Errorf("public read: got %d", rr.Code)
	}

	req := httptest.NewRequest("PUT", "/documents/1", strings.NewReader(`{"title":"Dune"}`))
	req.Header.Set("Authorization", "Bearer secret")
	rr := httptest.NewRecorder()
	f.handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Errorf("authenticated write: got %d", rr.Code)
	}
}

func TestRouter_NotFoundIsJSON(t *testing.T) {
	rr := newFixture().do("GET", "/shelves", "")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("status: got %d", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("content type: got %q", ct)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	rr := newFixture().do("GET", "/metrics", "")
	if rr.Code != http.StatusOK {
		t.Errorf("metrics: got %d", rr.Code)
	}
}
