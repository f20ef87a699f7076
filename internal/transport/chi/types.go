package chi

// ErrorCode is the machine readable error code of an ErrorResponse.
type ErrorCode string

// Error codes.
const (
	ErrorCodeBadRequest           ErrorCode = "bad_request"
	ErrorCodeUnauthorized         ErrorCode = "unauthorized"
	ErrorCodeValidationFailed     ErrorCode = "validation_failed"
	ErrorCodeEmptyQuery           ErrorCode = "empty_query"
	ErrorCodeProfileNotFound      ErrorCode = "profile_not_found"
	ErrorCodeDocumentNotFound     ErrorCode = "document_not_found"
	ErrorCodeRateLimited          ErrorCode = "rate_limited"
	ErrorCodeEmbeddingUnavailable ErrorCode = "embedding_unavailable"
	ErrorCodeTimeout              ErrorCode = "timeout"
	ErrorCodeInternalError        ErrorCode = "internal_error"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

// DocumentResponse is a stored book.
type DocumentResponse struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Authors     string   `json:"authors,omitempty"`
	Categories  string   `json:"categories,omitempty"`
	Description []string `json:"description,omitempty"`
}

// SearchHit is one ranked result.
type SearchHit struct {
	ID       string             `json:"id"`
	Score    float64            `json:"score"`
	Fields   map[string]any     `json:"fields"`
	Features map[string]float64 `json:"features,omitempty"`
}

// SearchResponse is the body of GET /search.
type SearchResponse struct {
	Profile string      `json:"profile,omitempty"`
	Items   []SearchHit `json:"items"`
	Limit   int         `json:"limit"`
	Total   int         `json:"total"`
}

// PhaseResponse describes a rerank phase of a profile.
type PhaseResponse struct {
	Expressions []string `json:"expressions"`
	RerankCount int      `json:"rerank_count"`
}

// ProfileResponse describes a ranking profile.
type ProfileResponse struct {
	Name       string         `json:"name"`
	Match      string         `json:"match"`
	Inputs     []string       `json:"inputs"`
	TargetHits int            `json:"target_hits,omitempty"`
	First      string         `json:"first_phase"`
	Second     *PhaseResponse `json:"second_phase,omitempty"`
	Global     *PhaseResponse `json:"global_phase,omitempty"`
}

// BatchRequest is the body of POST /documents:batch. Each upsert item carries its
// id next to the book fields.
type BatchRequest struct {
	Upsert []map[string]any `json:"upsert,omitempty"`
	Delete []string         `json:"delete,omitempty"`
}

// BatchItem is the outcome of one batch item.
type BatchItem struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Cause  string `json:"cause,omitempty"`
	Error  string `json:"error,omitempty"`
}

// BatchResponse reports per-item outcomes in request order.
type BatchResponse struct {
	BatchID   string      `json:"batch_id"`
	Succeeded int         `json:"succeeded"`
	Failed    int         `json:"failed"`
	Items     []BatchItem `json:"items"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status     string            `json:"status"`
	Checks     map[string]string `json:"checks"`
	Documents  int               `json:"documents"`
	Tombstones int               `json:"tombstones"`
}
