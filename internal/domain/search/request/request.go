package request

import (
	"fmt"
	"strings"

	"github.com/kailas-cloud/bookrec/internal/domain"
	"github.com/kailas-cloud/bookrec/internal/domain/document"
)

// Search parameter limits.
const (
	// MaxQueryLength is the maximum allowed search query length.
	MaxQueryLength = 4096
	DefaultLimit   = 10
	MaxLimit       = 100
	MaxTargetHits  = 10000
	MaxEf          = 10000
)

// Request is a validated search query.
type Request struct {
	query      string
	profile    string
	limit      int
	fields     []string
	targetHits int
	ef         int
}

// New validates and normalizes search parameters.
// Blank query is ErrEmptyQuery. limit defaults to 10 and is clamped to 100.
// An empty profile is resolved by the search service. targetHits and ef of 0
// keep the profile and index defaults.
func New(query, profile string, limit int, fields []string, targetHits, ef int) (Request, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return Request{}, domain.ErrEmptyQuery
	}
	if len(query) > MaxQueryLength {
		return Request{}, fmt.Errorf("query too long (max %d chars)", MaxQueryLength)
	}
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	for _, f := range fields {
		if !isField(f) {
			return Request{}, fmt.Errorf("unknown output field %q", f)
		}
	}
	if targetHits < 0 || targetHits > MaxTargetHits {
		return Request{}, fmt.Errorf("target_hits must be between 0 and %d", MaxTargetHits)
	}
	if ef < 0 || ef > MaxEf {
		return Request{}, fmt.Errorf("ef must be between 0 and %d", MaxEf)
	}

	return Request{
		query:      query,
		profile:    strings.TrimSpace(profile),
		limit:      limit,
		fields:     fields,
		targetHits: targetHits,
		ef:         ef,
	}, nil
}

func isField(name string) bool {
	for _, f := range document.AllFields {
		if f == name {
			return true
		}
	}
	return false
}

// Query returns the trimmed query text.
func (r *Request) Query() string { return r.query }

// Profile returns the ranking profile name, possibly empty.
func (r *Request) Profile() string { return r.profile }

// WithProfile returns a copy bound to profile.
func (r Request) WithProfile(profile string) Request {
	r.profile = profile
	return r
}

// Limit returns the maximum number of hits.
func (r *Request) Limit() int { return r.limit }

// Fields returns the requested output fields; empty means all.
func (r *Request) Fields() []string { return r.fields }

// TargetHits overrides the profile's ANN target hits when positive.
func (r *Request) TargetHits() int { return r.targetHits }

// Ef overrides the index's efSearch when positive.
func (r *Request) Ef() int { return r.ef }
