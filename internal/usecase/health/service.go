package health

import (
	"context"

	"github.com/kailas-cloud/bookrec/internal/index"
)

// Status represents the aggregated health status.
type Status string

const (
	// Healthy indicates all components are operational.
	Healthy Status = "ok"
	// Degraded indicates partial failure.
	Degraded Status = "degraded"
	// Unhealthy indicates total failure.
	Unhealthy Status = "error"
)

// CheckResult represents an individual component health check outcome.
type CheckResult string

const (
	// CheckOK indicates a passing health check.
	CheckOK CheckResult = "ok"
	// CheckError indicates a failing health check.
	CheckError CheckResult = "error"
)

// Report aggregates health check results.
type Report struct {
	Status Status
	Checks map[string]CheckResult
	Index  index.Stats
}

// Service coordinates health checks.
type Service struct {
	store     StorePinger
	embedding EmbeddingChecker
	index     IndexStats
}

// New creates a Service. embedding and idx can be nil.
func New(store StorePinger, embedding EmbeddingChecker, idx IndexStats) *Service {
	return &Service{store: store, embedding: embedding, index: idx}
}

// Check runs health checks against all components.
func (s *Service) Check(ctx context.Context) Report {
	checks := make(map[string]CheckResult)

	if err := s.store.Ping(ctx); err != nil {
		checks["store"] = CheckError
	} else {
		checks["store"] = CheckOK
	}

	if s.embedding != nil {
		if err := s.embedding.HealthCheck(ctx); err != nil {
			checks["embedding"] = CheckError
		} else {
			checks["embedding"] = CheckOK
		}
	}

	// any failed dependency degrades; all of them failing is unhealthy
	status := Healthy
	failed := 0
	for _, v := range checks {
		if v == CheckError {
			status = Degraded
			failed++
		}
	}
	if failed == len(checks) && len(checks) > 1 {
		status = Unhealthy
	}

	r := Report{Status: status, Checks: checks}
	if s.index != nil {
		r.Index = s.index.Stats()
	}
	return r
}
