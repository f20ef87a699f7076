package batch

import "github.com/kailas-cloud/bookrec/internal/domain"

// ItemStatus is the processing outcome of a single batch item.
type ItemStatus string

// Batch item status values.
const (
	StatusOK    ItemStatus = "ok"
	StatusError ItemStatus = "error"
)

// Record is one feed item: an id plus a loosely typed field map.
type Record struct {
	ID     string
	Fields map[string]any
}

// Result is the outcome of processing one item in a batch operation.
type Result struct {
	id     string
	status ItemStatus
	cause  domain.Cause
	err    error
}

// NewOK creates a successful batch result.
func NewOK(id string) Result { return Result{id: id, status: StatusOK} }

// NewError creates a failed batch result. The cause is derived from err.
func NewError(id string, err error) Result {
	return Result{id: id, status: StatusError, cause: domain.CauseOf(err), err: domain.NewIngestionItemError(id, err)}
}

// ID returns the item identifier.
func (r Result) ID() string { return r.id }

// Status returns the processing outcome.
func (r Result) Status() ItemStatus { return r.status }

// Cause returns the machine readable failure reason, empty on success.
func (r Result) Cause() domain.Cause { return r.cause }

// Err returns the error, if any. Failed items wrap domain.ErrIngestionItemFailed.
func (r Result) Err() error { return r.err }

// Report aggregates the per-item results of one batch.
type Report struct {
	BatchID   string
	Results   []Result
	Succeeded int
	Failed    int
}

// NewReport counts outcomes. Results keep input order.
func NewReport(batchID string, results []Result) Report {
	r := Report{BatchID: batchID, Results: results}
	for _, res := range results {
		if res.Status() == StatusOK {
			r.Succeeded++
		} else {
			r.Failed++
		}
	}
	return r
}

// Errors returns the failed items' errors in input order.
func (r Report) Errors() []error {
	var out []error
	for _, res := range r.Results {
		if res.err != nil {
			out = append(out, res.err)
		}
	}
	return out
}
