package result

// Feature names reported on hits, mirroring the ranking expressions that produced them.
const (
	FeatureBM25Sum      = "bm25sum"
	FeatureCloseness    = "closeness"
	FeatureMaxSimLocal  = "max_sim_local"
	FeatureMaxSimGlobal = "max_sim_global"
	FeatureRRF          = "rrf"
)

// Result is a single search hit.
type Result struct {
	id       string
	score    float64
	fields   map[string]any
	features map[string]float64
}

// New creates a search result.
func New(id string, score float64, fields map[string]any, features map[string]float64) Result {
	return Result{id: id, score: score, fields: fields, features: features}
}

// ID returns the document identifier.
func (r *Result) ID() string { return r.id }

// Score returns the final-phase relevance score.
func (r *Result) Score() float64 { return r.score }

// Fields returns the rendered document fields.
func (r *Result) Fields() map[string]any { return r.fields }

// Features returns the per-signal scores computed while ranking.
func (r *Result) Features() map[string]float64 { return r.features }
