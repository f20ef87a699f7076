package ranking

import (
	"fmt"

	"github.com/kailas-cloud/bookrec/internal/domain"
	"github.com/kailas-cloud/bookrec/internal/domain/search/mode"
)

// Built-in profile names.
const (
	ProfileBM25              = "bm25"
	ProfileSemantic          = "semantic"
	ProfileFusion            = "fusion"
	ProfileBM25Semantic      = "bm25_semantic"
	ProfileColbertLocal      = "colbert_local"
	ProfileColbertGlobal     = "colbert_global"
	ProfileBM25Colbert       = "bm25_colbert"
	ProfileBM25ColbertGlobal = "bm25_colbert_global"
)

// DefaultTargetHits is the ANN candidate count of semantic matching.
const DefaultTargetHits = 1000

// Builtin returns the book search profiles.
func Builtin() []Profile {
	dense := []Input{InputQueryVector}
	late := []Input{InputQueryVector, InputQueryTokens}
	return []Profile{
		{Name: ProfileBM25, Match: mode.Lexical, Inputs: dense, First: ExprBM25Sum},
		{Name: ProfileSemantic, Match: mode.Semantic, Inputs: dense, TargetHits: DefaultTargetHits, First: ExprCloseness},
		{
			Name: ProfileFusion, Match: mode.Hybrid, Inputs: dense, TargetHits: DefaultTargetHits,
			First:  ExprCloseness,
			Global: &GlobalPhase{Signals: []Expression{ExprBM25Sum, ExprCloseness}, RerankCount: 1000},
		},
		{
			Name: ProfileBM25Semantic, Match: mode.Hybrid, Inputs: dense, TargetHits: DefaultTargetHits,
			First:  ExprBM25Sum,
			Second: &SecondPhase{Expression: ExprCloseness, RerankCount: 1000},
		},
		{
			Name: ProfileColbertLocal, Match: mode.Hybrid, Inputs: late, TargetHits: DefaultTargetHits,
			First:  ExprCloseness,
			Second: &SecondPhase{Expression: ExprMaxSimLocal, RerankCount: 100},
		},
		{
			Name: ProfileColbertGlobal, Match: mode.Hybrid, Inputs: late, TargetHits: DefaultTargetHits,
			First:  ExprCloseness,
			Second: &SecondPhase{Expression: ExprMaxSimGlobal, RerankCount: 1000},
		},
		{
			Name: ProfileBM25Colbert, Match: mode.Hybrid, Inputs: late, TargetHits: DefaultTargetHits,
			First:  ExprBM25SumCloseness,
			Second: &SecondPhase{Expression: ExprMaxSimLocal, RerankCount: 500},
		},
		{
			Name: ProfileBM25ColbertGlobal, Match: mode.Hybrid, Inputs: late, TargetHits: DefaultTargetHits,
			First:  ExprBM25SumCloseness,
			Second: &SecondPhase{Expression: ExprMaxSimGlobal, RerankCount: 500},
		},
	}
}

// Overrides tweak built-in profiles from configuration.
type Overrides struct {
	RerankCount map[string]int // by profile name
	TargetHits  int            // all semantic/hybrid profiles when positive
}

// Apply returns copies of profiles with the overrides applied. Unknown names are a
// configuration error.
func (o Overrides) Apply(profiles []Profile) ([]Profile, error) {
	known := make(map[string]bool, len(profiles))
	out := make([]Profile, len(profiles))
	for i, p := range profiles {
		known[p.Name] = true
		if p.Second != nil {
			s := *p.Second
			p.Second = &s
		}
		if p.Global != nil {
			g := *p.Global
			g.Signals = append([]Expression(nil), g.Signals...)
			p.Global = &g
		}
		if n, ok := o.RerankCount[p.Name]; ok {
			switch {
			case p.Second != nil:
				p.Second.RerankCount = n
			case p.Global != nil:
				p.Global.RerankCount = n
			default:
				return nil, fmt.Errorf("profile %q has no rerank phase: %w", p.Name, domain.ErrConfiguration)
			}
		}
		if o.TargetHits > 0 && p.Match.UsesSemantic() {
			p.TargetHits = o.TargetHits
		}
		out[i] = p
	}
	for name := range o.RerankCount {
		if !known[name] {
			return nil, fmt.Errorf("rerank override for %q: %w", name, domain.ErrProfileNotFound)
		}
	}
	return out, nil
}

// Registry resolves profiles by name. Read-only after construction.
type Registry struct {
	byName map[string]Profile
	order  []string
}

// NewRegistry validates every profile. Any invalid profile fails the whole registry,
// so configuration errors surface before the first query.
func NewRegistry(profiles []Profile) (*Registry, error) {
	r := &Registry{byName: make(map[string]Profile, len(profiles))}
	for _, p := range profiles {
		if err := p.Validate(); err != nil {
			return nil, err
		}
		if _, dup := r.byName[p.Name]; dup {
			return nil, fmt.Errorf("duplicate profile %q: %w", p.Name, domain.ErrConfiguration)
		}
		r.byName[p.Name] = p
		r.order = append(r.order, p.Name)
	}
	return r, nil
}

// Get resolves name. Unknown names are ErrProfileNotFound, never a silent no-op.
func (r *Registry) Get(name string) (Profile, error) {
	p, ok := r.byName[name]
	if !ok {
		return Profile{}, fmt.Errorf("%q: %w", name, domain.ErrProfileNotFound)
	}
	return p, nil
}

// List returns the profiles in registration order.
func (r *Registry) List() []Profile {
	out := make([]Profile, 0, len(r.order))
	for _, n := range r.order {
		out = append(out, r.byName[n])
	}
	return out
}
