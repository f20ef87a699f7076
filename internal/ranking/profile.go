// Package ranking executes named ranking profiles over a candidate set:
// first phase, then an optional second phase or global (fusion) phase.
package ranking

import (
	"fmt"

	"github.com/kailas-cloud/bookrec/internal/domain"
	"github.com/kailas-cloud/bookrec/internal/domain/search/mode"
	"github.com/kailas-cloud/bookrec/internal/domain/search/result"
)

// Expression is a fixed ranking expression. Profiles pick from this set by name.
type Expression string

// Supported expressions.
const (
	ExprBM25Sum          Expression = "bm25sum"           // bm25(description) + bm25(categories)
	ExprCloseness        Expression = "closeness"         // closeness(field, embedding)
	ExprBM25SumCloseness Expression = "bm25sum+closeness" // both summed
	ExprMaxSimLocal      Expression = "max_sim_local"     // best single passage late interaction
	ExprMaxSimGlobal     Expression = "max_sim_global"    // cross-passage late interaction
)

// Valid reports whether the expression is known.
func (x Expression) Valid() bool {
	switch x {
	case ExprBM25Sum, ExprCloseness, ExprBM25SumCloseness, ExprMaxSimLocal, ExprMaxSimGlobal:
		return true
	}
	return false
}

// Inputs lists the query inputs the expression reads.
func (x Expression) Inputs() []Input {
	switch x {
	case ExprCloseness, ExprBM25SumCloseness:
		return []Input{InputQueryVector}
	case ExprMaxSimLocal, ExprMaxSimGlobal:
		return []Input{InputQueryTokens}
	}
	return nil
}

func (x Expression) feature() string {
	switch x {
	case ExprMaxSimLocal:
		return result.FeatureMaxSimLocal
	case ExprMaxSimGlobal:
		return result.FeatureMaxSimGlobal
	case ExprCloseness:
		return result.FeatureCloseness
	}
	return result.FeatureBM25Sum
}

// Input is a per-request query tensor a profile may declare.
type Input string

// Query inputs.
const (
	InputQueryVector Input = "query(q)"  // dense query embedding
	InputQueryTokens Input = "query(qt)" // per-token query embeddings
)

// SecondPhase re-scores the top RerankCount first-phase candidates.
type SecondPhase struct {
	Expression  Expression
	RerankCount int
}

// GlobalPhase fuses independent rankings of the top RerankCount candidates with RRF.
type GlobalPhase struct {
	Signals     []Expression
	RerankCount int
}

// Profile is a named, read-only ranking configuration.
type Profile struct {
	Name       string
	Match      mode.Mode
	Inputs     []Input
	TargetHits int // ANN candidates for semantic matching
	First      Expression
	Second     *SecondPhase
	Global     *GlobalPhase
}

// Declares reports whether the profile declares in.
func (p Profile) Declares(in Input) bool {
	for _, d := range p.Inputs {
		if d == in {
			return true
		}
	}
	return false
}

// Needs reports whether executing the profile reads in: through matching or any phase.
func (p Profile) Needs(in Input) bool {
	if in == InputQueryVector && p.Match.UsesSemantic() {
		return true
	}
	for _, x := range p.Expressions() {
		for _, used := range x.Inputs() {
			if used == in {
				return true
			}
		}
	}
	return false
}

// Expressions lists every expression the profile evaluates.
func (p Profile) Expressions() []Expression {
	out := []Expression{p.First}
	if p.Second != nil {
		out = append(out, p.Second.Expression)
	}
	if p.Global != nil {
		out = append(out, p.Global.Signals...)
	}
	return out
}

// Validate rejects malformed profiles and expressions reading undeclared inputs.
func (p Profile) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("profile name is required: %w", domain.ErrConfiguration)
	}
	if !p.Match.IsValid() {
		return fmt.Errorf("profile %q: invalid match mode %q: %w", p.Name, p.Match, domain.ErrConfiguration)
	}
	if p.Second != nil && p.Global != nil {
		return fmt.Errorf("profile %q: second and global phase are exclusive: %w", p.Name, domain.ErrConfiguration)
	}
	if p.Second != nil && p.Second.RerankCount <= 0 {
		return fmt.Errorf("profile %q: second-phase rerank count must be positive: %w", p.Name, domain.ErrConfiguration)
	}
	if p.Global != nil {
		if p.Global.RerankCount <= 0 {
			return fmt.Errorf("profile %q: global-phase rerank count must be positive: %w", p.Name, domain.ErrConfiguration)
		}
		if len(p.Global.Signals) < 2 {
			return fmt.Errorf("profile %q: global phase needs at least two signals: %w", p.Name, domain.ErrConfiguration)
		}
	}
	if p.Match.UsesSemantic() {
		if !p.Declares(InputQueryVector) {
			return fmt.Errorf("profile %q: %s match reads %s: %w", p.Name, p.Match, InputQueryVector, domain.ErrUndeclaredInput)
		}
		if p.TargetHits <= 0 {
			return fmt.Errorf("profile %q: target hits must be positive: %w", p.Name, domain.ErrConfiguration)
		}
	}
	for _, x := range p.Expressions() {
		if !x.Valid() {
			return fmt.Errorf("profile %q: unknown expression %q: %w", p.Name, x, domain.ErrConfiguration)
		}
		for _, in := range x.Inputs() {
			if !p.Declares(in) {
				return fmt.Errorf("profile %q: %s reads %s: %w", p.Name, x, in, domain.ErrUndeclaredInput)
			}
		}
	}
	return nil
}
