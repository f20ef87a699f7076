package mode

// Mode is the match predicate of a ranking profile: which index generates candidates.
type Mode string

// Match mode constants.
const (
	// Lexical matches on the inverted index (OR over query terms).
	Lexical Mode = "lexical"
	// Semantic matches on the ANN index (nearest neighbours of the query vector).
	Semantic Mode = "semantic"
	// Hybrid is the union of lexical and semantic candidates.
	Hybrid Mode = "hybrid"
)

// IsValid checks if the mode is one of the supported values.
func (m Mode) IsValid() bool {
	return m == Lexical || m == Semantic || m == Hybrid
}

// UsesLexical reports whether the inverted index contributes candidates.
func (m Mode) UsesLexical() bool { return m == Lexical || m == Hybrid }

// UsesSemantic reports whether the ANN index contributes candidates.
func (m Mode) UsesSemantic() bool { return m == Semantic || m == Hybrid }
