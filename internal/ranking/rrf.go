package ranking

import (
	"sort"

	"github.com/kailas-cloud/bookrec/internal/domain/document"
)

// DefaultRRFK is the Reciprocal Rank Fusion constant (standard value from Cormack et al. 2009).
const DefaultRRFK = 60

// Fused is one document's fused score.
type Fused struct {
	ID    string
	Score float64
}

// FuseRRF merges rankings via Reciprocal Rank Fusion.
// score(d) = Σ 1/(k + rank_i(d)) over the rankings containing d, rank 1-based.
// Output is ordered by score descending, ties by id ascending.
func FuseRRF(k int, rankings ...[]string) []Fused {
	scores := make(map[string]float64)
	var order []string
	for _, ranking := range rankings {
		for i, id := range ranking {
			if _, seen := scores[id]; !seen {
				order = append(order, id)
			}
			scores[id] += 1.0 / float64(k+i+1)
		}
	}

	out := make([]Fused, len(order))
	for i, id := range order {
		out[i] = Fused{ID: id, Score: scores[id]}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return document.CompareID(out[i].ID, out[j].ID) < 0
	})
	return out
}
