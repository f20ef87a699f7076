// Package colbert holds per-passage token vectors and scores late interaction (max-sim).
//
// Index is not synchronized. The catalog serialises writers against readers.
package colbert

import (
	"fmt"

	"github.com/kailas-cloud/bookrec/internal/domain"
)

// Passage is the ordered token vectors of one description passage.
type Passage [][]float32

// Entry is one document's passages, built off to the side before publishing.
type Entry struct {
	id       string
	passages []Passage
}

// NewEntry copies the passages and checks every token has dim components.
func NewEntry(id string, passages [][][]float32, dim int) (*Entry, error) {
	e := &Entry{id: id, passages: make([]Passage, 0, len(passages))}
	for i, p := range passages {
		tokens := make(Passage, len(p))
		for j, tok := range p {
			if err := domain.CheckDimensions(tok, dim); err != nil {
				return nil, fmt.Errorf("passage %d token %d: %w", i, j, err)
			}
			tokens[j] = append([]float32(nil), tok...)
		}
		e.passages = append(e.passages, tokens)
	}
	return e, nil
}

// ID returns the document id of the entry.
func (e *Entry) ID() string { return e.id }

// Index maps document id to its passages.
type Index struct {
	docs map[string]*Entry
}

// New creates an empty index.
func New() *Index { return &Index{docs: make(map[string]*Entry)} }

// Put publishes an entry, replacing any previous version.
func (x *Index) Put(e *Entry) { x.docs[e.id] = e }

// Remove drops id. Reports whether it was indexed.
func (x *Index) Remove(id string) bool {
	_, ok := x.docs[id]
	delete(x.docs, id)
	return ok
}

// Len returns the number of indexed documents.
func (x *Index) Len() int { return len(x.docs) }

// Contains reports whether id is indexed.
func (x *Index) Contains(id string) bool {
	_, ok := x.docs[id]
	return ok
}

// MaxSimLocal scores each passage separately, Σ_q max_t q·t over the passage's tokens,
// and returns the best passage. ok is false (score 0) when the document is unknown or
// has no tokens.
func (x *Index) MaxSimLocal(id string, query [][]float32) (score float64, ok bool) {
	e, found := x.docs[id]
	if !found || len(query) == 0 {
		return 0, false
	}
	for _, p := range e.passages {
		if len(p) == 0 {
			continue
		}
		var s float64
		for _, q := range query {
			s += maxDot(q, p)
		}
		if !ok || s > score {
			score, ok = s, true
		}
	}
	if !ok {
		return 0, false
	}
	return score, true
}

// MaxSimGlobal takes each query token's maximum over every token of every passage
// before summing. ok is false (score 0) when the document is unknown or has no tokens.
func (x *Index) MaxSimGlobal(id string, query [][]float32) (float64, bool) {
	e, found := x.docs[id]
	if !found || len(query) == 0 {
		return 0, false
	}
	var total float64
	for _, q := range query {
		best, seen := 0.0, false
		for _, p := range e.passages {
			if len(p) == 0 {
				continue
			}
			if d := maxDot(q, p); !seen || d > best {
				best, seen = d, true
			}
		}
		if !seen {
			return 0, false
		}
		total += best
	}
	return total, true
}

func maxDot(q []float32, tokens Passage) float64 {
	best := domain.Dot(q, tokens[0])
	for _, t := range tokens[1:] {
		if d := domain.Dot(q, t); d > best {
			best = d
		}
	}
	return best
}
