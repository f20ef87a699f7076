// Package text is the inverted index: per-field postings with exact term and length
// statistics for BM25 scoring.
//
// Index is not synchronized. The catalog serialises writers against readers.
package text

import (
	"math"

	"github.com/kailas-cloud/bookrec/internal/domain/document"
	"github.com/kailas-cloud/bookrec/internal/tokenize"
)

// Field is an indexed text field.
type Field string

// Indexed fields. All description passages form one field.
const (
	FieldTitle       Field = document.FieldTitle
	FieldAuthors     Field = document.FieldAuthors
	FieldCategories  Field = document.FieldCategories
	FieldDescription Field = document.FieldDescription
)

// DefaultMatchFields is the fieldset lexical matching runs against.
var DefaultMatchFields = []Field{FieldTitle, FieldAuthors, FieldDescription, FieldCategories}

// DefaultWeights is bm25sum: bm25(description) + bm25(categories).
var DefaultWeights = map[Field]float64{FieldDescription: 1, FieldCategories: 1}

// Params are the BM25 constants.
type Params struct {
	K1 float64
	B  float64
}

// DefaultParams returns k1=1.2, b=0.75.
func DefaultParams() Params { return Params{K1: 1.2, B: 0.75} }

type fieldStats struct {
	tf     map[string]int
	length int
}

// Entry is one document's analysed fields, built off to the side before publishing.
type Entry struct {
	id     string
	fields map[Field]fieldStats
}

// Analyze tokenizes the document into an Entry. Pure: touches no index.
func Analyze(doc document.Document) *Entry {
	e := &Entry{id: doc.ID(), fields: make(map[Field]fieldStats, 4)}
	e.add(FieldTitle, doc.Title())
	e.add(FieldAuthors, doc.Authors())
	e.add(FieldCategories, doc.Categories())
	for _, p := range doc.Description() {
		e.add(FieldDescription, p)
	}
	return e
}

func (e *Entry) add(f Field, s string) {
	terms := tokenize.Tokenize(s)
	if len(terms) == 0 {
		return
	}
	st, ok := e.fields[f]
	if !ok {
		st = fieldStats{tf: make(map[string]int, len(terms))}
	}
	for _, t := range terms {
		st.tf[t]++
	}
	st.length += len(terms)
	e.fields[f] = st
}

// ID returns the document id of the entry.
func (e *Entry) ID() string { return e.id }

// Index holds postings term -> doc -> tf per field, plus per-field length totals.
type Index struct {
	params   Params
	docs     map[string]*Entry
	postings map[Field]map[string]map[string]int
	totalLen map[Field]int
}

// New creates an empty index.
func New(p Params) *Index {
	return &Index{
		params:   p,
		docs:     make(map[string]*Entry),
		postings: make(map[Field]map[string]map[string]int),
		totalLen: make(map[Field]int),
	}
}

// Put publishes an entry, replacing the postings of any previous version.
func (x *Index) Put(e *Entry) {
	x.Remove(e.id)
	x.docs[e.id] = e
	for f, st := range e.fields {
		terms := x.postings[f]
		if terms == nil {
			terms = make(map[string]map[string]int)
			x.postings[f] = terms
		}
		for term, tf := range st.tf {
			docs := terms[term]
			if docs == nil {
				docs = make(map[string]int)
				terms[term] = docs
			}
			docs[e.id] = tf
		}
		x.totalLen[f] += st.length
	}
}

// Remove drops every posting of id. Reports whether it was indexed.
func (x *Index) Remove(id string) bool {
	old, ok := x.docs[id]
	if !ok {
		return false
	}
	delete(x.docs, id)
	for f, st := range old.fields {
		terms := x.postings[f]
		for term := range st.tf {
			delete(terms[term], id)
			if len(terms[term]) == 0 {
				delete(terms, term)
			}
		}
		x.totalLen[f] -= st.length
	}
	return true
}

// Len returns the number of indexed documents.
func (x *Index) Len() int { return len(x.docs) }

// Contains reports whether id is indexed.
func (x *Index) Contains(id string) bool {
	_, ok := x.docs[id]
	return ok
}

// Match returns the ids having at least one term in any of fields (OR semantics).
func (x *Index) Match(terms []string, fields []Field) map[string]struct{} {
	out := make(map[string]struct{})
	for _, f := range fields {
		postings := x.postings[f]
		for _, t := range terms {
			for id := range postings[t] {
				out[id] = struct{}{}
			}
		}
	}
	return out
}

// Score returns Σ_field weight * bm25(field). Unknown ids score 0.
func (x *Index) Score(id string, terms []string, weights map[Field]float64) float64 {
	var total float64
	for f, w := range weights {
		if w == 0 {
			continue
		}
		total += w * x.FieldScore(id, terms, f)
	}
	return total
}

// FieldScore is bm25(field) for one document:
//
//	Σ_t idf(t) * tf*(k1+1) / (tf + k1*(1 - b + b*dl/avgdl))
//	idf(t) = ln(1 + (N - n(t) + 0.5) / (n(t) + 0.5))
//
// N counts all indexed documents; n(t) counts documents with t in this field.
func (x *Index) FieldScore(id string, terms []string, f Field) float64 {
	e, ok := x.docs[id]
	if !ok {
		return 0
	}
	st, ok := e.fields[f]
	if !ok || st.length == 0 {
		return 0
	}
	n := float64(len(x.docs))
	avgdl := float64(x.totalLen[f]) / n
	k1, b := x.params.K1, x.params.B
	norm := k1 * (1 - b + b*float64(st.length)/avgdl)

	var score float64
	for _, t := range terms {
		tf := st.tf[t]
		if tf == 0 {
			continue
		}
		df := float64(len(x.postings[f][t]))
		idf := math.Log(1 + (n-df+0.5)/(df+0.5))
		score += idf * float64(tf) * (k1 + 1) / (float64(tf) + norm)
	}
	return score
}
