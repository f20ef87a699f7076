// Package tokenize splits text into the lowercase, accent-folded terms shared by the
// inverted index, query parsing and the token embedders.
package tokenize

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Tokenize returns the terms of text in order of appearance, duplicates included.
// Terms are maximal runs of letters and digits after NFKD folding with combining
// marks removed, so "Café" and "cafe" produce the same term.
func Tokenize(text string) []string {
	if text == "" {
		return nil
	}
	folded := fold(text)

	var terms []string
	var b strings.Builder
	flush := func() {
		if b.Len() > 0 {
			terms = append(terms, b.String())
			b.Reset()
		}
	}
	for _, r := range folded {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		flush()
	}
	flush()
	return terms
}

// Unique returns the distinct terms of text, keeping first-occurrence order.
func Unique(text string) []string {
	terms := Tokenize(text)
	seen := make(map[string]struct{}, len(terms))
	out := terms[:0]
	for _, t := range terms {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

// fold strips diacritics. A fresh transformer per call: transform chains keep state.
func fold(s string) string {
	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}
