package document

import (
	"errors"
	"reflect"
	"sort"
	"strings"
	"testing"

	"github.com/kailas-cloud/bookrec/internal/domain"
)

func TestNew_Valid(t *testing.T) {
	doc, err := New("1", " Dune ", "Frank Herbert", "Sci-Fi", []string{"A desert planet...", "  ", "Spice."})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if doc.ID() != "1" {
		t.Errorf("ID() = %q", doc.ID())
	}
	if doc.Title() != "Dune" {
		t.Errorf("Title() = %q, want trimmed", doc.Title())
	}
	if doc.PassageCount() != 2 {
		t.Errorf("PassageCount() = %d, want blank passage dropped", doc.PassageCount())
	}
	if doc.DenseText() != "A desert planet... Spice. Sci-Fi" {
		t.Errorf("DenseText() = %q", doc.DenseText())
	}
}

func TestDenseText_FallsBackToTitle(t *testing.T) {
	doc, err := New("9", "Untitled Notes", "Anon", "", nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if doc.DenseText() != "Untitled Notes" {
		t.Errorf("DenseText() = %q", doc.DenseText())
	}
}

func TestNew_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		id    string
		title string
		desc  []string
	}{
		{"empty id", "", "t", nil},
		{"bad chars", "a b", "t", nil},
		{"too long", strings.Repeat("x", MaxIDLength+1), "t", nil},
		{"no title", "1", "   ", nil},
		{"too many passages", "1", "t", make([]string, MaxPassages+1)},
	}
	tests[4].desc = func() []string {
		out := make([]string, MaxPassages+1)
		for i := range out {
			out[i] = "p"
		}
		return out
	}()
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := New(tc.id, tc.title, "", "", tc.desc)
			if !errors.Is(err, domain.ErrInvalidDocument) {
				t.Errorf("expected ErrInvalidDocument, got %v", err)
			}
		})
	}
}

func TestDescription_ReturnsCopy(t *testing.T) {
	doc, _ := New("1", "Dune", "", "", []string{"a"})
	d := doc.Description()
	d[0] = "mutated"
	if doc.Description()[0] != "a" {
		t.Error("Description mutation leaked into document")
	}
}

func TestFields(t *testing.T) {
	doc, _ := New("2", "Foundation", "Isaac Asimov", "Sci-Fi", []string{"An empire falls..."})

	all := doc.Fields(nil)
	if len(all) != len(AllFields) {
		t.Errorf("expected all fields, got %v", all)
	}
	some := doc.Fields([]string{FieldTitle, "unknown"})
	if !reflect.DeepEqual(some, map[string]any{FieldTitle: "Foundation"}) {
		t.Errorf("Fields(title) = %v", some)
	}
}

func TestFromFields(t *testing.T) {
	doc, err := FromFields("7", map[string]any{
		"title":       "Hyperion",
		"authors":     []any{"Dan Simmons"},
		"categories":  []string{"Sci-Fi", "Fiction"},
		"description": "Seven pilgrims.",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if doc.Categories() != "Sci-Fi, Fiction" {
		t.Errorf("Categories() = %q", doc.Categories())
	}
	if !reflect.DeepEqual(doc.Description(), []string{"Seven pilgrims."}) {
		t.Errorf("Description() = %v", doc.Description())
	}

	_, err = FromFields("8", map[string]any{"title": 42})
	if !errors.Is(err, domain.ErrInvalidDocument) {
		t.Errorf("expected ErrInvalidDocument for non-string title, got %v", err)
	}
}

func TestEqual(t *testing.T) {
	a, _ := New("1", "Dune", "Herbert", "Sci-Fi", []string{"x"})
	b, _ := New("1", "Dune", "Herbert", "Sci-Fi", []string{"x"})
	c, _ := New("1", "Dune", "Herbert", "Sci-Fi", []string{"y"})
	if !a.Equal(b) {
		t.Error("identical documents must be equal")
	}
	if a.Equal(c) {
		t.Error("documents with different passages must differ")
	}
}

func TestCompareID(t *testing.T) {
	ids := []string{"10", "b", "2", "a", "1"}
	sort.Slice(ids, func(i, j int) bool { return CompareID(ids[i], ids[j]) < 0 })
	want := []string{"1", "2", "10", "a", "b"}
	if !reflect.DeepEqual(ids, want) {
		t.Errorf("sorted = %v, want %v", ids, want)
	}
	if CompareID("5", "5") != 0 {
		t.Error("equal ids must compare 0")
	}
}
