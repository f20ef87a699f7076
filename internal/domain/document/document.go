package document

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/kailas-cloud/bookrec/internal/domain"
)

var idRegex = regexp.MustCompile(`^[A-Za-z0-9_.:-]+$`)

// Document limits.
const (
	MaxIDLength   = 256
	MaxPassages   = 64
	MaxFieldBytes = 163840 // 160KB per field
)

// Field names shared by storage, indexing and hit rendering.
const (
	FieldID          = "id"
	FieldTitle       = "title"
	FieldAuthors     = "authors"
	FieldCategories  = "categories"
	FieldDescription = "description"
)

// AllFields lists the renderable fields in display order.
var AllFields = []string{FieldID, FieldTitle, FieldAuthors, FieldCategories, FieldDescription}

// Document is a book (immutable value object). Re-ingesting an id replaces it whole.
type Document struct {
	id          string
	title       string
	authors     string
	categories  string
	description []string
}

// New validates and creates a Document.
// ID: ^[A-Za-z0-9_.:-]+$, 1-256 chars. Title is required.
// Passages are trimmed, blank ones dropped, at most 64 remain.
func New(id, title, authors, categories string, description []string) (Document, error) {
	if id == "" {
		return Document{}, fmt.Errorf("document ID is required: %w", domain.ErrInvalidDocument)
	}
	if len(id) > MaxIDLength {
		return Document{}, fmt.Errorf("document ID too long (max %d): %w", MaxIDLength, domain.ErrInvalidDocument)
	}
	if !idRegex.MatchString(id) {
		return Document{}, fmt.Errorf("document ID %q has invalid characters: %w", id, domain.ErrInvalidDocument)
	}
	title = strings.TrimSpace(title)
	if title == "" {
		return Document{}, fmt.Errorf("title is required: %w", domain.ErrInvalidDocument)
	}

	passages := make([]string, 0, len(description))
	for _, p := range description {
		if p = strings.TrimSpace(p); p != "" {
			passages = append(passages, p)
		}
	}
	if len(passages) > MaxPassages {
		return Document{}, fmt.Errorf("too many passages (max %d): %w", MaxPassages, domain.ErrInvalidDocument)
	}

	authors = strings.TrimSpace(authors)
	categories = strings.TrimSpace(categories)
	for name, v := range map[string]string{FieldTitle: title, FieldAuthors: authors, FieldCategories: categories} {
		if len(v) > MaxFieldBytes {
			return Document{}, fmt.Errorf("%s too large (max %d bytes): %w", name, MaxFieldBytes, domain.ErrInvalidDocument)
		}
	}

	return Document{
		id:          id,
		title:       title,
		authors:     authors,
		categories:  categories,
		description: passages,
	}, nil
}

// Reconstruct creates a Document without validation (storage hydration).
func Reconstruct(id, title, authors, categories string, description []string) Document {
	return Document{id: id, title: title, authors: authors, categories: categories, description: description}
}

// ID returns the document identifier.
func (d *Document) ID() string { return d.id }

// Title returns the book title.
func (d *Document) Title() string { return d.title }

// Authors returns the authors as a single display string.
func (d *Document) Authors() string { return d.authors }

// Categories returns the categories as a single display string.
func (d *Document) Categories() string { return d.categories }

// Description returns a copy of the description passages.
func (d *Document) Description() []string {
	out := make([]string, len(d.description))
	copy(out, d.description)
	return out
}

// PassageCount returns the number of description passages.
func (d *Document) PassageCount() int { return len(d.description) }

// DenseText is the input of the dense embedding: passages joined, then categories.
// A document with neither falls back to its title so it still gets a vector.
func (d *Document) DenseText() string {
	if s := strings.TrimSpace(strings.Join(d.description, " ") + " " + d.categories); s != "" {
		return s
	}
	return d.title
}

// Fields renders the requested fields. Nil or empty names selects every field.
func (d *Document) Fields(names []string) map[string]any {
	if len(names) == 0 {
		names = AllFields
	}
	out := make(map[string]any, len(names))
	for _, n := range names {
		switch n {
		case FieldID:
			out[n] = d.id
		case FieldTitle:
			out[n] = d.title
		case FieldAuthors:
			out[n] = d.authors
		case FieldCategories:
			out[n] = d.categories
		case FieldDescription:
			out[n] = d.Description()
		}
	}
	return out
}

// Equal reports whether two documents carry identical fields.
func (d *Document) Equal(o Document) bool {
	if d.id != o.id || d.title != o.title || d.authors != o.authors || d.categories != o.categories {
		return false
	}
	if len(d.description) != len(o.description) {
		return false
	}
	for i := range d.description {
		if d.description[i] != o.description[i] {
			return false
		}
	}
	return true
}

// FromFields builds a Document from a loosely typed field map (feeds, HTTP bodies).
// List-valued authors and categories are joined with ", ". A string description
// becomes a single passage.
func FromFields(id string, fields map[string]any) (Document, error) {
	title, err := stringField(fields, FieldTitle)
	if err != nil {
		return Document{}, err
	}
	authors, err := stringField(fields, FieldAuthors)
	if err != nil {
		return Document{}, err
	}
	categories, err := stringField(fields, FieldCategories)
	if err != nil {
		return Document{}, err
	}
	var description []string
	switch v := fields[FieldDescription].(type) {
	case nil:
	case string:
		description = []string{v}
	case []string:
		description = v
	case []any:
		for i, p := range v {
			s, ok := p.(string)
			if !ok {
				return Document{}, fmt.Errorf("description[%d] must be a string: %w", i, domain.ErrInvalidDocument)
			}
			description = append(description, s)
		}
	default:
		return Document{}, fmt.Errorf("description must be a string or list: %w", domain.ErrInvalidDocument)
	}
	return New(id, title, authors, categories, description)
}

func stringField(fields map[string]any, name string) (string, error) {
	switch v := fields[name].(type) {
	case nil:
		return "", nil
	case string:
		return v, nil
	case []string:
		return strings.Join(v, ", "), nil
	case []any:
		parts := make([]string, 0, len(v))
		for _, p := range v {
			s, ok := p.(string)
			if !ok {
				return "", fmt.Errorf("%s must contain strings: %w", name, domain.ErrInvalidDocument)
			}
			parts = append(parts, s)
		}
		return strings.Join(parts, ", "), nil
	default:
		return "", fmt.Errorf("%s must be a string: %w", name, domain.ErrInvalidDocument)
	}
}

// CompareID orders ids ascending, numerically when both are unsigned integers
// ("2" < "10"), lexically otherwise. Numeric ids sort before non-numeric ones.
func CompareID(a, b string) int {
	na, errA := strconv.ParseUint(a, 10, 64)
	nb, errB := strconv.ParseUint(b, 10, 64)
	switch {
	case errA == nil && errB == nil:
		switch {
		case na < nb:
			return -1
		case na > nb:
			return 1
		}
		return strings.Compare(a, b) // "007" vs "7"
	case errA == nil:
		return -1
	case errB == nil:
		return 1
	}
	return strings.Compare(a, b)
}
