package request

import (
	"errors"
	"strings"
	"testing"

	"github.com/kailas-cloud/bookrec/internal/domain"
)

func TestNew_Defaults(t *testing.T) {
	r, err := New("  desert planet ", "", 0, nil, 0, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.Query() != "desert planet" {
		t.Errorf("Query() = %q", r.Query())
	}
	if r.Limit() != DefaultLimit {
		t.Errorf("Limit() = %d, want %d", r.Limit(), DefaultLimit)
	}
	if r.Profile() != "" {
		t.Errorf("Profile() = %q, want empty", r.Profile())
	}
}

func TestNew_ClampsLimit(t *testing.T) {
	r, err := New("q", "bm25", 1000, nil, 0, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.Limit() != MaxLimit {
		t.Errorf("Limit() = %d, want %d", r.Limit(), MaxLimit)
	}
}

func TestNew_EmptyQuery(t *testing.T) {
	for _, q := range []string{"", "   ", "\t\n"} {
		_, err := New(q, "bm25", 10, nil, 0, 0)
		if !errors.Is(err, domain.ErrEmptyQuery) {
			t.Errorf("New(%q): expected ErrEmptyQuery, got %v", q, err)
		}
	}
}

func TestNew_Invalid(t *testing.T) {
	tests := []struct {
		name       string
		query      string
		fields     []string
		targetHits int
		ef         int
	}{
		{"too long", strings.Repeat("a", MaxQueryLength+1), nil, 0, 0},
		{"unknown field", "q", []string{"isbn"}, 0, 0},
		{"negative target hits", "q", nil, -1, 0},
		{"huge ef", "q", nil, 0, MaxEf + 1},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := New(tc.query, "bm25", 10, tc.fields, tc.targetHits, tc.ef); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestWithProfile(t *testing.T) {
	r, _ := New("q", "", 5, []string{"title"}, 0, 0)
	r2 := r.WithProfile("fusion")
	if r2.Profile() != "fusion" || r.Profile() != "" {
		t.Errorf("WithProfile must copy: %q %q", r.Profile(), r2.Profile())
	}
}
