package mode

import "testing"

func TestMode_IsValid(t *testing.T) {
	tests := []struct {
		mode  Mode
		valid bool
	}{
		{Lexical, true},
		{Semantic, true},
		{Hybrid, true},
		{"keyword", false},
		{"", false},
	}
	for _, tt := range tests {
		t.Run(string(tt.mode), func(t *testing.T) {
			if got := tt.mode.IsValid(); got != tt.valid {
				t.Errorf("Mode(%q).IsValid() = %v, want %v", tt.mode, got, tt.valid)
			}
		})
	}
}

func TestMode_Uses(t *testing.T) {
	if !Hybrid.UsesLexical() || !Hybrid.UsesSemantic() {
		t.Error("hybrid must use both matchers")
	}
	if Lexical.UsesSemantic() {
		t.Error("lexical must not use ANN matching")
	}
	if Semantic.UsesLexical() {
		t.Error("semantic must not use lexical matching")
	}
}
