package mode

import "testing"

func TestIsValid(t *testing.T) {
	valid := []Mode{Hybrid, Vector, Keyword}
	for _, m := range valid {
		if !m.IsValid() {
			t.Errorf("%q.IsValid() = false, want true", m)
		}
	}

	invalid := []Mode{"", "full-text", "keyword", "HYBRID", "geo"}
	for _, m := range invalid {
		if m.IsValid() {
			t.Errorf("%q.IsValid() = true, want false", m)
		}
	}
}

func TestConstants(t *testing.T) {
	if Keyword != "bm25" {
		t.Errorf("Keyword = %q", Keyword)
	}
	if Vector != "vector" {
		t.Errorf("Vector = %q", Vector)
	}
	if Hybrid != "hybrid" {
		t.Errorf("Hybrid = %q", Hybrid)
	}
}

func TestParse(t *testing.T) {
	tests := map[string]Mode{
		"bm25":     Keyword,
		"keyword":  Keyword,
		" Hybrid ": Hybrid,
		"semantic": Vector,
		"vector":   Vector,
		"fuzzy":    "fuzzy",
	}
	for in, want := range tests {
		if got := Parse(in); got != want {
			t.Errorf("Parse(%q) = %q, want %q", in, got, want)
		}
	}
}
