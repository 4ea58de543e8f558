// Package mode names the search strategies a caller can request.
package mode

import "strings"

// Mode is the search strategy.
type Mode string

// Search mode constants. The string values are the wire names.
const (
	// Keyword ranks by BM25 over text-indexed properties.
	Keyword Mode = "bm25"
	// Vector ranks by embedding distance.
	Vector Mode = "vector"
	// Hybrid fuses keyword and vector rankings.
	Hybrid Mode = "hybrid"
)

// IsValid checks if the mode is one of the supported values.
func (m Mode) IsValid() bool {
	return m == Keyword || m == Vector || m == Hybrid
}

// Parse normalizes a strategy name. "keyword" and "semantic" are accepted
// as aliases. The result must still be checked with IsValid.
func Parse(s string) Mode {
	switch v := strings.ToLower(strings.TrimSpace(s)); v {
	case "keyword":
		return Keyword
	case "semantic":
		return Vector
	default:
		return Mode(v)
	}
}
