package db

import "github.com/kailas-cloud/contractrag/internal/domain/search/filter"

const (
	// VectorScoreField is the pseudo-field FT.SEARCH uses for KNN distances.
	VectorScoreField = "__vector_score"
	// DefaultVectorField is the KNN target when KNNQuery.VectorField is empty.
	DefaultVectorField = "vector"
)

// KNNQuery is the input for vector similarity search.
type KNNQuery struct {
	IndexName    string
	VectorField  string // indexed name or alias of the VECTOR field
	Filters      filter.Expression
	Vector       []float32
	K            int
	ReturnFields []string
	RawScores    bool // return the cosine distance as-is instead of 1-distance
}

// TextQuery is the input for BM25 text search. Terms are OR-ed; Fields
// restricts matching to those TEXT fields (all TEXT fields when empty).
type TextQuery struct {
	IndexName    string
	Terms        []string
	Fields       []string
	Filters      filter.Expression
	TopK         int
	ReturnFields []string
}

// SearchResult is the output of a search operation.
type SearchResult struct {
	Total   int
	Entries []SearchEntry
}

// SearchEntry is a single document hit from a search.
type SearchEntry struct {
	Key    string
	Score  float64
	Fields map[string]string
}
