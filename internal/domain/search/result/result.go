// Package result holds the immutable search hit returned by storage adapters.
package result

// Result is a single search hit. Keyword and hybrid hits carry a score
// (higher is better), vector hits carry a distance (lower is better).
type Result struct {
	id          string
	properties  map[string]any
	score       float64
	hasScore    bool
	distance    float64
	hasDistance bool
}

// NewScored creates a hit ranked by score.
func NewScored(id string, properties map[string]any, score float64) Result {
	return Result{id: id, properties: properties, score: score, hasScore: true}
}

// NewDistanced creates a hit ranked by distance.
func NewDistanced(id string, properties map[string]any, distance float64) Result {
	return Result{id: id, properties: properties, distance: distance, hasDistance: true}
}

// ID returns the backend object identifier, empty when unknown.
func (r Result) ID() string { return r.id }

// Properties returns the stored properties of the hit.
func (r Result) Properties() map[string]any { return r.properties }

// Score returns the relevance score, if set.
func (r Result) Score() (float64, bool) { return r.score, r.hasScore }

// Distance returns the vector distance, if set.
func (r Result) Distance() (float64, bool) { return r.distance, r.hasDistance }

// Content returns the "content" property when present and string-typed.
func (r Result) Content() (string, bool) {
	s, ok := r.properties["content"].(string)
	return s, ok
}
