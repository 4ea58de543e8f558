// Package storage defines the port every indexed datastore implements:
// schema lifecycle, batch insert and the keyword, vector and hybrid
// search strategies.
//
// Adapters return domain.ErrConnection for data operations issued before
// a successful Connect, wrap backend failures in *domain.ProviderError and
// never swallow errors; degrade policies belong to the caller.
package storage

import (
	"context"
	"fmt"

	"github.com/kailas-cloud/contractrag/internal/domain"
	"github.com/kailas-cloud/contractrag/internal/domain/schema"
	"github.com/kailas-cloud/contractrag/internal/domain/search/filter"
	"github.com/kailas-cloud/contractrag/internal/domain/search/mode"
	"github.com/kailas-cloud/contractrag/internal/domain/search/result"
)

// DefaultBatchSize is used when InsertObjects gets a non-positive batch size.
const DefaultBatchSize = 100

// Object is one record to insert, keyed by property name.
type Object = map[string]any

// Searcher runs the three search strategies. An empty filter is unrestricted.
type Searcher interface {
	SearchKeyword(ctx context.Context, collection, query string, limit int, f filter.Expression) ([]result.Result, error)
	SearchVector(ctx context.Context, collection, query string, limit int, f filter.Expression) ([]result.Result, error)
	SearchHybrid(ctx context.Context, collection, query string, limit int, f filter.Expression) ([]result.Result, error)
}

// Port is the storage contract consumed by the pipelines.
type Port interface {
	Searcher
	// Connect opens a backend session.
	Connect(ctx context.Context) error
	// Close releases the session. Safe after a failed or missing Connect.
	Close() error
	// CreateSchema (re)creates the collection, dropping a same-named one first.
	CreateSchema(ctx context.Context, s schema.Schema) error
	// DropAllCollections removes every collection owned by the adapter.
	DropAllCollections(ctx context.Context) error
	// InsertObjects writes objects in batches. Not atomic: a failure
	// leaves earlier batches in place.
	InsertObjects(ctx context.Context, collection string, objects []Object, batchSize int) error
}

// Pinger is implemented by adapters that can probe backend health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Request is a strategy-selected search.
type Request struct {
	Strategy   mode.Mode
	Collection string
	Query      string
	Limit      int
	Filter     filter.Expression
}

// Validate checks the request without touching a backend.
func (r Request) Validate() error {
	if !r.Strategy.IsValid() {
		return domain.Validationf("unknown search strategy %q (want %s, %s or %s)",
			r.Strategy, mode.Keyword, mode.Vector, mode.Hybrid)
	}
	if r.Collection == "" {
		return domain.Validationf("collection is required")
	}
	if r.Limit <= 0 {
		return domain.Validationf("limit must be positive, got %d", r.Limit)
	}
	return nil
}

// Search validates req and dispatches to the strategy's method.
func Search(ctx context.Context, s Searcher, req Request) ([]result.Result, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	var (
		results []result.Result
		err     error
	)
	switch req.Strategy {
	case mode.Keyword:
		results, err = s.SearchKeyword(ctx, req.Collection, req.Query, req.Limit, req.Filter)
	case mode.Vector:
		results, err = s.SearchVector(ctx, req.Collection, req.Query, req.Limit, req.Filter)
	case mode.Hybrid:
		results, err = s.SearchHybrid(ctx, req.Collection, req.Query, req.Limit, req.Filter)
	}
	if err != nil {
		return nil, fmt.Errorf("search %s: %w", req.Strategy, err)
	}
	return results, nil
}

// CheckLimit is the adapter-side guard for direct Searcher calls.
func CheckLimit(limit int) error {
	if limit <= 0 {
		return domain.Validationf("limit must be positive, got %d", limit)
	}
	return nil
}

// Batches splits objects into consecutive chunks of at most size.
func Batches(objects []Object, size int) [][]Object {
	if size <= 0 {
		size = DefaultBatchSize
	}
	out := make([][]Object, 0, (len(objects)+size-1)/size)
	for start := 0; start < len(objects); start += size {
		end := min(start+size, len(objects))
		out = append(out, objects[start:end])
	}
	return out
}

// ValidateFilter ensures filter keys exist in the schema and that the
// condition kind fits the property type: ranges on numeric and date
// properties, matches on text ones.
func ValidateFilter(expr filter.Expression, s schema.Schema) error {
	if expr.IsEmpty() {
		return nil
	}
	groups := [][]filter.Condition{expr.Must(), expr.Should(), expr.MustNot()}
	for _, conditions := range groups {
		for _, c := range conditions {
			p, ok := s.Property(c.Key())
			if !ok {
				return domain.Validationf("unknown filter property %q", c.Key())
			}
			if c.IsMatch() && p.DataType != schema.Text {
				return domain.Validationf("match filter on non-text property %q", c.Key())
			}
			if c.IsRange() && !p.DataType.IsNumeric() {
				return domain.Validationf("range filter on non-numeric property %q", c.Key())
			}
		}
	}
	return nil
}
