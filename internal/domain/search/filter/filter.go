// Package filter holds the backend-neutral predicate tree applied to searches.
// Adapters translate an Expression into their native query language.
package filter

import (
	"cmp"
	"errors"
	"fmt"
	"slices"
	"time"
)

// MaxConditionsPerGroup caps each of the must, should and must-not groups.
const MaxConditionsPerGroup = 32

// Expression is a boolean filter: every must condition, at least one should
// condition when any are given, and no must-not condition. The zero value
// matches everything.
type Expression struct {
	must    []Condition
	should  []Condition
	mustNot []Condition
}

// NewExpression builds an Expression, rejecting oversized groups.
func NewExpression(must, should, mustNot []Condition) (Expression, error) {
	for _, g := range []struct {
		name  string
		conds []Condition
	}{{"must", must}, {"should", should}, {"must_not", mustNot}} {
		if len(g.conds) > MaxConditionsPerGroup {
			return Expression{}, fmt.Errorf("%d %s conditions exceed the limit of %d",
				len(g.conds), g.name, MaxConditionsPerGroup)
		}
	}
	return Expression{must: must, should: should, mustNot: mustNot}, nil
}

func (e Expression) Must() []Condition    { return e.must }
func (e Expression) Should() []Condition  { return e.should }
func (e Expression) MustNot() []Condition { return e.mustNot }

// IsEmpty reports whether e has no conditions at all.
func (e Expression) IsEmpty() bool {
	return len(e.must)+len(e.should)+len(e.mustNot) == 0
}

// Matches evaluates e against a record's properties, for adapters
// without a native query language.
func (e Expression) Matches(props map[string]any) bool {
	hit := func(c Condition) bool { return c.Matches(props) }
	miss := func(c Condition) bool { return !c.Matches(props) }
	switch {
	case slices.ContainsFunc(e.must, miss):
		return false
	case len(e.should) > 0 && !slices.ContainsFunc(e.should, hit):
		return false
	}
	return !slices.ContainsFunc(e.mustNot, hit)
}

// Condition tests one property: equality with a tag value, or membership
// in a numeric range.
type Condition struct {
	key       string
	match     string
	rangeExpr *Range
}

// NewMatch is a condition on key equal to match.
func NewMatch(key, match string) (Condition, error) {
	switch {
	case key == "":
		return Condition{}, errMissingKey
	case match == "":
		return Condition{}, fmt.Errorf("match value is required for key %q", key)
	}
	return Condition{key: key, match: match}, nil
}

// NewRange is a condition on key lying inside r.
func NewRange(key string, r Range) (Condition, error) {
	if key == "" {
		return Condition{}, errMissingKey
	}
	return Condition{key: key, rangeExpr: &r}, nil
}

var errMissingKey = errors.New("filter key is required")

func (c Condition) Key() string   { return c.key }
func (c Condition) Match() string { return c.match }
func (c Condition) Range() *Range { return c.rangeExpr }
func (c Condition) IsMatch() bool { return c.match != "" }
func (c Condition) IsRange() bool { return c.rangeExpr != nil }

// Matches evaluates the condition against a record's properties.
// A missing property never matches.
func (c Condition) Matches(props map[string]any) bool {
	v, ok := props[c.key]
	if !ok || v == nil {
		return false
	}
	if c.IsRange() {
		n, ok := Numeric(v)
		return ok && c.rangeExpr.Contains(n)
	}
	if t, ok := v.(time.Time); ok {
		return t.UTC().Format(time.RFC3339) == c.match
	}
	return fmt.Sprint(v) == c.match
}

// Range bounds a number from below (gt or gte) and/or above (lt or lte).
// Nil bounds are open.
type Range struct {
	gt, gte, lt, lte *float64
}

// NewRangeFilter validates the bounds: at least one is set, gt and gte are
// exclusive of each other as are lt and lte, and the lower bound does not
// exceed the upper one.
func NewRangeFilter(gt, gte, lt, lte *float64) (Range, error) {
	lo, hi := cmp.Or(gt, gte), cmp.Or(lt, lte)
	switch {
	case lo == nil && hi == nil:
		return Range{}, errors.New("at least one range boundary is required")
	case gt != nil && gte != nil:
		return Range{}, errors.New("cannot specify both gt and gte")
	case lt != nil && lte != nil:
		return Range{}, errors.New("cannot specify both lt and lte")
	case lo != nil && hi != nil && *lo > *hi:
		return Range{}, fmt.Errorf("lower bound %g exceeds upper bound %g", *lo, *hi)
	}
	return Range{gt: gt, gte: gte, lt: lt, lte: lte}, nil
}

// NewDateRange builds an inclusive range over unix seconds. Either bound may be nil.
func NewDateRange(since, until *time.Time) (Range, error) {
	var gte, lte *float64
	if since != nil {
		v := float64(since.Unix())
		gte = &v
	}
	if until != nil {
		v := float64(until.Unix())
		lte = &v
	}
	return NewRangeFilter(nil, gte, nil, lte)
}

func (r Range) GT() *float64  { return r.gt }
func (r Range) GTE() *float64 { return r.gte }
func (r Range) LT() *float64  { return r.lt }
func (r Range) LTE() *float64 { return r.lte }

// Contains reports whether v lies inside the range.
func (r Range) Contains(v float64) bool {
	switch {
	case r.gt != nil && v <= *r.gt:
		return false
	case r.gte != nil && v < *r.gte:
		return false
	case r.lt != nil && v >= *r.lt:
		return false
	case r.lte != nil && v > *r.lte:
		return false
	}
	return true
}

// Numeric converts a property value to its range-comparable form.
// Timestamps compare as unix seconds.
func Numeric(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case time.Time:
		return float64(n.Unix()), true
	case *time.Time:
		if n == nil {
			return 0, false
		}
		return float64(n.Unix()), true
	case string:
		if t, err := time.Parse(time.RFC3339, n); err == nil {
			return float64(t.Unix()), true
		}
		return 0, false
	default:
		return 0, false
	}
}
