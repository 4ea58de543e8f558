package redis

import (
	"strconv"
	"strings"

	"github.com/kailas-cloud/contractrag/internal/domain/search/filter"
)

// Query syntax for FT.SEARCH with DIALECT 2.

// filterQuery renders expr as a pre-filter: must conditions are ANDed,
// should conditions form one OR group, must-not conditions are negated.
// An empty expression yields "".
func filterQuery(expr filter.Expression) string {
	if expr.IsEmpty() {
		return ""
	}
	var parts []string
	for _, c := range expr.Must() {
		parts = append(parts, condition(c))
	}
	if should := expr.Should(); len(should) > 0 {
		alts := make([]string, len(should))
		for i, c := range should {
			alts[i] = condition(c)
		}
		parts = append(parts, "("+strings.Join(alts, " | ")+")")
	}
	for _, c := range expr.MustNot() {
		parts = append(parts, "-"+condition(c))
	}
	return strings.Join(parts, " ")
}

func condition(c filter.Condition) string {
	switch {
	case c.IsMatch():
		return "@" + c.Key() + ":{" + tagEscaper.Replace(c.Match()) + "}"
	case c.IsRange():
		return numericRange(c.Key(), *c.Range())
	}
	return ""
}

// numericRange renders "@key:[min max]"; exclusive bounds get a "(" prefix.
func numericRange(key string, r filter.Range) string {
	lo, hi := "-inf", "+inf"
	switch {
	case r.GT() != nil:
		lo = "(" + bound(*r.GT())
	case r.GTE() != nil:
		lo = bound(*r.GTE())
	}
	switch {
	case r.LT() != nil:
		hi = "(" + bound(*r.LT())
	case r.LTE() != nil:
		hi = bound(*r.LTE())
	}
	return "@" + key + ":[" + lo + " " + hi + "]"
}

// bound avoids exponent notation so unix-second dates stay exact.
func bound(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// textQuery renders "@a|b:(t1|t2)", or "(t1|t2)" when no fields are named.
func textQuery(terms, fields []string) string {
	escaped := make([]string, len(terms))
	for i, t := range terms {
		escaped[i] = queryEscaper.Replace(t)
	}
	disjunction := "(" + strings.Join(escaped, "|") + ")"
	if len(fields) == 0 {
		return disjunction
	}
	return "@" + strings.Join(fields, "|") + ":" + disjunction
}

// knnQuery renders "<prefilter>=>[KNN k @field $BLOB]"; "*" stands in for
// an empty prefilter.
func knnQuery(prefilter, field string, k int) string {
	if prefilter == "" {
		prefilter = "*"
	} else {
		prefilter = "(" + prefilter + ")"
	}
	return prefilter + "=>[KNN " + strconv.Itoa(k) + " @" + field + " $BLOB]"
}

// tagEscaper escapes the punctuation and spaces TAG values may not carry bare.
var tagEscaper = backslashEscaper(",.<>{}\"':;!@#$%^&*()-+=~ ")

// queryEscaper escapes the query operators inside free-text terms.
var queryEscaper = backslashEscaper(`\'"@{}()|-~*[]!%^$<>=;+`)

func backslashEscaper(chars string) *strings.Replacer {
	pairs := make([]string, 0, 2*len(chars))
	for _, c := range chars {
		pairs = append(pairs, string(c), `\`+string(c))
	}
	return strings.NewReplacer(pairs...)
}
