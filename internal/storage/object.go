package storage

import (
	"fmt"
	"math"
	"regexp"
	"strings"
	"time"

	"github.com/kailas-cloud/contractrag/internal/domain"
	"github.com/kailas-cloud/contractrag/internal/domain/schema"
)

// Normalize checks obj against the schema and returns a copy with values in
// their canonical Go types: string for text, int for int, float64 for
// number and UTC time.Time for date. Absent properties stay absent.
func Normalize(s schema.Schema, obj Object) (Object, error) {
	out := make(Object, len(obj))
	for name, v := range obj {
		p, ok := s.Property(name)
		if !ok {
			return nil, domain.Validationf("property %q is not in schema %s", name, s.CollectionName)
		}
		if v == nil {
			continue
		}
		nv, err := normalizeValue(p.DataType, v)
		if err != nil {
			return nil, domain.Validationf("property %q: %v", name, err)
		}
		out[name] = nv
	}
	return out, nil
}

func normalizeValue(t schema.DataType, v any) (any, error) {
	switch t {
	case schema.Text:
		if s, ok := v.(string); ok {
			return s, nil
		}
	case schema.Int:
		switch n := v.(type) {
		case int:
			return n, nil
		case int32:
			return int(n), nil
		case int64:
			return int(n), nil
		case float64:
			if n == math.Trunc(n) {
				return int(n), nil
			}
		}
	case schema.Number:
		switch n := v.(type) {
		case int:
			return float64(n), nil
		case int64:
			return float64(n), nil
		case float32:
			return float64(n), nil
		case float64:
			return n, nil
		}
	case schema.Date:
		switch d := v.(type) {
		case time.Time:
			return d.UTC(), nil
		case *time.Time:
			if d != nil {
				return d.UTC(), nil
			}
		case string:
			parsed, err := time.Parse(time.RFC3339, d)
			if err != nil {
				return nil, fmt.Errorf("date %q is not RFC 3339", d)
			}
			return parsed.UTC(), nil
		}
	}
	return nil, fmt.Errorf("value of type %T does not fit %s", v, t)
}

var termPattern = regexp.MustCompile(`[\p{L}\p{N}]+`)

// Terms lowercases s and splits it into word terms. Punctuation, brackets
// and quotes (e.g. from a list-shaped model output) are dropped.
func Terms(s string) []string {
	return termPattern.FindAllString(strings.ToLower(s), -1)
}
