// Package metafilter builds the search filter from the declarative
// metadata_filter_config section.
package metafilter

import (
	"strings"
	"time"

	"github.com/kailas-cloud/contractrag/internal/domain"
	"github.com/kailas-cloud/contractrag/internal/domain/page"
	"github.com/kailas-cloud/contractrag/internal/domain/search/filter"
)

// DateRange bounds a date property. Both ends are inclusive; empty means open.
type DateRange struct {
	Start string `yaml:"start" json:"start"`
	End   string `yaml:"end" json:"end"`
}

// Config mirrors metadata_filter_config.
type Config struct {
	EffectiveDate *DateRange `yaml:"effective_date" json:"effective_date"`
}

// Build turns cfg into a filter expression. An empty config yields the
// empty expression (unrestricted search).
func Build(cfg Config) (filter.Expression, error) {
	var must []filter.Condition

	if dr := cfg.EffectiveDate; dr != nil && (dr.Start != "" || dr.End != "") {
		cond, err := dateCondition(page.FieldEffectiveDate, *dr)
		if err != nil {
			return filter.Expression{}, err
		}
		must = append(must, cond)
	}

	expr, err := filter.NewExpression(must, nil, nil)
	if err != nil {
		return filter.Expression{}, domain.Validationf("metadata filter: %v", err)
	}
	return expr, nil
}

func dateCondition(key string, dr DateRange) (filter.Condition, error) {
	var since, until *time.Time
	if dr.Start != "" {
		t, err := ParseDate(dr.Start)
		if err != nil {
			return filter.Condition{}, domain.Validationf("%s.start: %v", key, err)
		}
		since = &t
	}
	if dr.End != "" {
		t, err := ParseDate(dr.End)
		if err != nil {
			return filter.Condition{}, domain.Validationf("%s.end: %v", key, err)
		}
		// a bare date as upper bound covers the whole day
		if !strings.Contains(dr.End, "T") {
			t = t.Add(24*time.Hour - time.Second)
		}
		until = &t
	}

	r, err := filter.NewDateRange(since, until)
	if err != nil {
		return filter.Condition{}, domain.Validationf("%s: %v", key, err)
	}
	return filter.NewRange(key, r)
}

// ParseDate accepts "2006-01-02" (midnight UTC) or RFC 3339.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}
