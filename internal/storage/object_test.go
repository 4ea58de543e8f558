package storage

import (
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/kailas-cloud/contractrag/internal/domain"
	"github.com/kailas-cloud/contractrag/internal/domain/schema"
)

func TestNormalize(t *testing.T) {
	s := schema.ContractPages()
	local := time.Date(2020, 1, 1, 2, 0, 0, 0, time.FixedZone("UTC+2", 2*3600))

	got, err := Normalize(s, Object{
		"document":       "msa.pdf",
		"page_number":    int64(3),
		"content":        "Clause",
		"effective_date": local,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got["page_number"] != 3 {
		t.Errorf("page_number = %#v", got["page_number"])
	}
	d, ok := got["effective_date"].(time.Time)
	if !ok || d.Location() != time.UTC || d.Hour() != 0 {
		t.Errorf("effective_date = %#v", got["effective_date"])
	}
}

func TestNormalize_DateString(t *testing.T) {
	got, err := Normalize(schema.ContractPages(), Object{"effective_date": "2020-01-01T00:00:00Z"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := got["effective_date"].(time.Time); !ok {
		t.Errorf("effective_date = %T", got["effective_date"])
	}
}

func TestNormalize_Rejects(t *testing.T) {
	tests := []struct {
		name string
		obj  Object
	}{
		{"unknown property", Object{"author": "x"}},
		{"text as int", Object{"content": 3}},
		{"fractional int", Object{"page_number": 1.5}},
		{"bad date", Object{"effective_date": "01/01/2020"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Normalize(schema.ContractPages(), tt.obj)
			if !errors.Is(err, domain.ErrValidation) {
				t.Errorf("expected ErrValidation, got %v", err)
			}
		})
	}
}

func TestNormalize_DropsNil(t *testing.T) {
	got, err := Normalize(schema.ContractPages(), Object{"content": "x", "effective_date": nil})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := got["effective_date"]; ok {
		t.Error("nil value must be dropped")
	}
}

func TestTerms(t *testing.T) {
	tests := map[string][]string{
		"['governing law', 'France']": {"governing", "law", "france"},
		"Clause 12.3":                 {"clause", "12", "3"},
		"":                            nil,
		"[]":                          nil,
	}
	for in, want := range tests {
		if got := Terms(in); !reflect.DeepEqual(got, want) {
			t.Errorf("Terms(%q) = %v, want %v", in, got, want)
		}
	}
}
