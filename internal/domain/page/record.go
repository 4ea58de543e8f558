// Package page defines the page-level record produced by segmentation.
package page

import "time"

// Property names of the persisted page shape.
const (
	FieldDocument      = "document"
	FieldPageNumber    = "page_number"
	FieldContent       = "content"
	FieldEffectiveDate = "effective_date"
)

// DateLayout is the persisted effective_date format (ISO-8601, UTC).
const DateLayout = "2006-01-02T15:04:05Z"

// Record is one logical page of a document. Immutable once emitted.
type Record struct {
	document      string
	pageNumber    int
	content       string
	effectiveDate *time.Time
}

// New creates a page record. effectiveDate may be nil.
func New(document string, pageNumber int, content string, effectiveDate *time.Time) Record {
	var date *time.Time
	if effectiveDate != nil {
		d := effectiveDate.UTC()
		date = &d
	}
	return Record{
		document:      document,
		pageNumber:    pageNumber,
		content:       content,
		effectiveDate: date,
	}
}

// Document returns the source document name.
func (r Record) Document() string { return r.document }

// PageNumber returns the 1-based page number.
func (r Record) PageNumber() int { return r.pageNumber }

// Content returns the accumulated page text.
func (r Record) Content() string { return r.content }

// EffectiveDate returns the document effective date, if known.
func (r Record) EffectiveDate() (time.Time, bool) {
	if r.effectiveDate == nil {
		return time.Time{}, false
	}
	return *r.effectiveDate, true
}

// Properties returns the storage shape. effective_date is omitted when unset.
func (r Record) Properties() map[string]any {
	props := map[string]any{
		FieldDocument:   r.document,
		FieldPageNumber: r.pageNumber,
		FieldContent:    r.content,
	}
	if r.effectiveDate != nil {
		props[FieldEffectiveDate] = *r.effectiveDate
	}
	return props
}

// FormatDate renders t in the persisted effective_date format.
func FormatDate(t time.Time) string {
	return t.UTC().Format(DateLayout)
}
