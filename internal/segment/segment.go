// Package segment turns the layout elements of one parsed document into
// page-level records.
//
// Page boundaries are detected heuristically: by default a NarrativeText
// element containing the marker "Page" (e.g. "Page 3 of 10") ends the
// current page and is itself dropped. The heuristic has a known false
// positive: a clause that merely mentions the word also ends the page.
// Swap the detector with WithDetector when the parser exposes real breaks.
package segment

import (
	"strings"
	"time"

	"github.com/kailas-cloud/contractrag/internal/domain/layout"
	"github.com/kailas-cloud/contractrag/internal/domain/page"
)

// DefaultMarker is the substring that signals a page boundary.
const DefaultMarker = "Page"

// DefaultSeparator is prepended to every appended element text.
const DefaultSeparator = "\n"

// BoundaryDetector decides whether an element ends the current page.
type BoundaryDetector interface {
	IsBoundary(el layout.Element) bool
}

// BoundaryFunc adapts a function to BoundaryDetector.
type BoundaryFunc func(el layout.Element) bool

// IsBoundary implements BoundaryDetector.
func (f BoundaryFunc) IsBoundary(el layout.Element) bool { return f(el) }

// MarkerDetector treats a NarrativeText element containing marker as a boundary.
func MarkerDetector(marker string) BoundaryDetector {
	return BoundaryFunc(func(el layout.Element) bool {
		return el.Category == layout.NarrativeText && strings.Contains(el.Text, marker)
	})
}

// TrailingPolicy decides what happens to content left after the last boundary.
type TrailingPolicy int

const (
	// DropTrailing discards unflushed content at the end of the document.
	DropTrailing TrailingPolicy = iota
	// FlushTrailing emits the unflushed content as a final partial page.
	FlushTrailing
)

// ParseTrailingPolicy maps "drop" / "flush" to a policy.
func ParseTrailingPolicy(s string) (TrailingPolicy, bool) {
	switch strings.ToLower(s) {
	case "", "drop":
		return DropTrailing, true
	case "flush":
		return FlushTrailing, true
	default:
		return DropTrailing, false
	}
}

// Metadata is the per-document metadata copied onto every page.
type Metadata struct {
	EffectiveDate *time.Time
}

// Option configures a Segmenter.
type Option func(*Segmenter)

// WithDetector replaces the boundary detector.
func WithDetector(d BoundaryDetector) Option {
	return func(s *Segmenter) { s.detector = d }
}

// WithMarker uses MarkerDetector with a custom marker.
func WithMarker(marker string) Option {
	return func(s *Segmenter) { s.detector = MarkerDetector(marker) }
}

// WithTrailing sets the end-of-document policy.
func WithTrailing(p TrailingPolicy) Option {
	return func(s *Segmenter) { s.trailing = p }
}

// WithSeparator sets the text prepended to each appended element.
func WithSeparator(sep string) Option {
	return func(s *Segmenter) { s.separator = sep }
}

// Segmenter accumulates elements of a single document. Not safe for
// concurrent use; create one per document.
type Segmenter struct {
	document  string
	meta      Metadata
	detector  BoundaryDetector
	trailing  TrailingPolicy
	separator string

	buf     strings.Builder
	pageNo  int
	records []page.Record
}

// New creates a segmenter for one document.
func New(document string, meta Metadata, opts ...Option) *Segmenter {
	s := &Segmenter{
		document:  document,
		meta:      meta,
		detector:  MarkerDetector(DefaultMarker),
		separator: DefaultSeparator,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Consume feeds the next element in document order.
func (s *Segmenter) Consume(el layout.Element) {
	if s.detector.IsBoundary(el) {
		s.flush()
		return
	}
	switch el.Category {
	case layout.Title, layout.ListItem, layout.NarrativeText:
		s.buf.WriteString(s.separator)
		s.buf.WriteString(el.Text)
	}
}

// Finish applies the trailing policy and returns the emitted pages.
func (s *Segmenter) Finish() []page.Record {
	if s.trailing == FlushTrailing && s.buf.Len() > 0 {
		s.flush()
	}
	s.buf.Reset()
	return s.records
}

func (s *Segmenter) flush() {
	s.pageNo++
	s.records = append(s.records, page.New(s.document, s.pageNo, s.buf.String(), s.meta.EffectiveDate))
	s.buf.Reset()
}

// Run segments a complete element sequence.
func Run(document string, meta Metadata, elements []layout.Element, opts ...Option) []page.Record {
	s := New(document, meta, opts...)
	for _, el := range elements {
		s.Consume(el)
	}
	return s.Finish()
}
