package main

import (
	"fmt"
	"io"
	"slices"
	"strings"
	"time"

	"github.com/fatih/color"

	"github.com/kailas-cloud/contractrag"
	"github.com/kailas-cloud/contractrag/internal/domain/page"
	healthuc "github.com/kailas-cloud/contractrag/internal/usecase/health"
)

// printer renders command results. color disables itself when stdout is
// not a terminal.
type printer struct {
	w      io.Writer
	title  func(a ...any) string
	label  func(a ...any) string
	muted  func(a ...any) string
	warn   func(a ...any) string
	good   func(a ...any) string
	failed func(a ...any) string
}

func newPrinter(w io.Writer) *printer {
	return &printer{
		w:      w,
		title:  color.New(color.FgGreen, color.Bold).SprintFunc(),
		label:  color.New(color.FgCyan, color.Bold).SprintFunc(),
		muted:  color.New(color.Faint).SprintFunc(),
		warn:   color.New(color.FgYellow).SprintFunc(),
		good:   color.New(color.FgGreen).SprintFunc(),
		failed: color.New(color.FgRed, color.Bold).SprintFunc(),
	}
}

func (p *printer) indexReport(rep contractrag.IndexReport) {
	fmt.Fprintf(p.w, "%s %d of %d documents, %d pages\n",
		p.title("Indexed"), rep.Indexed, rep.Documents, rep.Pages)
	if rep.Skipped > 0 {
		fmt.Fprintf(p.w, "%s %d already indexed\n", p.muted("Skipped"), rep.Skipped)
	}
}

func (p *printer) answer(ans contractrag.Answer) {
	fmt.Fprintln(p.w, p.title("Answer"))
	fmt.Fprintln(p.w, strings.TrimSpace(ans.Text))
	fmt.Fprintln(p.w)
	fmt.Fprintf(p.w, "%s %s\n", p.label("Searched for:"), strings.TrimSpace(ans.SearchQuery))
	if ans.Degraded {
		fmt.Fprintln(p.w, p.warn("Search failed; the answer was generated without passages."))
	}
	for i, passage := range ans.Passages {
		fmt.Fprintf(p.w, "\n%s\n%s\n", p.label(fmt.Sprintf("Passage %d", i+1)), p.muted(strings.TrimSpace(passage)))
	}
}

func (p *printer) results(res []contractrag.SearchResult) {
	if len(res) == 0 {
		fmt.Fprintln(p.w, p.warn("No matching pages."))
		return
	}
	for i, r := range res {
		props := r.Properties()
		fmt.Fprintf(p.w, "%s %s", p.label(fmt.Sprintf("%d.", i+1)), describe(props))
		if score, ok := r.Score(); ok {
			fmt.Fprintf(p.w, " %s", p.muted(fmt.Sprintf("score=%.4f", score)))
		}
		if dist, ok := r.Distance(); ok {
			fmt.Fprintf(p.w, " %s", p.muted(fmt.Sprintf("distance=%.4f", dist)))
		}
		fmt.Fprintln(p.w)
		if content, ok := r.Content(); ok {
			fmt.Fprintln(p.w, strings.TrimSpace(content))
		}
		fmt.Fprintln(p.w)
	}
}

// describe renders the document, page and date properties when present,
// then any other non-content property in name order.
func describe(props map[string]any) string {
	var parts []string
	if doc, ok := props[page.FieldDocument]; ok {
		parts = append(parts, fmt.Sprint(doc))
	}
	if n, ok := props[page.FieldPageNumber]; ok {
		parts = append(parts, fmt.Sprintf("p. %v", n))
	}
	if d, ok := props[page.FieldEffectiveDate]; ok {
		if t, isTime := d.(time.Time); isTime {
			d = t.UTC().Format(time.DateOnly)
		}
		parts = append(parts, fmt.Sprintf("effective %v", d))
	}

	known := map[string]bool{
		page.FieldDocument: true, page.FieldPageNumber: true,
		page.FieldEffectiveDate: true, page.FieldContent: true,
	}
	var rest []string
	for k := range props {
		if !known[k] {
			rest = append(rest, k)
		}
	}
	slices.Sort(rest)
	for _, k := range rest {
		parts = append(parts, fmt.Sprintf("%s=%v", k, props[k]))
	}
	return strings.Join(parts, ", ")
}

func (p *printer) health(rep contractrag.HealthReport) {
	status := p.good(string(rep.Status))
	if rep.Status != healthuc.Healthy {
		status = p.failed(string(rep.Status))
	}
	fmt.Fprintf(p.w, "%s %s\n", p.title("Health"), status)

	names := make([]string, 0, len(rep.Checks))
	for k := range rep.Checks {
		names = append(names, k)
	}
	slices.Sort(names)
	for _, k := range names {
		fmt.Fprintf(p.w, "  %-10s %s\n", k, rep.Checks[k])
	}
}

func joinArgs(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

func printError(w io.Writer, err error) {
	fmt.Fprintf(w, "%s %v\n", color.New(color.FgRed, color.Bold).Sprint("error:"), err)
}
