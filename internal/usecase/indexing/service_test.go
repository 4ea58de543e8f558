package indexing

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kailas-cloud/contractrag/internal/catalog"
	"github.com/kailas-cloud/contractrag/internal/domain"
	"github.com/kailas-cloud/contractrag/internal/domain/layout"
	"github.com/kailas-cloud/contractrag/internal/domain/schema"
	"github.com/kailas-cloud/contractrag/internal/domain/search/filter"
	"github.com/kailas-cloud/contractrag/internal/repository/checkpoint"
	"github.com/kailas-cloud/contractrag/internal/segment"
	"github.com/kailas-cloud/contractrag/internal/storage"
	"github.com/kailas-cloud/contractrag/internal/storage/memstore"
)

func docs(names ...string) []catalog.Document {
	out := make([]catalog.Document, len(names))
	for i, n := range names {
		out[i] = catalog.Document{FileName: n}
	}
	return out
}

func TestRun_IndexesEveryDocument(t *testing.T) {
	store := newMockStore()
	parser := &mockParser{docs: map[string][]layout.Element{
		"a.json": pages(2),
		"b.json": pages(3),
	}}
	svc := New(store, parser, Config{Schema: schema.ContractPages(), DropAll: true})

	rep, err := svc.Run(context.Background(), docs("a.json", "b.json"))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if rep.Documents != 2 || rep.Indexed != 2 || rep.Pages != 5 || rep.Skipped != 0 {
		t.Errorf("unexpected report: %+v", rep)
	}
	if len(store.inserted["a.json"]) != 2 || len(store.inserted["b.json"]) != 3 {
		t.Errorf("unexpected inserts: %v", store.inserted)
	}

	calls := store.callsSnapshot()
	want := []string{"connect", "drop_all", "create_schema", "close"}
	if !slices.Equal(calls, want) {
		t.Errorf("calls = %v, want %v", calls, want)
	}
}

func TestRun_NoDropAll(t *testing.T) {
	store := newMockStore()
	svc := New(store, &mockParser{}, Config{Schema: schema.ContractPages()})

	if _, err := svc.Run(context.Background(), nil); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if slices.Contains(store.callsSnapshot(), "drop_all") {
		t.Error("drop_all must not run when disabled")
	}
}

func TestRun_EffectiveDateOnEveryPage(t *testing.T) {
	store := newMockStore()
	parser := &mockParser{docs: map[string][]layout.Element{"a.json": pages(2)}}
	svc := New(store, parser, Config{Schema: schema.ContractPages()})

	date := time.Date(2021, 3, 15, 0, 0, 0, 0, time.UTC)
	_, err := svc.Run(context.Background(), []catalog.Document{{FileName: "a.json", EffectiveDate: &date}})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	for i, obj := range store.inserted["a.json"] {
		if got, _ := obj["effective_date"].(time.Time); !got.Equal(date) {
			t.Errorf("page %d effective_date = %v", i, obj["effective_date"])
		}
		if obj["page_number"] != i+1 {
			t.Errorf("page %d page_number = %v", i, obj["page_number"])
		}
	}
}

func TestRun_ConnectFailure(t *testing.T) {
	store := newMockStore()
	store.connectFn = func(context.Context) error {
		return domain.NewProviderError("connect", errors.New("refused"))
	}
	svc := New(store, &mockParser{}, Config{Schema: schema.ContractPages()})

	_, err := svc.Run(context.Background(), docs("a.json"))
	if !domain.IsProviderError(err) {
		t.Fatalf("expected provider error, got %v", err)
	}
	if slices.Contains(store.callsSnapshot(), "create_schema") {
		t.Error("no schema must be created without a session")
	}
}

func TestRun_SchemaFailureClosesStore(t *testing.T) {
	store := newMockStore()
	store.createFn = func(context.Context, schema.Schema) error {
		return domain.NewProviderError("create schema", errors.New("bad"))
	}
	parser := &mockParser{docs: map[string][]layout.Element{"a.json": pages(1)}}
	svc := New(store, parser, Config{Schema: schema.ContractPages()})

	if _, err := svc.Run(context.Background(), docs("a.json")); !domain.IsProviderError(err) {
		t.Fatalf("expected provider error, got %v", err)
	}
	if store.closed != 1 {
		t.Errorf("expected store closed once, got %d", store.closed)
	}
	if len(parser.parsed) != 0 {
		t.Errorf("no document must be parsed, got %v", parser.parsed)
	}
}

func TestRun_CancelledBeforeFirstDocument(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := newMockStore()
	store.createFn = func(context.Context, schema.Schema) error {
		cancel()
		return nil
	}
	parser := &mockParser{docs: map[string][]layout.Element{"a.json": pages(1), "b.json": pages(1)}}
	svc := New(store, parser, Config{Schema: schema.ContractPages()})

	rep, err := svc.Run(ctx, docs("a.json", "b.json"))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if rep.Indexed != 0 || rep.Documents != 2 {
		t.Errorf("unexpected report: %+v", rep)
	}
	if store.closed != 1 {
		t.Errorf("expected store closed once, got %d", store.closed)
	}
}

func TestRun_FailFastNamesDocument(t *testing.T) {
	store := newMockStore()
	boom := errors.New("corrupt pdf")
	parser := &mockParser{
		docs: map[string][]layout.Element{"a.json": pages(1), "c.json": pages(1)},
		errs: map[string]error{"b.json": boom},
	}
	svc := New(store, parser, Config{Schema: schema.ContractPages()})

	rep, err := svc.Run(context.Background(), docs("a.json", "b.json", "c.json"))
	if !errors.Is(err, boom) {
		t.Fatalf("expected parse error, got %v", err)
	}
	if !strings.Contains(err.Error(), "b.json") {
		t.Errorf("error must name the document: %v", err)
	}
	if rep.Indexed != 1 {
		t.Errorf("expected 1 indexed document before the failure, got %d", rep.Indexed)
	}
	if _, ok := store.inserted["c.json"]; ok {
		t.Error("documents after the failure must not be inserted")
	}
	if store.closed != 1 {
		t.Errorf("expected store closed once, got %d", store.closed)
	}
}

func TestRun_InsertFailure(t *testing.T) {
	store := newMockStore()
	store.insertFn = func(context.Context, string, []storage.Object) error {
		return domain.NewProviderError("insert", errors.New("OOM"))
	}
	parser := &mockParser{docs: map[string][]layout.Element{"a.json": pages(1)}}
	svc := New(store, parser, Config{Schema: schema.ContractPages()})

	_, err := svc.Run(context.Background(), docs("a.json"))
	if !domain.IsProviderError(err) || !strings.Contains(err.Error(), "a.json") {
		t.Errorf("expected provider error naming a.json, got %v", err)
	}
}

func TestRun_WorkerPoolBoundsConcurrency(t *testing.T) {
	const workers = 3
	var inFlight, peak atomic.Int32

	store := newMockStore()
	parser := &mockParser{parseFn: func(context.Context, string) ([]layout.Element, error) {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		inFlight.Add(-1)
		return pages(1), nil
	}}
	svc := New(store, parser, Config{Schema: schema.ContractPages(), Workers: workers})

	names := make([]string, 12)
	for i := range names {
		names[i] = fmt.Sprintf("doc-%02d.json", i)
	}
	rep, err := svc.Run(context.Background(), docs(names...))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if rep.Indexed != len(names) || rep.Pages != len(names) {
		t.Errorf("unexpected report: %+v", rep)
	}
	if p := peak.Load(); p > workers {
		t.Errorf("peak concurrency %d exceeds %d workers", p, workers)
	}
}

func TestRun_FailureCancelsRemainingWork(t *testing.T) {
	boom := errors.New("parser crashed")
	var started atomic.Int32

	parser := &mockParser{parseFn: func(ctx context.Context, document string) ([]layout.Element, error) {
		started.Add(1)
		if document == "doc-00.json" {
			return nil, boom
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Second):
			return pages(1), nil
		}
	}}
	svc := New(newMockStore(), parser, Config{Schema: schema.ContractPages(), Workers: 2})

	names := make([]string, 20)
	for i := range names {
		names[i] = fmt.Sprintf("doc-%02d.json", i)
	}

	start := time.Now()
	_, err := svc.Run(context.Background(), docs(names...))
	if !errors.Is(err, boom) {
		t.Fatalf("expected the first failure, got %v", err)
	}
	if time.Since(start) > 900*time.Millisecond {
		t.Error("remaining work was not cancelled")
	}
	if started.Load() >= int32(len(names)) {
		t.Errorf("expected fewer than %d parses, got %d", len(names), started.Load())
	}
}

func TestRun_Resume(t *testing.T) {
	ctx := context.Background()
	cp := checkpoint.NewMemory()
	boom := errors.New("transient")
	failB := true

	store := newMockStore()
	parser := &mockParser{parseFn: func(_ context.Context, document string) ([]layout.Element, error) {
		if document == "b.json" && failB {
			return nil, boom
		}
		return pages(1), nil
	}}
	cfg := Config{Schema: schema.ContractPages(), DropAll: true, Resume: true}
	svc := New(store, parser, cfg, WithCheckpoint(cp))

	if _, err := svc.Run(ctx, docs("a.json", "b.json")); !errors.Is(err, boom) {
		t.Fatalf("first run: expected failure, got %v", err)
	}

	failB = false
	store.calls = nil
	rep, err := svc.Run(ctx, docs("a.json", "b.json"))
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if !rep.Resumed || rep.Skipped != 1 || rep.Indexed != 1 {
		t.Errorf("unexpected report: %+v", rep)
	}
	calls := store.callsSnapshot()
	if slices.Contains(calls, "create_schema") || slices.Contains(calls, "drop_all") {
		t.Errorf("resumed run must keep the collection, calls = %v", calls)
	}
	if len(store.inserted["a.json"]) != 1 {
		t.Errorf("a.json must be inserted once, got %d", len(store.inserted["a.json"]))
	}
}

func TestRun_FreshRunResetsCheckpoint(t *testing.T) {
	ctx := context.Background()
	cp := checkpoint.NewMemory()
	_ = cp.MarkIndexed(ctx, "a.json")

	store := newMockStore()
	parser := &mockParser{docs: map[string][]layout.Element{"a.json": pages(1)}}
	svc := New(store, parser, Config{Schema: schema.ContractPages()}, WithCheckpoint(cp))

	rep, err := svc.Run(ctx, docs("a.json"))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if rep.Skipped != 0 || rep.Indexed != 1 {
		t.Errorf("fresh run must not skip, got %+v", rep)
	}
	done, _ := cp.Indexed(ctx)
	if _, ok := done["a.json"]; !ok || len(done) != 1 {
		t.Errorf("checkpoint = %v", done)
	}
}

func TestRun_SegmentOptions(t *testing.T) {
	store := newMockStore()
	parser := &mockParser{docs: map[string][]layout.Element{"a.json": {
		layout.New(layout.Title, "Intro"),
		layout.New(layout.NarrativeText, "-- 1 --"),
		layout.New(layout.NarrativeText, "tail"),
	}}}
	cfg := Config{
		Schema:  schema.ContractPages(),
		Segment: []segment.Option{segment.WithMarker("--"), segment.WithTrailing(segment.FlushTrailing)},
	}

	rep, err := New(store, parser, cfg).Run(context.Background(), docs("a.json"))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if rep.Pages != 2 {
		t.Errorf("expected 2 pages with flushed trailing text, got %d", rep.Pages)
	}
}

func TestRun_WithMemstore(t *testing.T) {
	ctx := context.Background()
	data := memstore.NewData()
	parser := &mockParser{docs: map[string][]layout.Element{
		"msa.json": {
			layout.New(layout.Title, "Governing Law"),
			layout.New(layout.NarrativeText, "This agreement is governed by the laws of Delaware."),
			layout.New(layout.NarrativeText, "Page 1"),
		},
	}}
	date := time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC)

	_, err := New(memstore.New(data), parser, Config{Schema: schema.ContractPages(), DropAll: true}).
		Run(ctx, []catalog.Document{{FileName: "msa.json", EffectiveDate: &date}})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	reader := memstore.New(data)
	if err := reader.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer reader.Close()

	res, err := reader.SearchKeyword(ctx, "Page", "Delaware", 5, filter.Expression{})
	if err != nil {
		t.Fatalf("SearchKeyword: %v", err)
	}
	if len(res) != 1 {
		t.Fatalf("expected 1 result, got %d", len(res))
	}
	if res[0].Properties()["document"] != "msa.json" {
		t.Errorf("unexpected properties: %v", res[0].Properties())
	}
}
