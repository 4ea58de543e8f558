package indexing

import (
	"context"
	"sync"

	"github.com/kailas-cloud/contractrag/internal/domain/layout"
	"github.com/kailas-cloud/contractrag/internal/domain/schema"
	"github.com/kailas-cloud/contractrag/internal/storage"
)

// mockStore records pipeline calls. Hooks override the default success.
type mockStore struct {
	mu sync.Mutex

	connectFn func(ctx context.Context) error
	dropFn    func(ctx context.Context) error
	createFn  func(ctx context.Context, s schema.Schema) error
	insertFn  func(ctx context.Context, collection string, objects []storage.Object) error

	calls    []string
	inserted map[string][]storage.Object
	closed   int
}

func newMockStore() *mockStore {
	return &mockStore{inserted: make(map[string][]storage.Object)}
}

func (m *mockStore) record(call string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, call)
}

func (m *mockStore) Connect(ctx context.Context) error {
	m.record("connect")
	if m.connectFn != nil {
		return m.connectFn(ctx)
	}
	return nil
}

func (m *mockStore) Close() error {
	m.record("close")
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed++
	return nil
}

func (m *mockStore) CreateSchema(ctx context.Context, s schema.Schema) error {
	m.record("create_schema")
	if m.createFn != nil {
		return m.createFn(ctx, s)
	}
	return nil
}

func (m *mockStore) DropAllCollections(ctx context.Context) error {
	m.record("drop_all")
	if m.dropFn != nil {
		return m.dropFn(ctx)
	}
	return nil
}

func (m *mockStore) InsertObjects(ctx context.Context, collection string, objects []storage.Object, _ int) error {
	if m.insertFn != nil {
		if err := m.insertFn(ctx, collection, objects); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, _ := objects[0]["document"].(string)
	m.inserted[doc] = append(m.inserted[doc], objects...)
	return nil
}

func (m *mockStore) callsSnapshot() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

// mockParser serves fixed elements per document.
type mockParser struct {
	mu      sync.Mutex
	docs    map[string][]layout.Element
	errs    map[string]error
	parseFn func(ctx context.Context, document string) ([]layout.Element, error)
	parsed  []string
}

func (m *mockParser) Parse(ctx context.Context, document string) ([]layout.Element, error) {
	m.mu.Lock()
	m.parsed = append(m.parsed, document)
	m.mu.Unlock()

	if m.parseFn != nil {
		return m.parseFn(ctx, document)
	}
	if err, ok := m.errs[document]; ok {
		return nil, err
	}
	return m.docs[document], nil
}

func pages(n int) []layout.Element {
	out := make([]layout.Element, 0, n*2)
	for i := 0; i < n; i++ {
		out = append(out,
			layout.New(layout.NarrativeText, "The supplier shall deliver the services."),
			layout.New(layout.NarrativeText, "Page"),
		)
	}
	return out
}
