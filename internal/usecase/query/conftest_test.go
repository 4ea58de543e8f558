package query

import (
	"context"

	"github.com/kailas-cloud/contractrag/internal/domain/search/filter"
	"github.com/kailas-cloud/contractrag/internal/domain/search/result"
	"github.com/kailas-cloud/contractrag/internal/llm"
)

type searchCall struct {
	strategy string
	query    string
	limit    int
	filter   filter.Expression
}

// mockStore answers every strategy through searchFn.
type mockStore struct {
	connectFn func(ctx context.Context) error
	searchFn  func(ctx context.Context, strategy, query string) ([]result.Result, error)

	searches []searchCall
	closed   int
}

func (m *mockStore) Connect(ctx context.Context) error {
	if m.connectFn != nil {
		return m.connectFn(ctx)
	}
	return nil
}

func (m *mockStore) Close() error {
	m.closed++
	return nil
}

func (m *mockStore) do(ctx context.Context, strategy, query string, limit int, f filter.Expression) ([]result.Result, error) {
	m.searches = append(m.searches, searchCall{strategy: strategy, query: query, limit: limit, filter: f})
	if m.searchFn != nil {
		return m.searchFn(ctx, strategy, query)
	}
	return nil, nil
}

func (m *mockStore) SearchKeyword(ctx context.Context, _, q string, limit int, f filter.Expression) ([]result.Result, error) {
	return m.do(ctx, "bm25", q, limit, f)
}

func (m *mockStore) SearchVector(ctx context.Context, _, q string, limit int, f filter.Expression) ([]result.Result, error) {
	return m.do(ctx, "vector", q, limit, f)
}

func (m *mockStore) SearchHybrid(ctx context.Context, _, q string, limit int, f filter.Expression) ([]result.Result, error) {
	return m.do(ctx, "hybrid", q, limit, f)
}

type modelCall struct {
	prompt string
	system string
}

// mockModel replies with entities on the first call and answer afterwards.
type mockModel struct {
	entities  string
	answer    string
	entityErr error
	answerErr error

	calls []modelCall
}

func (m *mockModel) Invoke(_ context.Context, prompt string, opts ...llm.Option) (string, error) {
	if err := llm.ValidatePrompt(prompt); err != nil {
		return "", err
	}
	req := llm.Apply(opts...)
	m.calls = append(m.calls, modelCall{prompt: prompt, system: req.SystemMessage})
	if len(m.calls) == 1 {
		return m.entities, m.entityErr
	}
	return m.answer, m.answerErr
}
