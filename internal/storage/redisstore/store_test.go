package redisstore

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/redis/rueidis"
	"github.com/redis/rueidis/mock"
	"go.uber.org/mock/gomock"

	"github.com/kailas-cloud/contractrag/internal/db/redis"
	"github.com/kailas-cloud/contractrag/internal/domain"
	"github.com/kailas-cloud/contractrag/internal/domain/page"
	"github.com/kailas-cloud/contractrag/internal/domain/schema"
	"github.com/kailas-cloud/contractrag/internal/domain/search/filter"
	"github.com/kailas-cloud/contractrag/internal/storage"
)

type fakeEmbedder struct {
	texts []string
	err   error
}

func (f *fakeEmbedder) Embed(_ context.Context, text string) (domain.EmbeddingResult, error) {
	f.texts = append(f.texts, text)
	if f.err != nil {
		return domain.EmbeddingResult{}, f.err
	}
	return domain.EmbeddingResult{Embedding: []float32{1, 0, 0}}, nil
}

func connected(t *testing.T, c *mock.Client, opts ...Option) *Store {
	t.Helper()
	c.EXPECT().Do(gomock.Any(), mock.Match("PING")).Return(mock.Result(mock.RedisString("PONG")))
	c.EXPECT().Close().AnyTimes()

	s := New(func(context.Context) (Backend, error) {
		return redis.NewStoreForTest(c), nil
	}, opts...)
	if err := s.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func expectSchema(t *testing.T, c *mock.Client, sc schema.Schema) {
	t.Helper()
	meta, err := marshalSchema(sc)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	c.EXPECT().
		Do(gomock.Any(), mock.Match("HGETALL", "contractrag:schema:"+sc.CollectionName)).
		Return(mock.Result(mock.RedisMap(map[string]rueidis.RedisMessage{
			metaField: mock.RedisString(meta),
		})))
	c.EXPECT().
		Do(gomock.Any(), mock.Match("FT.INFO", "contractrag:"+sc.CollectionName+":idx")).
		Return(mock.Result(mock.RedisArray(mock.RedisString("index_name"), mock.RedisString("contractrag:"+sc.CollectionName+":idx"))))
}

func dateFilter(t *testing.T, since time.Time) filter.Expression {
	t.Helper()
	r, err := filter.NewDateRange(&since, nil)
	if err != nil {
		t.Fatal(err)
	}
	cond, _ := filter.NewRange(page.FieldEffectiveDate, r)
	f, _ := filter.NewExpression([]filter.Condition{cond}, nil, nil)
	return f
}

func TestStore_RequiresConnect(t *testing.T) {
	s := New(func(context.Context) (Backend, error) {
		t.Fatal("dialer must not be called")
		return nil, nil
	})
	ctx := context.Background()

	errs := []error{
		s.CreateSchema(ctx, schema.ContractPages()),
		s.DropAllCollections(ctx),
		s.InsertObjects(ctx, "Page", nil, 0),
		s.Ping(ctx),
	}
	_, err := s.SearchHybrid(ctx, "Page", "q", 1, filter.Expression{})
	errs = append(errs, err)

	for i, err := range errs {
		if !errors.Is(err, domain.ErrConnection) {
			t.Errorf("op %d: expected ErrConnection, got %v", i, err)
		}
	}
	if err := s.Close(); err != nil {
		t.Errorf("close without connect: %v", err)
	}
}

func TestStore_ConnectFailure(t *testing.T) {
	s := New(func(context.Context) (Backend, error) {
		return nil, errors.New("dial tcp: connection refused")
	})

	err := s.Connect(context.Background())
	if !errors.Is(err, domain.ErrProvider) {
		t.Fatalf("expected ErrProvider, got %v", err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("close after failed connect: %v", err)
	}
}

func TestStore_ConnectPingFailureClosesBackend(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)
	c.EXPECT().Do(gomock.Any(), mock.Match("PING")).Return(mock.ErrorResult(context.DeadlineExceeded))
	c.EXPECT().Close().Times(1)

	s := New(func(context.Context) (Backend, error) { return redis.NewStoreForTest(c), nil })
	if err := s.Connect(context.Background()); !errors.Is(err, domain.ErrProvider) {
		t.Fatalf("expected ErrProvider, got %v", err)
	}
}

func TestStore_CreateSchema(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)
	s := connected(t, c)

	var created []string
	gomock.InOrder(
		c.EXPECT().
			Do(gomock.Any(), mock.Match("FT.DROPINDEX", "contractrag:Page:idx", "DD")).
			Return(mock.Result(mock.RedisError("Unknown Index name"))),
		c.EXPECT().
			Do(gomock.Any(), mock.Match("DEL", "contractrag:schema:Page")).
			Return(mock.Result(mock.RedisInt64(0))),
		c.EXPECT().
			Do(gomock.Any(), mock.MatchFn(func(cmd []string) bool {
				created = cmd
				return cmd[0] == "FT.CREATE"
			})).
			Return(mock.Result(mock.RedisString("OK"))),
		c.EXPECT().
			DoMulti(gomock.Any(), gomock.Any()).
			Return([]rueidis.RedisResult{mock.Result(mock.RedisInt64(1))}),
	)

	if err := s.CreateSchema(context.Background(), schema.ContractPages()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got := strings.Join(created, " ")
	want := "FT.CREATE contractrag:Page:idx ON HASH PREFIX 1 contractrag:Page: SCHEMA " +
		"document TAG CASESENSITIVE page_number NUMERIC content TEXT effective_date NUMERIC " +
		"__vector AS vector VECTOR HNSW 10 TYPE FLOAT32 DIM 768 DISTANCE_METRIC COSINE M 16 EF_CONSTRUCTION 200"
	if got != want {
		t.Errorf("FT.CREATE =\n%s\nwant\n%s", got, want)
	}
}

func TestStore_CreateSchemaRollsBackIndex(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)
	s := connected(t, c)

	c.EXPECT().
		Do(gomock.Any(), mock.Match("FT.DROPINDEX", "contractrag:Page:idx", "DD")).
		Return(mock.Result(mock.RedisString("OK"))).Times(2)
	c.EXPECT().
		Do(gomock.Any(), mock.Match("DEL", "contractrag:schema:Page")).
		Return(mock.Result(mock.RedisInt64(1)))
	c.EXPECT().
		Do(gomock.Any(), mock.MatchFn(func(cmd []string) bool { return cmd[0] == "FT.CREATE" })).
		Return(mock.Result(mock.RedisString("OK")))
	c.EXPECT().
		DoMulti(gomock.Any(), gomock.Any()).
		Return([]rueidis.RedisResult{mock.ErrorResult(context.DeadlineExceeded)})

	err := s.CreateSchema(context.Background(), schema.ContractPages())
	if !errors.Is(err, domain.ErrProvider) {
		t.Fatalf("expected ErrProvider, got %v", err)
	}
}

func TestStore_CreateSchemaInvalid(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)
	s := connected(t, c)

	bad := schema.ContractPages()
	bad.Properties = append(bad.Properties, schema.Property{Name: "content", DataType: schema.Text})

	err := s.CreateSchema(context.Background(), bad)
	if !errors.Is(err, domain.ErrProvider) {
		t.Fatalf("expected ErrProvider, got %v", err)
	}
	if !strings.Contains(err.Error(), "duplicate") {
		t.Errorf("expected validation cause in %q", err)
	}
}

func TestStore_InsertObjects(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)
	emb := &fakeEmbedder{}
	s := connected(t, c, WithEmbedder(emb))
	expectSchema(t, c, schema.ContractPages())

	var batches [][]rueidis.Completed
	c.EXPECT().
		DoMulti(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, cmds ...rueidis.Completed) []rueidis.RedisResult {
			batches = append(batches, cmds)
			out := make([]rueidis.RedisResult, len(cmds))
			for i := range out {
				out[i] = mock.Result(mock.RedisInt64(4))
			}
			return out
		}).Times(2)

	date := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	objs := []storage.Object{
		page.New("msa.pdf", 1, "\nGoverning law", &date).Properties(),
		page.New("msa.pdf", 2, "\nTerm", &date).Properties(),
		page.New("msa.pdf", 3, "\nPayment", nil).Properties(),
	}
	if err := s.InsertObjects(context.Background(), "Page", objs, 2); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(batches) != 2 || len(batches[0]) != 2 || len(batches[1]) != 1 {
		t.Fatalf("unexpected batching: %d batches", len(batches))
	}
	if emb.texts[0] != "search_document: \nGoverning law" {
		t.Errorf("embedded text = %q", emb.texts[0])
	}

	args := batches[0][0].Commands()
	if args[0] != "HSET" || !strings.HasPrefix(args[1], "contractrag:Page:") {
		t.Fatalf("unexpected command %v", args[:2])
	}
	fields := map[string]string{}
	for i := 2; i+1 < len(args); i += 2 {
		fields[args[i]] = args[i+1]
	}
	if fields["effective_date"] != "1577836800" {
		t.Errorf("effective_date = %q, want unix seconds", fields["effective_date"])
	}
	if fields["page_number"] != "1" {
		t.Errorf("page_number = %q", fields["page_number"])
	}
	if len(fields["__vector"]) != 12 {
		t.Errorf("vector blob length = %d, want 12", len(fields["__vector"]))
	}

	last := batches[1][0].Commands()
	for _, a := range last {
		if a == "effective_date" {
			t.Error("unset date must not be written")
		}
	}
}

func TestStore_InsertWithoutEmbedder(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)
	s := connected(t, c)
	expectSchema(t, c, schema.ContractPages())

	objs := []storage.Object{page.New("msa.pdf", 1, "x", nil).Properties()}
	err := s.InsertObjects(context.Background(), "Page", objs, 0)
	if !errors.Is(err, domain.ErrProvider) {
		t.Errorf("expected ErrProvider, got %v", err)
	}
}

func TestStore_InsertUnknownProperty(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)
	s := connected(t, c, WithEmbedder(&fakeEmbedder{}))
	expectSchema(t, c, schema.ContractPages())

	err := s.InsertObjects(context.Background(), "Page", []storage.Object{{"author": "x"}}, 0)
	if !errors.Is(err, domain.ErrValidation) {
		t.Errorf("expected ErrValidation, got %v", err)
	}
}

func TestStore_MissingCollection(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)
	s := connected(t, c)

	c.EXPECT().
		Do(gomock.Any(), mock.Match("HGETALL", "contractrag:schema:Clause")).
		Return(mock.Result(mock.RedisMap(map[string]rueidis.RedisMessage{})))

	_, err := s.SearchKeyword(context.Background(), "Clause", "law", 2, filter.Expression{})
	if !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestStore_SchemaWithoutIndexIsMissing(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)
	s := connected(t, c)

	meta, err := marshalSchema(schema.ContractPages())
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	c.EXPECT().
		Do(gomock.Any(), mock.Match("HGETALL", "contractrag:schema:Page")).
		Return(mock.Result(mock.RedisMap(map[string]rueidis.RedisMessage{
			metaField: mock.RedisString(meta),
		})))
	c.EXPECT().
		Do(gomock.Any(), mock.Match("FT.INFO", "contractrag:Page:idx")).
		Return(mock.Result(mock.RedisError("Unknown index name")))

	_, err = s.SearchKeyword(context.Background(), "Page", "law", 2, filter.Expression{})
	if !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestStore_SearchKeyword(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)
	s := connected(t, c)
	expectSchema(t, c, schema.ContractPages())

	var query string
	c.EXPECT().
		Do(gomock.Any(), mock.MatchFn(func(cmd []string) bool {
			query = cmd[2]
			return cmd[0] == "FT.SEARCH"
		})).
		Return(mock.Result(mock.RedisArray(
			mock.RedisInt64(1),
			mock.RedisString("contractrag:Page:abc"),
			mock.RedisString("1.5"),
			mock.RedisArray(
				mock.RedisString("document"), mock.RedisString("msa.pdf"),
				mock.RedisString("page_number"), mock.RedisString("4"),
				mock.RedisString("content"), mock.RedisString("Governing law is France."),
				mock.RedisString("effective_date"), mock.RedisString("1577836800"),
			),
		)))

	since := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	res, err := s.SearchKeyword(context.Background(), "Page", "['governing law']", 2, dateFilter(t, since))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if query != "@effective_date:[1577836800 +inf] @content:(governing|law)" {
		t.Errorf("query = %q", query)
	}
	if len(res) != 1 {
		t.Fatalf("expected 1 result, got %d", len(res))
	}
	r := res[0]
	if r.ID() != "abc" {
		t.Errorf("id = %q", r.ID())
	}
	if score, ok := r.Score(); !ok || score != 1.5 {
		t.Errorf("score = %v, %v", score, ok)
	}
	props := r.Properties()
	if props["page_number"] != 4 {
		t.Errorf("page_number = %#v", props["page_number"])
	}
	if d, ok := props["effective_date"].(time.Time); !ok || !d.Equal(since) {
		t.Errorf("effective_date = %#v", props["effective_date"])
	}
}

func TestStore_SearchKeywordNoTerms(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)
	s := connected(t, c)
	expectSchema(t, c, schema.ContractPages())

	res, err := s.SearchKeyword(context.Background(), "Page", "[]", 2, filter.Expression{})
	if err != nil || len(res) != 0 {
		t.Errorf("expected no hits without a search call, got %v, %v", res, err)
	}
}

func TestStore_SearchVector(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)
	emb := &fakeEmbedder{}
	s := connected(t, c, WithEmbedder(emb))
	expectSchema(t, c, schema.ContractPages())

	c.EXPECT().
		Do(gomock.Any(), mock.MatchFn(func(cmd []string) bool {
			return cmd[0] == "FT.SEARCH" && cmd[2] == "*=>[KNN 2 @vector $BLOB]"
		})).
		Return(mock.Result(mock.RedisArray(
			mock.RedisInt64(1),
			mock.RedisString("contractrag:Page:xyz"),
			mock.RedisArray(
				mock.RedisString("content"), mock.RedisString("Term of two years."),
				mock.RedisString("__vector_score"), mock.RedisString("0.125"),
			),
		)))

	res, err := s.SearchVector(context.Background(), "Page", "term", 2, filter.Expression{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if emb.texts[0] != "search_query: term" {
		t.Errorf("query embedded as %q", emb.texts[0])
	}
	if d, ok := res[0].Distance(); !ok || d != 0.125 {
		t.Errorf("distance = %v, %v", d, ok)
	}
	if c, _ := res[0].Content(); c != "Term of two years." {
		t.Errorf("content = %q", c)
	}
}

func TestStore_SearchVectorEmbedFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)
	s := connected(t, c, WithEmbedder(&fakeEmbedder{err: errors.New("model not loaded")}))
	expectSchema(t, c, schema.ContractPages())

	_, err := s.SearchVector(context.Background(), "Page", "term", 2, filter.Expression{})
	if !errors.Is(err, domain.ErrProvider) {
		t.Errorf("expected ErrProvider, got %v", err)
	}
}

func TestStore_SearchBackendFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)
	s := connected(t, c)
	expectSchema(t, c, schema.ContractPages())

	c.EXPECT().
		Do(gomock.Any(), mock.MatchFn(func(cmd []string) bool { return cmd[0] == "FT.SEARCH" })).
		Return(mock.ErrorResult(context.DeadlineExceeded))

	_, err := s.SearchKeyword(context.Background(), "Page", "law", 2, filter.Expression{})
	if !errors.Is(err, domain.ErrProvider) {
		t.Errorf("expected ErrProvider, got %v", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected cause to be kept, got %v", err)
	}
}

func TestStore_SearchHybrid(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)
	s := connected(t, c, WithEmbedder(&fakeEmbedder{}))
	expectSchema(t, c, schema.ContractPages())

	c.EXPECT().
		Do(gomock.Any(), mock.MatchFn(func(cmd []string) bool {
			return cmd[0] == "FT.SEARCH" && strings.Contains(cmd[2], "KNN")
		})).
		Return(mock.Result(mock.RedisArray(
			mock.RedisInt64(2),
			mock.RedisString("contractrag:Page:a"),
			mock.RedisArray(mock.RedisString("content"), mock.RedisString("A"), mock.RedisString("__vector_score"), mock.RedisString("0.1")),
			mock.RedisString("contractrag:Page:b"),
			mock.RedisArray(mock.RedisString("content"), mock.RedisString("B"), mock.RedisString("__vector_score"), mock.RedisString("0.2")),
		)))
	c.EXPECT().
		Do(gomock.Any(), mock.MatchFn(func(cmd []string) bool {
			return cmd[0] == "FT.SEARCH" && strings.HasPrefix(cmd[2], "@content:")
		})).
		Return(mock.Result(mock.RedisArray(
			mock.RedisInt64(1),
			mock.RedisString("contractrag:Page:b"),
			mock.RedisString("2.0"),
			mock.RedisArray(mock.RedisString("content"), mock.RedisString("B")),
		)))

	res, err := s.SearchHybrid(context.Background(), "Page", "b", 2, filter.Expression{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res) != 2 || res[0].ID() != "b" {
		t.Fatalf("expected b first after fusion, got %v", res)
	}
	if _, ok := res[0].Score(); !ok {
		t.Error("hybrid hits carry a score")
	}
}

func TestStore_MatchFilterOnFullTextProperty(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)
	s := connected(t, c)
	expectSchema(t, c, schema.ContractPages())

	cond, _ := filter.NewMatch("content", "law")
	f, _ := filter.NewExpression([]filter.Condition{cond}, nil, nil)

	_, err := s.SearchKeyword(context.Background(), "Page", "law", 2, f)
	if !errors.Is(err, domain.ErrValidation) {
		t.Errorf("expected ErrValidation, got %v", err)
	}
}

func TestStore_LimitValidation(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)
	s := connected(t, c)

	_, err := s.SearchVector(context.Background(), "Page", "law", 0, filter.Expression{})
	if !errors.Is(err, domain.ErrValidation) {
		t.Errorf("expected ErrValidation, got %v", err)
	}
}

func TestStore_DropAllCollections(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)
	s := connected(t, c)

	c.EXPECT().
		Do(gomock.Any(), mock.MatchFn(func(cmd []string) bool {
			return cmd[0] == "SCAN" && cmd[3] == "contractrag:schema:*"
		})).
		Return(mock.Result(mock.RedisArray(
			mock.RedisInt64(0),
			mock.RedisArray(mock.RedisString("contractrag:schema:Page"), mock.RedisString("contractrag:schema:Clause")),
		)))
	for _, name := range []string{"Page", "Clause"} {
		c.EXPECT().
			Do(gomock.Any(), mock.Match("FT.DROPINDEX", "contractrag:"+name+":idx", "DD")).
			Return(mock.Result(mock.RedisString("OK")))
		c.EXPECT().
			Do(gomock.Any(), mock.Match("DEL", "contractrag:schema:"+name)).
			Return(mock.Result(mock.RedisInt64(1)))
	}

	if err := s.DropAllCollections(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestStore_EmbeddingCache(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)
	emb := &fakeEmbedder{}
	s := connected(t, c, WithEmbedder(emb), WithEmbeddingCache(time.Hour, nil))
	expectSchema(t, c, schema.ContractPages())

	cached := rueidis.VectorString32([]float32{0, 1, 0})
	c.EXPECT().
		Do(gomock.Any(), mock.MatchFn(func(cmd []string) bool {
			return cmd[0] == "GET" && strings.HasPrefix(cmd[1], "contractrag:emb_cache:")
		})).
		Return(mock.Result(mock.RedisBlobString(cached)))
	c.EXPECT().
		Do(gomock.Any(), mock.MatchFn(func(cmd []string) bool { return cmd[0] == "FT.SEARCH" })).
		Return(mock.Result(mock.RedisArray(mock.RedisInt64(0))))

	if _, err := s.SearchVector(context.Background(), "Page", "term", 2, filter.Expression{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(emb.texts) != 0 {
		t.Errorf("cache hit must not call the provider, got %v", emb.texts)
	}
}

func TestSchemaRoundTrip(t *testing.T) {
	want := schema.ContractPages()
	data, err := marshalSchema(want)
	if err != nil {
		t.Fatal(err)
	}
	got, err := unmarshalSchema(data)
	if err != nil {
		t.Fatal(err)
	}
	if got.CollectionName != want.CollectionName || len(got.Properties) != len(want.Properties) {
		t.Fatalf("got %+v", got)
	}
	if got.VectorConfig != want.VectorConfig || got.GenerativeConfig != want.GenerativeConfig {
		t.Errorf("configs differ: %+v vs %+v", got.VectorConfig, want.VectorConfig)
	}
}
