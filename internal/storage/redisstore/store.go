// Package redisstore is the storage adapter for the Redis Query Engine.
// A collection is an FT index over hashes; its schema is kept in a metadata
// hash so any session can decode records back into typed properties.
package redisstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/rueidis"
	"go.uber.org/zap"

	"github.com/kailas-cloud/contractrag/internal/db"
	"github.com/kailas-cloud/contractrag/internal/db/redis"
	"github.com/kailas-cloud/contractrag/internal/domain"
	"github.com/kailas-cloud/contractrag/internal/domain/schema"
	"github.com/kailas-cloud/contractrag/internal/domain/search/filter"
	"github.com/kailas-cloud/contractrag/internal/domain/search/result"
	"github.com/kailas-cloud/contractrag/internal/repository/embcache"
	"github.com/kailas-cloud/contractrag/internal/storage"
)

var _ storage.Port = (*Store)(nil)

// DefaultPrefix namespaces every key the adapter writes.
const DefaultPrefix = "contractrag:"

// vectorField is the hash field holding the embedding; the index exposes it
// under the vectorAlias used by KNN queries.
const (
	vectorField = "__vector"
	vectorAlias = "vector"
)

var errNoEmbedder = errors.New("no embedder configured for a vectorized collection")

// Backend is the subset of the database facade the adapter needs.
type Backend interface {
	db.Pinger
	db.HashStore
	db.KVStore
	db.IndexManager
	db.Searcher
	Close()
}

// Dialer opens a backend session.
type Dialer func(ctx context.Context) (Backend, error)

// Dial returns a Dialer for a Redis 8 server that waits up to readyTimeout
// for the server to answer.
func Dial(cfg redis.Config, readyTimeout time.Duration) Dialer {
	return func(ctx context.Context) (Backend, error) {
		s, err := redis.NewStore(cfg)
		if err != nil {
			return nil, err
		}
		if err := s.WaitForReady(ctx, readyTimeout); err != nil {
			s.Close()
			return nil, err
		}
		return s, nil
	}
}

// Store is one session against the server.
type Store struct {
	dial       Dialer
	prefix     string
	embed      domain.Embedder
	cacheTTL   time.Duration
	cacheOn    bool
	cacheTotal *prometheus.CounterVec
	logger     *zap.Logger

	mu       sync.Mutex
	backend  Backend
	embedder domain.Embedder
	schemas  map[string]schema.Schema
}

// Option configures a Store.
type Option func(*Store)

// WithPrefix overrides DefaultPrefix.
func WithPrefix(prefix string) Option {
	return func(s *Store) { s.prefix = prefix }
}

// WithEmbedder sets the vectorizer used for documents and queries.
func WithEmbedder(e domain.Embedder) Option {
	return func(s *Store) { s.embed = e }
}

// WithEmbeddingCache caches embeddings on the same server. cacheTotal may be nil.
func WithEmbeddingCache(ttl time.Duration, cacheTotal *prometheus.CounterVec) Option {
	return func(s *Store) {
		s.cacheOn = true
		s.cacheTTL = ttl
		s.cacheTotal = cacheTotal
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// New creates a disconnected session.
func New(dial Dialer, opts ...Option) *Store {
	s := &Store{
		dial:   dial,
		prefix: DefaultPrefix,
		logger: zap.NewNop(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Connect opens the session. Calling it on an open session is a no-op.
func (s *Store) Connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.backend != nil {
		return nil
	}

	b, err := s.dial(ctx)
	if err != nil {
		return domain.NewProviderError("connect", err)
	}
	if err := b.Ping(ctx); err != nil {
		b.Close()
		return domain.NewProviderError("connect", err)
	}

	s.backend = b
	s.schemas = make(map[string]schema.Schema)
	s.embedder = s.embed
	if s.embed != nil && s.cacheOn {
		s.embedder = embcache.New(s.embed, b, s.cacheTotal, s.logger,
			embcache.WithKeyPrefix(s.prefix+"emb_cache:"),
			embcache.WithTTL(s.cacheTTL))
	}
	s.logger.Debug("Storage session opened", zap.String("prefix", s.prefix))
	return nil
}

// Close ends the session. Safe without Connect and idempotent.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.backend == nil {
		return nil
	}
	s.backend.Close()
	s.backend = nil
	s.embedder = nil
	s.schemas = nil
	return nil
}

// Ping checks the open session.
func (s *Store) Ping(ctx context.Context) error {
	b, err := s.session()
	if err != nil {
		return err
	}
	return b.Ping(ctx)
}

func (s *Store) session() (Backend, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.backend == nil {
		return nil, fmt.Errorf("redisstore: %w", domain.ErrConnection)
	}
	return s.backend, nil
}

func (s *Store) indexName(collection string) string { return s.prefix + collection + ":idx" }
func (s *Store) keyPrefix(collection string) string { return s.prefix + collection + ":" }
func (s *Store) metaKey(collection string) string   { return s.prefix + "schema:" + collection }

// CreateSchema replaces any collection of the same name.
func (s *Store) CreateSchema(ctx context.Context, sc schema.Schema) error {
	b, err := s.session()
	if err != nil {
		return err
	}
	if err := sc.Validate(); err != nil {
		return domain.NewProviderError("create schema", fmt.Errorf("invalid schema: %w", err))
	}
	def, err := indexDefinition(s.indexName(sc.CollectionName), s.keyPrefix(sc.CollectionName), sc)
	if err != nil {
		return domain.NewProviderError("create schema", err)
	}
	meta, err := marshalSchema(sc)
	if err != nil {
		return domain.NewProviderError("create schema", err)
	}

	if err := s.dropCollection(ctx, b, sc.CollectionName); err != nil {
		return domain.NewProviderError("create schema", err)
	}
	if err := b.CreateIndex(ctx, def); err != nil {
		return domain.NewProviderError("create schema", err)
	}
	err = b.HSetMulti(ctx, []db.HashSetItem{{
		Key:    s.metaKey(sc.CollectionName),
		Fields: map[string]string{metaField: meta},
	}})
	if err != nil {
		if dropErr := b.DropIndex(ctx, def.Name, true); dropErr != nil {
			err = errors.Join(err, fmt.Errorf("rollback: %w", dropErr))
		}
		return domain.NewProviderError("create schema", err)
	}

	s.mu.Lock()
	if s.schemas != nil {
		s.schemas[sc.CollectionName] = sc
	}
	s.mu.Unlock()

	s.logger.Info("Collection created",
		zap.String("collection", sc.CollectionName),
		zap.String("index", def.Name))
	return nil
}

// DropAllCollections drops every collection this prefix owns, records included.
func (s *Store) DropAllCollections(ctx context.Context) error {
	b, err := s.session()
	if err != nil {
		return err
	}
	keys, err := b.Scan(ctx, s.metaKey("*"))
	if err != nil {
		return domain.NewProviderError("drop all collections", err)
	}
	for _, key := range keys {
		name := strings.TrimPrefix(key, s.metaKey(""))
		if err := s.dropCollection(ctx, b, name); err != nil {
			return domain.NewProviderError("drop all collections", err)
		}
	}

	s.mu.Lock()
	if s.schemas != nil {
		s.schemas = make(map[string]schema.Schema)
	}
	s.mu.Unlock()

	s.logger.Info("Collections dropped", zap.Int("count", len(keys)))
	return nil
}

func (s *Store) dropCollection(ctx context.Context, b Backend, name string) error {
	if err := b.DropIndex(ctx, s.indexName(name), true); err != nil && !errors.Is(err, db.ErrIndexNotFound) {
		return fmt.Errorf("drop collection %s: %w", name, err)
	}
	if err := b.Del(ctx, s.metaKey(name)); err != nil {
		return fmt.Errorf("drop collection %s: %w", name, err)
	}
	s.mu.Lock()
	delete(s.schemas, name)
	s.mu.Unlock()
	return nil
}

// schema returns the collection's schema, loading it from the metadata hash
// once per session. Metadata whose index was dropped counts as missing.
func (s *Store) schema(ctx context.Context, b Backend, name string) (schema.Schema, error) {
	s.mu.Lock()
	sc, ok := s.schemas[name]
	s.mu.Unlock()
	if ok {
		return sc, nil
	}

	fields, err := b.HGetAll(ctx, s.metaKey(name))
	if errors.Is(err, db.ErrKeyNotFound) {
		return schema.Schema{}, domain.NotFoundf("collection %s", name)
	}
	if err != nil {
		return schema.Schema{}, domain.NewProviderError("load schema", err)
	}
	sc, err = unmarshalSchema(fields[metaField])
	if err != nil {
		return schema.Schema{}, domain.NewProviderError("load schema", err)
	}
	exists, err := b.IndexExists(ctx, s.indexName(name))
	if err != nil {
		return schema.Schema{}, domain.NewProviderError("load schema", err)
	}
	if !exists {
		return schema.Schema{}, domain.NotFoundf("collection %s: index %s is gone", name, s.indexName(name))
	}

	s.mu.Lock()
	if s.schemas != nil {
		s.schemas[name] = sc
	}
	s.mu.Unlock()
	return sc, nil
}

func (s *Store) vectorizer() domain.Embedder {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.embedder
}

// InsertObjects writes objects batch by batch, one pipelined round-trip per
// batch. Earlier batches stay on failure.
func (s *Store) InsertObjects(ctx context.Context, name string, objects []storage.Object, batchSize int) error {
	b, err := s.session()
	if err != nil {
		return err
	}
	sc, err := s.schema(ctx, b, name)
	if err != nil {
		return err
	}

	for i, batch := range storage.Batches(objects, batchSize) {
		items, err := s.prepare(ctx, sc, batch)
		if err != nil {
			return fmt.Errorf("batch %d: %w", i, err)
		}
		if err := b.HSetMulti(ctx, items); err != nil {
			return fmt.Errorf("batch %d: %w", i, domain.NewProviderError("insert objects", err))
		}
	}
	return nil
}

func (s *Store) prepare(ctx context.Context, sc schema.Schema, batch []storage.Object) ([]db.HashSetItem, error) {
	items := make([]db.HashSetItem, len(batch))
	texts := make([]string, len(batch))
	vectorized := sc.Vectorized()

	for i, raw := range batch {
		props, err := storage.Normalize(sc, raw)
		if err != nil {
			return nil, err
		}
		items[i] = db.HashSetItem{
			Key:    s.keyPrefix(sc.CollectionName) + uuid.NewString(),
			Fields: encodeFields(props),
		}
		texts[i] = joinText(props, vectorized)
	}

	if !sc.VectorConfig.IsSet() || len(vectorized) == 0 {
		return items, nil
	}
	emb := s.vectorizer()
	if emb == nil {
		return nil, domain.NewProviderError("embed objects", errNoEmbedder)
	}
	res, err := domain.EmbedAll(ctx, domain.WithInstruction(emb, sc.VectorConfig.DocumentInstruction), texts)
	if err != nil {
		return nil, domain.NewProviderError("embed objects", err)
	}
	for i := range items {
		items[i].Fields[vectorField] = rueidis.VectorString32(res.Embeddings[i])
	}
	return items, nil
}

// SearchKeyword runs BM25 over the text-indexed properties. Query terms are
// OR-ed; a query without word terms returns no hits.
func (s *Store) SearchKeyword(
	ctx context.Context, name, query string, limit int, f filter.Expression,
) ([]result.Result, error) {
	b, sc, err := s.searchable(ctx, name, limit, f)
	if err != nil {
		return nil, err
	}
	terms := storage.Terms(query)
	fields := sc.TextIndexed()
	if len(terms) == 0 || len(fields) == 0 {
		return nil, nil
	}

	res, err := b.SearchBM25(ctx, &db.TextQuery{
		IndexName:    s.indexName(name),
		Terms:        terms,
		Fields:       fields,
		Filters:      f,
		TopK:         limit,
		ReturnFields: sc.Names(),
	})
	if err != nil {
		return nil, domain.NewProviderError("keyword search", err)
	}

	out := make([]result.Result, 0, len(res.Entries))
	for _, e := range res.Entries {
		out = append(out, result.NewScored(s.objectID(name, e.Key), decodeFields(sc, e.Fields), e.Score))
	}
	return out, nil
}

// SearchVector runs KNN on the query embedding; hits carry cosine distance.
func (s *Store) SearchVector(
	ctx context.Context, name, query string, limit int, f filter.Expression,
) ([]result.Result, error) {
	b, sc, err := s.searchable(ctx, name, limit, f)
	if err != nil {
		return nil, err
	}
	if !sc.VectorConfig.IsSet() {
		return nil, domain.Validationf("collection %s has no vector config", name)
	}
	emb := s.vectorizer()
	if emb == nil {
		return nil, domain.NewProviderError("embed query", errNoEmbedder)
	}
	vec, err := domain.WithInstruction(emb, sc.VectorConfig.QueryInstruction).Embed(ctx, query)
	if err != nil {
		return nil, domain.NewProviderError("embed query", err)
	}

	res, err := b.SearchKNN(ctx, &db.KNNQuery{
		IndexName:    s.indexName(name),
		VectorField:  vectorAlias,
		Filters:      f,
		Vector:       vec.Embedding,
		K:            limit,
		ReturnFields: append(sc.Names(), db.VectorScoreField),
		RawScores:    true,
	})
	if err != nil {
		return nil, domain.NewProviderError("vector search", err)
	}

	out := make([]result.Result, 0, len(res.Entries))
	for _, e := range res.Entries {
		out = append(out, result.NewDistanced(s.objectID(name, e.Key), decodeFields(sc, e.Fields), e.Score))
	}
	return out, nil
}

// SearchHybrid fuses the vector and keyword rankings with RRF.
func (s *Store) SearchHybrid(
	ctx context.Context, name, query string, limit int, f filter.Expression,
) ([]result.Result, error) {
	vec, err := s.SearchVector(ctx, name, query, limit, f)
	if err != nil {
		return nil, err
	}
	kw, err := s.SearchKeyword(ctx, name, query, limit, f)
	if err != nil {
		return nil, err
	}
	return storage.FuseRRF(vec, kw, limit), nil
}

// searchable runs the checks shared by all strategies.
func (s *Store) searchable(
	ctx context.Context, name string, limit int, f filter.Expression,
) (Backend, schema.Schema, error) {
	b, err := s.session()
	if err != nil {
		return nil, schema.Schema{}, err
	}
	if err := storage.CheckLimit(limit); err != nil {
		return nil, schema.Schema{}, err
	}
	sc, err := s.schema(ctx, b, name)
	if err != nil {
		return nil, schema.Schema{}, err
	}
	if err := validateFilter(f, sc); err != nil {
		return nil, schema.Schema{}, err
	}
	return b, sc, nil
}

// validateFilter adds the index constraint on top of the schema check:
// match conditions need a TAG field, so text-indexed properties cannot take them.
func validateFilter(f filter.Expression, sc schema.Schema) error {
	if err := storage.ValidateFilter(f, sc); err != nil {
		return err
	}
	for _, group := range [][]filter.Condition{f.Must(), f.Should(), f.MustNot()} {
		for _, c := range group {
			if p, _ := sc.Property(c.Key()); c.IsMatch() && p.IndexText {
				return domain.Validationf("match filter on full-text property %q", c.Key())
			}
		}
	}
	return nil
}

func (s *Store) objectID(collection, key string) string {
	return strings.TrimPrefix(key, s.keyPrefix(collection))
}

func joinText(props storage.Object, names []string) string {
	parts := make([]string, 0, len(names))
	for _, n := range names {
		if v, ok := props[n].(string); ok {
			parts = append(parts, v)
		}
	}
	return strings.Join(parts, "\n")
}
