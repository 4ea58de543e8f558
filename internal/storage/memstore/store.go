// Package memstore is a deterministic in-memory storage adapter. It honours
// the full storage contract and needs no network, which makes it the test
// double for the pipelines and a backend for local runs.
package memstore

import (
	"context"
	"fmt"
	"math"
	"slices"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/kailas-cloud/contractrag/internal/domain"
	"github.com/kailas-cloud/contractrag/internal/domain/schema"
	"github.com/kailas-cloud/contractrag/internal/domain/search/filter"
	"github.com/kailas-cloud/contractrag/internal/domain/search/result"
	"github.com/kailas-cloud/contractrag/internal/storage"
)

var _ storage.Port = (*Store)(nil)

// Okapi BM25 parameters.
const (
	bm25K1 = 1.2
	bm25B  = 0.75
)

// Data is the shared backing memory. Several Store sessions over one Data
// behave like several connections to the same server.
type Data struct {
	mu          sync.RWMutex
	collections map[string]*collection
}

// NewData creates empty backing memory.
func NewData() *Data {
	return &Data{collections: make(map[string]*collection)}
}

type collection struct {
	schema  schema.Schema
	objects []object
}

type object struct {
	id     string
	props  storage.Object
	terms  map[string]int // keyword terms of text-indexed properties
	length int
	vector []float32 // set when an embedder is configured
	tf     map[string]float64
}

// Store is one session over Data.
type Store struct {
	data  *Data
	embed domain.Embedder

	mu        sync.Mutex
	connected bool
}

// Option configures a Store.
type Option func(*Store)

// WithEmbedder makes vector search use real embeddings instead of
// term-frequency vectors.
func WithEmbedder(e domain.Embedder) Option {
	return func(s *Store) { s.embed = e }
}

// New creates a session over data. A nil data gets fresh memory.
func New(data *Data, opts ...Option) *Store {
	if data == nil {
		data = NewData()
	}
	s := &Store{data: data}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Connect opens the session.
func (s *Store) Connect(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return domain.NewProviderError("connect", err)
	}
	s.mu.Lock()
	s.connected = true
	s.mu.Unlock()
	return nil
}

// Close ends the session. Stored data is kept.
func (s *Store) Close() error {
	s.mu.Lock()
	s.connected = false
	s.mu.Unlock()
	return nil
}

// Ping reports whether the session is open.
func (s *Store) Ping(context.Context) error {
	return s.require()
}

func (s *Store) require() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.connected {
		return fmt.Errorf("memstore: %w", domain.ErrConnection)
	}
	return nil
}

// CreateSchema replaces any collection of the same name.
func (s *Store) CreateSchema(_ context.Context, sc schema.Schema) error {
	if err := s.require(); err != nil {
		return err
	}
	if err := sc.Validate(); err != nil {
		return domain.NewProviderError("create schema", fmt.Errorf("invalid schema: %w", err))
	}

	s.data.mu.Lock()
	defer s.data.mu.Unlock()
	s.data.collections[sc.CollectionName] = &collection{schema: sc}
	return nil
}

// DropAllCollections removes everything.
func (s *Store) DropAllCollections(context.Context) error {
	if err := s.require(); err != nil {
		return err
	}
	s.data.mu.Lock()
	defer s.data.mu.Unlock()
	s.data.collections = make(map[string]*collection)
	return nil
}

// InsertObjects appends objects batch by batch. Each batch is validated
// before it is stored; earlier batches stay on failure.
func (s *Store) InsertObjects(ctx context.Context, name string, objects []storage.Object, batchSize int) error {
	if err := s.require(); err != nil {
		return err
	}
	sc, err := s.schema(name)
	if err != nil {
		return err
	}

	for i, batch := range storage.Batches(objects, batchSize) {
		prepared, err := s.prepare(ctx, sc, batch)
		if err != nil {
			return fmt.Errorf("batch %d: %w", i, err)
		}
		s.data.mu.Lock()
		col, ok := s.data.collections[name]
		if !ok {
			s.data.mu.Unlock()
			return domain.NotFoundf("collection %s", name)
		}
		col.objects = append(col.objects, prepared...)
		s.data.mu.Unlock()
	}
	return nil
}

func (s *Store) prepare(ctx context.Context, sc schema.Schema, batch []storage.Object) ([]object, error) {
	out := make([]object, len(batch))
	texts := make([]string, len(batch))
	for i, raw := range batch {
		props, err := storage.Normalize(sc, raw)
		if err != nil {
			return nil, err
		}
		terms := storage.Terms(joinProps(props, sc.TextIndexed()))
		out[i] = object{
			id:     uuid.NewString(),
			props:  props,
			terms:  counts(terms),
			length: len(terms),
		}
		texts[i] = joinProps(props, sc.Vectorized())
	}

	if s.embed != nil && len(sc.Vectorized()) > 0 {
		emb := domain.WithInstruction(s.embed, sc.VectorConfig.DocumentInstruction)
		res, err := domain.EmbedAll(ctx, emb, texts)
		if err != nil {
			return nil, domain.NewProviderError("embed objects", err)
		}
		for i := range out {
			out[i].vector = res.Embeddings[i]
		}
		return out, nil
	}
	for i := range out {
		out[i].tf = normalize(counts(storage.Terms(texts[i])))
	}
	return out, nil
}

// SearchKeyword ranks by Okapi BM25 over text-indexed properties.
// Objects sharing no term with the query are not returned.
func (s *Store) SearchKeyword(
	_ context.Context, name, query string, limit int, f filter.Expression,
) ([]result.Result, error) {
	col, err := s.candidates(name, limit, f)
	if err != nil {
		return nil, err
	}
	qterms := unique(storage.Terms(query))
	if len(qterms) == 0 || len(col.matched) == 0 {
		return nil, nil
	}

	avgdl := 0.0
	df := make(map[string]int, len(qterms))
	for _, o := range col.all {
		avgdl += float64(o.length)
		for _, t := range qterms {
			if o.terms[t] > 0 {
				df[t]++
			}
		}
	}
	avgdl /= float64(len(col.all))
	if avgdl == 0 {
		avgdl = 1
	}
	n := float64(len(col.all))

	type ranked struct {
		obj   object
		score float64
	}
	var hits []ranked
	for _, o := range col.matched {
		score := 0.0
		for _, t := range qterms {
			tf := float64(o.terms[t])
			if tf == 0 {
				continue
			}
			idf := math.Log(1 + (n-float64(df[t])+0.5)/(float64(df[t])+0.5))
			score += idf * tf * (bm25K1 + 1) / (tf + bm25K1*(1-bm25B+bm25B*float64(o.length)/avgdl))
		}
		if score > 0 {
			hits = append(hits, ranked{obj: o, score: score})
		}
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].score > hits[j].score })

	out := make([]result.Result, 0, min(limit, len(hits)))
	for _, h := range hits[:min(limit, len(hits))] {
		out = append(out, result.NewScored(h.obj.id, copyProps(h.obj.props), h.score))
	}
	return out, nil
}

// SearchVector ranks by cosine distance to the query.
func (s *Store) SearchVector(
	ctx context.Context, name, query string, limit int, f filter.Expression,
) ([]result.Result, error) {
	col, err := s.candidates(name, limit, f)
	if err != nil {
		return nil, err
	}

	var distance func(o object) float64
	if s.embed != nil {
		emb := domain.WithInstruction(s.embed, col.schema.VectorConfig.QueryInstruction)
		res, err := emb.Embed(ctx, query)
		if err != nil {
			return nil, domain.NewProviderError("embed query", err)
		}
		distance = func(o object) float64 { return 1 - cosine(o.vector, res.Embedding) }
	} else {
		q := normalize(counts(storage.Terms(query)))
		distance = func(o object) float64 { return 1 - dotSparse(o.tf, q) }
	}

	type ranked struct {
		obj  object
		dist float64
	}
	hits := make([]ranked, len(col.matched))
	for i, o := range col.matched {
		hits[i] = ranked{obj: o, dist: distance(o)}
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].dist < hits[j].dist })

	out := make([]result.Result, 0, min(limit, len(hits)))
	for _, h := range hits[:min(limit, len(hits))] {
		out = append(out, result.NewDistanced(h.obj.id, copyProps(h.obj.props), h.dist))
	}
	return out, nil
}

// SearchHybrid fuses the keyword and vector rankings with RRF.
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

// candidates returns a snapshot of the collection restricted to f.
// snapshot is a consistent read of one collection: the objects matching a
// filter and every object, both taken under the same lock.
type snapshot struct {
	schema  schema.Schema
	matched []object
	all     []object
}

func (s *Store) candidates(name string, limit int, f filter.Expression) (snapshot, error) {
	if err := s.require(); err != nil {
		return snapshot{}, err
	}
	if err := storage.CheckLimit(limit); err != nil {
		return snapshot{}, err
	}

	s.data.mu.RLock()
	defer s.data.mu.RUnlock()
	col, ok := s.data.collections[name]
	if !ok {
		return snapshot{}, domain.NotFoundf("collection %s", name)
	}
	if err := storage.ValidateFilter(f, col.schema); err != nil {
		return snapshot{}, err
	}

	out := snapshot{schema: col.schema, all: slices.Clone(col.objects)}
	for _, o := range out.all {
		if f.Matches(o.props) {
			out.matched = append(out.matched, o)
		}
	}
	return out, nil
}

func (s *Store) schema(name string) (schema.Schema, error) {
	s.data.mu.RLock()
	defer s.data.mu.RUnlock()
	col, ok := s.data.collections[name]
	if !ok {
		return schema.Schema{}, domain.NotFoundf("collection %s", name)
	}
	return col.schema, nil
}

func joinProps(props storage.Object, names []string) string {
	parts := make([]string, 0, len(names))
	for _, n := range names {
		if v, ok := props[n].(string); ok {
			parts = append(parts, v)
		}
	}
	return strings.Join(parts, "\n")
}

func copyProps(p storage.Object) map[string]any {
	out := make(map[string]any, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

func counts(terms []string) map[string]int {
	m := make(map[string]int, len(terms))
	for _, t := range terms {
		m[t]++
	}
	return m
}

func unique(terms []string) []string {
	seen := make(map[string]bool, len(terms))
	out := terms[:0:0]
	for _, t := range terms {
		if !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	return out
}

// normalize turns term counts into a unit-length sparse vector.
func normalize(c map[string]int) map[string]float64 {
	norm := 0.0
	for _, n := range c {
		norm += float64(n * n)
	}
	out := make(map[string]float64, len(c))
	if norm == 0 {
		return out
	}
	norm = math.Sqrt(norm)
	for t, n := range c {
		out[t] = float64(n) / norm
	}
	return out
}

func dotSparse(a, b map[string]float64) float64 {
	if len(b) < len(a) {
		a, b = b, a
	}
	sum := 0.0
	for t, v := range a {
		sum += v * b[t]
	}
	return sum
}

func cosine(a, b []float32) float64 {
	n := min(len(a), len(b))
	var dot, na, nb float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
