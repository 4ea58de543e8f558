// Package embcache is a caching decorator for embedders, keyed by a hash of
// the text so identical passages and queries are embedded once.
package embcache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/rueidis"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/kailas-cloud/contractrag/internal/db"
	"github.com/kailas-cloud/contractrag/internal/domain"
)

// DefaultKeyPrefix namespaces cache entries in a shared store.
const DefaultKeyPrefix = "contractrag:emb_cache:"

// store is the slice of the KV store the cache needs.
type store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// CachedEmbedder serves embeddings from a key-value store and calls the
// wrapped embedder only for texts it has not seen.
type CachedEmbedder struct {
	inner     domain.Embedder
	store     store
	keyPrefix string
	ttl       time.Duration
	lookups   *prometheus.CounterVec
	logger    *zap.Logger

	// concurrent misses on the same key share one provider call
	inflight singleflight.Group
}

// Option configures a CachedEmbedder.
type Option func(*CachedEmbedder)

// WithKeyPrefix sets the key namespace. Include the model name so vectors of
// different models never mix.
func WithKeyPrefix(prefix string) Option {
	return func(c *CachedEmbedder) { c.keyPrefix = prefix }
}

// WithTTL expires cache entries. Zero keeps them forever.
func WithTTL(ttl time.Duration) Option {
	return func(c *CachedEmbedder) { c.ttl = ttl }
}

// New wraps inner. lookups, when not nil, is incremented with the label
// "hit" or "miss" for every text looked up.
func New(
	inner domain.Embedder,
	s store,
	lookups *prometheus.CounterVec,
	logger *zap.Logger,
	opts ...Option,
) *CachedEmbedder {
	c := &CachedEmbedder{
		inner:     inner,
		store:     s,
		keyPrefix: DefaultKeyPrefix,
		lookups:   lookups,
		logger:    logger,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Embed returns the cached vector or embeds text and stores the result.
// A hit reports no token usage.
func (c *CachedEmbedder) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	key := c.cacheKey(text)
	if vec, ok := c.lookup(ctx, key); ok {
		return domain.EmbeddingResult{Embedding: vec}, nil
	}

	v, err, _ := c.inflight.Do(key, func() (any, error) {
		res, err := c.inner.Embed(ctx, text)
		if err != nil {
			return domain.EmbeddingResult{}, err
		}
		c.save(ctx, key, res.Embedding)
		return res, nil
	})
	if err != nil {
		return domain.EmbeddingResult{}, fmt.Errorf("embed text: %w", err)
	}
	return v.(domain.EmbeddingResult), nil
}

// BatchEmbed serves hits from the cache and sends the distinct misses to
// the inner embedder in one call.
func (c *CachedEmbedder) BatchEmbed(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	if len(texts) == 0 {
		return domain.BatchEmbeddingResult{}, nil
	}

	embeddings := make([][]float32, len(texts))
	keys := make([]string, len(texts))
	pending := make(map[string][]int) // key -> positions waiting for it
	var missKeys, missTexts []string

	for i, text := range texts {
		keys[i] = c.cacheKey(text)
		if at, ok := pending[keys[i]]; ok {
			pending[keys[i]] = append(at, i)
			continue
		}
		if vec, ok := c.lookup(ctx, keys[i]); ok {
			embeddings[i] = vec
			continue
		}
		pending[keys[i]] = []int{i}
		missKeys = append(missKeys, keys[i])
		missTexts = append(missTexts, text)
	}

	out := domain.BatchEmbeddingResult{Embeddings: embeddings}
	if len(missTexts) == 0 {
		return out, nil
	}

	res, err := domain.EmbedAll(ctx, c.inner, missTexts)
	if err != nil {
		return domain.BatchEmbeddingResult{}, fmt.Errorf("batch embed %d texts: %w", len(missTexts), err)
	}
	for j, key := range missKeys {
		for _, i := range pending[key] {
			embeddings[i] = res.Embeddings[j]
		}
		c.save(ctx, key, res.Embeddings[j])
	}
	out.PromptTokens = res.PromptTokens
	out.TotalTokens = res.TotalTokens
	return out, nil
}

func (c *CachedEmbedder) cacheKey(text string) string {
	h := sha256.Sum256([]byte(text))
	return c.keyPrefix + hex.EncodeToString(h[:])
}

func (c *CachedEmbedder) count(result string) {
	if c.lookups != nil {
		c.lookups.WithLabelValues(result).Inc()
	}
}

// lookup never fails: store errors and corrupt entries count as misses.
func (c *CachedEmbedder) lookup(ctx context.Context, key string) ([]float32, bool) {
	data, err := c.store.Get(ctx, key)
	switch {
	case errors.Is(err, db.ErrKeyNotFound):
	case err != nil:
		c.logger.Warn("embedding cache read failed", zap.String("key", key), zap.Error(err))
	case len(data) == 0 || len(data)%4 != 0:
		c.logger.Warn("corrupt cached embedding", zap.String("key", key), zap.Int("bytes", len(data)))
	default:
		c.count("hit")
		return rueidis.ToVector32(string(data)), true
	}
	c.count("miss")
	return nil, false
}

func (c *CachedEmbedder) save(ctx context.Context, key string, vec []float32) {
	data := []byte(rueidis.VectorString32(vec))
	if err := c.store.SetWithTTL(ctx, key, data, c.ttl); err != nil {
		c.logger.Warn("embedding cache write failed", zap.String("key", key), zap.Error(err))
	}
}
