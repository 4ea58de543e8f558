package embcache

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/redis/rueidis"
	"go.uber.org/zap"

	"github.com/kailas-cloud/contractrag/internal/db"
	"github.com/kailas-cloud/contractrag/internal/domain"
)

// lenEmbedder embeds a text as {len(text)} and bills tokensPer per text.
type lenEmbedder struct {
	tokensPer int
	err       error
	short     bool // return one vector fewer than asked

	embeds  atomic.Int32
	batches atomic.Int32
	sent    [][]string
	mu      sync.Mutex
	block   chan struct{} // when set, Embed waits on it
}

func (e *lenEmbedder) Embed(_ context.Context, text string) (domain.EmbeddingResult, error) {
	e.embeds.Add(1)
	if e.block != nil {
		<-e.block
	}
	if e.err != nil {
		return domain.EmbeddingResult{}, e.err
	}
	return domain.EmbeddingResult{
		Embedding:    []float32{float32(len(text))},
		PromptTokens: e.tokensPer,
		TotalTokens:  e.tokensPer,
	}, nil
}

func (e *lenEmbedder) BatchEmbed(_ context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	e.batches.Add(1)
	e.mu.Lock()
	e.sent = append(e.sent, texts)
	e.mu.Unlock()
	if e.err != nil {
		return domain.BatchEmbeddingResult{}, e.err
	}
	n := len(texts)
	if e.short {
		n--
	}
	out := domain.BatchEmbeddingResult{Embeddings: make([][]float32, n)}
	for i := range n {
		out.Embeddings[i] = []float32{float32(len(texts[i]))}
	}
	out.PromptTokens = e.tokensPer * len(texts)
	out.TotalTokens = e.tokensPer * len(texts)
	return out, nil
}

// memKV is a map-backed store. getErr and setErr fail every call.
type memKV struct {
	mu     sync.Mutex
	data   map[string][]byte
	ttls   map[string]time.Duration
	gets   int
	getErr error
	setErr error
}

func newMemKV() *memKV {
	return &memKV{data: map[string][]byte{}, ttls: map[string]time.Duration{}}
}

func (m *memKV) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gets++
	if m.getErr != nil {
		return nil, m.getErr
	}
	v, ok := m.data[key]
	if !ok {
		return nil, db.ErrKeyNotFound
	}
	return v, nil
}

func (m *memKV) SetWithTTL(_ context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.setErr != nil {
		return m.setErr
	}
	m.data[key] = value
	m.ttls[key] = ttl
	return nil
}

func (m *memKV) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.data)
}

func newCache(t *testing.T, inner domain.Embedder, opts ...Option) (*CachedEmbedder, *memKV) {
	t.Helper()
	kv := newMemKV()
	return New(inner, kv, nil, zap.NewNop(), opts...), kv
}

// warm stores vec under text's key.
func warm(c *CachedEmbedder, kv *memKV, text string, vec []float32) {
	kv.data[c.cacheKey(text)] = []byte(rueidis.VectorString32(vec))
}
