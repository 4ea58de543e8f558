package domain

import (
	"context"
	"fmt"
)

// Embedder turns text into a vector for the vector and hybrid strategies.
type Embedder interface {
	Embed(ctx context.Context, text string) (EmbeddingResult, error)
}

// BatchEmbedder is implemented by providers with a multi-input endpoint.
// The reply holds one vector per text, in input order.
type BatchEmbedder interface {
	BatchEmbed(ctx context.Context, texts []string) (BatchEmbeddingResult, error)
}

// HealthChecker is implemented by providers that can be probed.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// EmbeddingResult is one vector with the tokens billed for it. Cached
// vectors report zero tokens.
type EmbeddingResult struct {
	Embedding    []float32
	PromptTokens int
	TotalTokens  int
}

// BatchEmbeddingResult is the vectors of a batch with the summed usage.
type BatchEmbeddingResult struct {
	Embeddings   [][]float32
	PromptTokens int
	TotalTokens  int
}

func (r *BatchEmbeddingResult) add(one EmbeddingResult) {
	r.Embeddings = append(r.Embeddings, one.Embedding)
	r.PromptTokens += one.PromptTokens
	r.TotalTokens += one.TotalTokens
}

// EmbedAll embeds texts with one batch call when e is a BatchEmbedder and
// one Embed call per text otherwise. A batch reply with the wrong number
// of vectors is an ErrEmbeddingProviderError.
func EmbedAll(ctx context.Context, e Embedder, texts []string) (BatchEmbeddingResult, error) {
	be, ok := e.(BatchEmbedder)
	if !ok {
		return embedEach(ctx, e, texts)
	}
	res, err := be.BatchEmbed(ctx, texts)
	if err != nil {
		return BatchEmbeddingResult{}, err
	}
	if got := len(res.Embeddings); got != len(texts) {
		return BatchEmbeddingResult{}, fmt.Errorf("%w: %d vectors for %d texts",
			ErrEmbeddingProviderError, got, len(texts))
	}
	return res, nil
}

func embedEach(ctx context.Context, e Embedder, texts []string) (BatchEmbeddingResult, error) {
	out := BatchEmbeddingResult{Embeddings: make([][]float32, 0, len(texts))}
	for i, text := range texts {
		one, err := e.Embed(ctx, text)
		if err != nil {
			return BatchEmbeddingResult{}, fmt.Errorf("embed text %d of %d: %w", i+1, len(texts), err)
		}
		out.add(one)
	}
	return out, nil
}

// WithInstruction returns an Embedder that prefixes every text with
// instruction, the task marker asymmetric models expect
// ("search_document: ", "search_query: "). An empty instruction returns
// inner itself.
func WithInstruction(inner Embedder, instruction string) Embedder {
	if instruction == "" {
		return inner
	}
	return instructed{inner: inner, instruction: instruction}
}

type instructed struct {
	inner       Embedder
	instruction string
}

func (e instructed) Embed(ctx context.Context, text string) (EmbeddingResult, error) {
	return e.inner.Embed(ctx, e.instruction+text)
}

func (e instructed) BatchEmbed(ctx context.Context, texts []string) (BatchEmbeddingResult, error) {
	prefixed := make([]string, len(texts))
	for i, t := range texts {
		prefixed[i] = e.instruction + t
	}
	return EmbedAll(ctx, e.inner, prefixed)
}
