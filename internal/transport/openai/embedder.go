package openai

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/kailas-cloud/contractrag/internal/domain"
	"github.com/kailas-cloud/contractrag/internal/metrics"
)

// Embedder implements domain.Embedder and domain.BatchEmbedder over the
// /embeddings endpoint.
type Embedder struct {
	client     *openai.Client
	model      openai.EmbeddingModel
	dimensions int
	user       string
	provider   string
	logger     *zap.Logger
}

// NewEmbedder creates an embedding provider from cfg.
func NewEmbedder(cfg *Config) *Embedder {
	return &Embedder{
		client:     newClient(cfg),
		model:      openai.EmbeddingModel(cfg.Model),
		dimensions: cfg.Dimensions,
		user:       cfg.User,
		provider:   cfg.Provider,
		logger:     loggerOrNop(cfg.Logger),
	}
}

// Embed embeds a single text.
func (e *Embedder) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	vecs, usage, err := e.create(ctx, []string{text})
	if err != nil {
		return domain.EmbeddingResult{}, err
	}
	return domain.EmbeddingResult{
		Embedding:    vecs[0],
		PromptTokens: usage.PromptTokens,
		TotalTokens:  usage.TotalTokens,
	}, nil
}

// BatchEmbed embeds texts in one request. Vectors come back in input order.
func (e *Embedder) BatchEmbed(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	if len(texts) == 0 {
		return domain.BatchEmbeddingResult{}, nil
	}
	vecs, usage, err := e.create(ctx, texts)
	if err != nil {
		return domain.BatchEmbeddingResult{}, err
	}
	return domain.BatchEmbeddingResult{
		Embeddings:   vecs,
		PromptTokens: usage.PromptTokens,
		TotalTokens:  usage.TotalTokens,
	}, nil
}

// create sends input and returns one vector per input, sorted by the
// response index since providers may answer out of order.
func (e *Embedder) create(ctx context.Context, input []string) ([][]float32, openai.Usage, error) {
	req := openai.EmbeddingRequest{
		Input:          input,
		Model:          e.model,
		EncodingFormat: openai.EmbeddingEncodingFormatFloat,
		User:           e.user,
		Dimensions:     e.dimensions,
	}

	start := time.Now()
	resp, err := e.client.CreateEmbeddings(ctx, req)
	took := time.Since(start)

	switch {
	case err != nil:
		e.failed("api_error")
		e.logger.Warn("embedding request failed",
			zap.String("provider", e.provider), zap.Int("inputs", len(input)), zap.Error(err))
		return nil, openai.Usage{}, apiError("embedding", err, domain.ErrEmbeddingProviderError)
	case len(resp.Data) == 0:
		e.failed("empty_response")
		return nil, openai.Usage{}, fmt.Errorf("empty embedding response: %w", domain.ErrEmbeddingProviderError)
	case len(resp.Data) != len(input):
		e.failed("count_mismatch")
		return nil, openai.Usage{}, fmt.Errorf("got %d embeddings for %d texts: %w",
			len(resp.Data), len(input), domain.ErrEmbeddingProviderError)
	}
	metrics.ObserveEmbedding(e.provider, string(e.model), took, resp.Usage.PromptTokens, resp.Usage.TotalTokens)

	slices.SortFunc(resp.Data, func(a, b openai.Embedding) int { return cmp.Compare(a.Index, b.Index) })
	vecs := make([][]float32, len(resp.Data))
	for i, d := range resp.Data {
		vecs[i] = d.Embedding
	}
	return vecs, resp.Usage, nil
}

func (e *Embedder) failed(kind string) {
	metrics.EmbeddingFailed(e.provider, string(e.model), kind)
}

// HealthCheck lists models, which costs no tokens.
func (e *Embedder) HealthCheck(ctx context.Context) error {
	if _, err := e.client.ListModels(ctx); err != nil {
		return domain.NewProviderError("openai list models", err)
	}
	return nil
}
