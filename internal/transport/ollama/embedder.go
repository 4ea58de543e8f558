package ollama

import (
	"context"
	"fmt"
	"time"

	"github.com/ollama/ollama/api"
	"go.uber.org/zap"

	"github.com/kailas-cloud/contractrag/internal/domain"
	"github.com/kailas-cloud/contractrag/internal/metrics"
)

// Embedder implements domain.Embedder and domain.BatchEmbedder over /api/embed.
type Embedder struct {
	client *api.Client
	model  string
	logger *zap.Logger
}

// NewEmbedder creates an embedding client for cfg.Model.
func NewEmbedder(cfg *Config) (*Embedder, error) {
	c, err := newClient(cfg)
	if err != nil {
		return nil, err
	}
	return &Embedder{client: c, model: cfg.Model, logger: loggerOrNop(cfg.Logger)}, nil
}

// Embed vectorizes a single text.
func (e *Embedder) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	res, err := e.BatchEmbed(ctx, []string{text})
	if err != nil {
		return domain.EmbeddingResult{}, err
	}
	return domain.EmbeddingResult{
		Embedding:    res.Embeddings[0],
		PromptTokens: res.PromptTokens,
		TotalTokens:  res.TotalTokens,
	}, nil
}

// BatchEmbed vectorizes texts in one request.
func (e *Embedder) BatchEmbed(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	if len(texts) == 0 {
		return domain.BatchEmbeddingResult{}, nil
	}

	start := time.Now()
	resp, err := e.client.Embed(ctx, &api.EmbedRequest{Model: e.model, Input: texts})
	duration := time.Since(start)

	if err != nil {
		e.countError("api_error")
		e.logger.Warn("ollama embed failed", zap.String("model", e.model), zap.Error(err))
		return domain.BatchEmbeddingResult{}, fmt.Errorf("ollama embed: %w: %w", domain.ErrEmbeddingProviderError, err)
	}
	if len(resp.Embeddings) != len(texts) {
		e.countError("count_mismatch")
		return domain.BatchEmbeddingResult{}, fmt.Errorf(
			"got %d embeddings for %d texts: %w", len(resp.Embeddings), len(texts), domain.ErrEmbeddingProviderError)
	}

	metrics.ObserveEmbedding(providerName, e.model, duration, resp.PromptEvalCount, resp.PromptEvalCount)

	return domain.BatchEmbeddingResult{
		Embeddings:   resp.Embeddings,
		PromptTokens: resp.PromptEvalCount,
		TotalTokens:  resp.PromptEvalCount,
	}, nil
}

func (e *Embedder) countError(kind string) {
	metrics.EmbeddingFailed(providerName, e.model, kind)
}

// HealthCheck pings the server.
func (e *Embedder) HealthCheck(ctx context.Context) error {
	return heartbeat(ctx, e.client)
}
