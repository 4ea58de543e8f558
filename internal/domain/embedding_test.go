package domain

import (
	"context"
	"errors"
	"slices"
	"testing"
)

// recorder embeds every text as {1} and records what it was sent.
type recorder struct {
	err  error
	sent []string
}

func (r *recorder) Embed(_ context.Context, text string) (EmbeddingResult, error) {
	r.sent = append(r.sent, text)
	if r.err != nil {
		return EmbeddingResult{}, r.err
	}
	return EmbeddingResult{Embedding: []float32{1}, PromptTokens: 2, TotalTokens: 3}, nil
}

// batchRecorder also has a batch endpoint returning drop fewer vectors
// than asked.
type batchRecorder struct {
	recorder
	drop    int
	batches [][]string
}

func (b *batchRecorder) BatchEmbed(_ context.Context, texts []string) (BatchEmbeddingResult, error) {
	b.batches = append(b.batches, texts)
	if b.err != nil {
		return BatchEmbeddingResult{}, b.err
	}
	out := BatchEmbeddingResult{TotalTokens: 10}
	for range len(texts) - b.drop {
		out.Embeddings = append(out.Embeddings, []float32{2})
	}
	return out, nil
}

func TestEmbedAll(t *testing.T) {
	texts := []string{"fees", "term"}

	t.Run("batch endpoint", func(t *testing.T) {
		b := &batchRecorder{}
		res, err := EmbedAll(context.Background(), b, texts)
		if err != nil {
			t.Fatalf("EmbedAll: %v", err)
		}
		if len(b.batches) != 1 || len(b.sent) != 0 {
			t.Errorf("batches = %v, single calls = %v", b.batches, b.sent)
		}
		if len(res.Embeddings) != 2 || res.TotalTokens != 10 {
			t.Errorf("res = %+v", res)
		}
	})

	t.Run("one call per text", func(t *testing.T) {
		r := &recorder{}
		res, err := EmbedAll(context.Background(), r, texts)
		if err != nil {
			t.Fatalf("EmbedAll: %v", err)
		}
		if !slices.Equal(r.sent, texts) {
			t.Errorf("sent = %v", r.sent)
		}
		if len(res.Embeddings) != 2 || res.PromptTokens != 4 || res.TotalTokens != 6 {
			t.Errorf("res = %+v", res)
		}
	})

	t.Run("empty input", func(t *testing.T) {
		res, err := EmbedAll(context.Background(), &recorder{}, nil)
		if err != nil || len(res.Embeddings) != 0 {
			t.Errorf("res = %+v, err = %v", res, err)
		}
	})
}

func TestEmbedAll_Errors(t *testing.T) {
	down := errors.New("provider down")
	tests := []struct {
		name string
		e    Embedder
		want error
	}{
		{"short batch", &batchRecorder{drop: 1}, ErrEmbeddingProviderError},
		{"batch failure", &batchRecorder{recorder: recorder{err: down}}, down},
		{"single failure", &recorder{err: down}, down},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := EmbedAll(context.Background(), tt.e, []string{"a", "b"}); !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestWithInstruction(t *testing.T) {
	r := &recorder{}
	if got := WithInstruction(r, ""); got != Embedder(r) {
		t.Errorf("empty instruction wrapped the embedder: %T", got)
	}

	if _, err := WithInstruction(r, "search_query: ").Embed(context.Background(), "governing law"); err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if want := []string{"search_query: governing law"}; !slices.Equal(r.sent, want) {
		t.Errorf("sent = %v, want %v", r.sent, want)
	}

	b := &batchRecorder{}
	if _, err := EmbedAll(context.Background(), WithInstruction(b, "search_document: "), []string{"a", "b"}); err != nil {
		t.Fatalf("EmbedAll: %v", err)
	}
	if want := []string{"search_document: a", "search_document: b"}; len(b.batches) != 1 || !slices.Equal(b.batches[0], want) {
		t.Errorf("batches = %v, want one batch %v", b.batches, want)
	}
}
