// Package ollama adapts the native Ollama API to the language model and
// embedding ports.
package ollama

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/ollama/ollama/api"
	"go.uber.org/zap"

	"github.com/kailas-cloud/contractrag/internal/domain"
)

// DefaultBaseURL is the address of a local Ollama server.
const DefaultBaseURL = "http://localhost:11434"

const providerName = "ollama"

// Config holds connection settings shared by ChatModel and Embedder.
type Config struct {
	BaseURL string
	Model   string
	Timeout time.Duration
	// Options are passed verbatim as model options (temperature, top_k, ...).
	Options map[string]any
	Logger  *zap.Logger
}

func newClient(cfg *Config) (*api.Client, error) {
	raw := cfg.BaseURL
	if raw == "" {
		raw = DefaultBaseURL
	}
	base, err := url.Parse(raw)
	if err != nil {
		return nil, domain.Validationf("ollama base url %q: %v", raw, err)
	}
	httpClient := &http.Client{Timeout: cfg.Timeout}
	return api.NewClient(base, httpClient), nil
}

func loggerOrNop(l *zap.Logger) *zap.Logger {
	if l == nil {
		return zap.NewNop()
	}
	return l
}

// heartbeat checks that the server answers.
func heartbeat(ctx context.Context, c *api.Client) error {
	if err := c.Heartbeat(ctx); err != nil {
		return domain.NewProviderError("ollama heartbeat", err)
	}
	return nil
}
