// Package openai talks to OpenAI-compatible HTTP APIs (OpenAI, Nebius,
// Ollama /v1) for embeddings and chat completions.
package openai

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/kailas-cloud/contractrag/internal/domain"
)

// Config holds the provider settings shared by Embedder and ChatModel.
type Config struct {
	APIKey     string
	BaseURL    string // empty for api.openai.com
	Model      string
	Dimensions int // embeddings only; zero keeps the model's native size
	User       string
	Provider   string // metrics label
	Logger     *zap.Logger
}

func newClient(cfg *Config) *openai.Client {
	c := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		c.BaseURL = cfg.BaseURL
	}
	return openai.NewClientWithConfig(c)
}

func loggerOrNop(l *zap.Logger) *zap.Logger {
	if l == nil {
		return zap.NewNop()
	}
	return l
}

// apiFailure is a failed API call with a readable message. It unwraps to
// the domain classes and the client error.
type apiFailure struct {
	msg    string
	causes []error
}

func (e *apiFailure) Error() string   { return e.msg }
func (e *apiFailure) Unwrap() []error { return e.causes }

// apiError describes err from a kind ("embedding", "chat") request. HTTP
// failures carry the status and the server's message; 429 adds
// domain.ErrRateLimited to classes.
func apiError(kind string, err error, classes ...error) error {
	var (
		apiErr *openai.APIError
		reqErr *openai.RequestError
		status int
		detail string
	)
	switch {
	case errors.As(err, &apiErr):
		status, detail = apiErr.HTTPStatusCode, apiErr.Message
	case errors.As(err, &reqErr):
		status, detail = reqErr.HTTPStatusCode, bodyDetail(reqErr.Body)
	default:
		return &apiFailure{
			msg:    fmt.Sprintf("%s request failed: %v", kind, err),
			causes: append(classes, err),
		}
	}
	if status == http.StatusTooManyRequests {
		classes = append(classes, domain.ErrRateLimited)
	}
	return &apiFailure{
		msg:    fmt.Sprintf("%s API error %d: %s", kind, status, detail),
		causes: append(classes, err),
	}
}

// bodyDetail reads the "detail" field Nebius puts in error bodies and
// falls back to the raw body.
func bodyDetail(body []byte) string {
	var parsed struct {
		Detail string `json:"detail"`
	}
	if json.Unmarshal(body, &parsed) == nil && parsed.Detail != "" {
		return parsed.Detail
	}
	return string(body)
}
