package ollama

import (
	"context"
	"maps"
	"strings"
	"time"

	"github.com/ollama/ollama/api"
	"go.uber.org/zap"

	"github.com/kailas-cloud/contractrag/internal/domain"
	"github.com/kailas-cloud/contractrag/internal/llm"
	"github.com/kailas-cloud/contractrag/internal/metrics"
)

// ChatModel implements llm.Model over /api/chat without streaming.
type ChatModel struct {
	client  *api.Client
	model   string
	options map[string]any
	logger  *zap.Logger
}

var _ llm.Model = (*ChatModel)(nil)

// NewChatModel creates a chat client for cfg.Model.
func NewChatModel(cfg *Config) (*ChatModel, error) {
	c, err := newClient(cfg)
	if err != nil {
		return nil, err
	}
	return &ChatModel{
		client:  c,
		model:   cfg.Model,
		options: cfg.Options,
		logger:  loggerOrNop(cfg.Logger),
	}, nil
}

// Invoke sends an optional system message followed by the prompt.
func (m *ChatModel) Invoke(ctx context.Context, prompt string, opts ...llm.Option) (string, error) {
	if err := llm.ValidatePrompt(prompt); err != nil {
		return "", err
	}
	req := m.buildRequest(prompt, llm.Apply(opts...))

	var (
		out  strings.Builder
		last api.ChatResponse
	)
	start := time.Now()
	err := m.client.Chat(ctx, req, func(resp api.ChatResponse) error {
		out.WriteString(resp.Message.Content)
		last = resp
		return nil
	})
	duration := time.Since(start)

	if err != nil {
		metrics.LLMFailed(providerName, m.model)
		m.logger.Warn("ollama chat failed", zap.String("model", m.model), zap.Error(err))
		return "", domain.NewProviderError("ollama chat", err)
	}

	metrics.ObserveLLM(providerName, m.model, duration, last.PromptEvalCount, last.EvalCount)

	return strings.TrimSpace(out.String()), nil
}

func (m *ChatModel) buildRequest(prompt string, opts llm.Request) *api.ChatRequest {
	messages := make([]api.Message, 0, 2)
	if opts.SystemMessage != "" {
		messages = append(messages, api.Message{Role: "system", Content: opts.SystemMessage})
	}
	messages = append(messages, api.Message{Role: "user", Content: prompt})

	options := make(map[string]any, len(m.options)+2)
	maps.Copy(options, m.options)
	if opts.Temperature != nil {
		options["temperature"] = *opts.Temperature
	}
	if opts.MaxTokens > 0 {
		options["num_predict"] = opts.MaxTokens
	}

	stream := false
	req := &api.ChatRequest{
		Model:    m.model,
		Messages: messages,
		Stream:   &stream,
	}
	if len(options) > 0 {
		req.Options = options
	}
	return req
}

// HealthCheck pings the server.
func (m *ChatModel) HealthCheck(ctx context.Context) error {
	return heartbeat(ctx, m.client)
}
