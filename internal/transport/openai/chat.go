package openai

import (
	"context"
	"errors"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/kailas-cloud/contractrag/internal/domain"
	"github.com/kailas-cloud/contractrag/internal/llm"
	"github.com/kailas-cloud/contractrag/internal/metrics"
)

var errEmptyCompletion = errors.New("empty completion response")

// ChatModel implements llm.Model over the chat completions endpoint.
type ChatModel struct {
	client   *openai.Client
	model    string
	user     string
	provider string
	logger   *zap.Logger
}

var _ llm.Model = (*ChatModel)(nil)

// NewChatModel creates a chat model client. Config.Dimensions is ignored.
func NewChatModel(cfg *Config) *ChatModel {
	provider := cfg.Provider
	if provider == "" {
		provider = "openai"
	}
	return &ChatModel{
		client:   newClient(cfg),
		model:    cfg.Model,
		user:     cfg.User,
		provider: provider,
		logger:   loggerOrNop(cfg.Logger),
	}
}

// Invoke sends an optional system message followed by the prompt and
// returns the first choice.
func (m *ChatModel) Invoke(ctx context.Context, prompt string, opts ...llm.Option) (string, error) {
	if err := llm.ValidatePrompt(prompt); err != nil {
		return "", err
	}
	req := m.buildRequest(prompt, llm.Apply(opts...))

	start := time.Now()
	resp, err := m.client.CreateChatCompletion(ctx, req)
	duration := time.Since(start)

	if err != nil {
		metrics.LLMFailed(m.provider, m.model)
		m.logger.Warn("chat completion failed", zap.String("model", m.model), zap.Error(err))
		return "", domain.NewProviderError("openai chat completion", apiError("chat", err))
	}
	if len(resp.Choices) == 0 {
		metrics.LLMFailed(m.provider, m.model)
		return "", domain.NewProviderError("openai chat completion", errEmptyCompletion)
	}

	metrics.ObserveLLM(m.provider, m.model, duration, resp.Usage.PromptTokens, resp.Usage.CompletionTokens)

	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

func (m *ChatModel) buildRequest(prompt string, opts llm.Request) openai.ChatCompletionRequest {
	messages := make([]openai.ChatCompletionMessage, 0, 2)
	if opts.SystemMessage != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: opts.SystemMessage,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: prompt,
	})

	req := openai.ChatCompletionRequest{
		Model:    m.model,
		Messages: messages,
		User:     m.user,
	}
	if opts.Temperature != nil {
		req.Temperature = *opts.Temperature
	}
	if opts.MaxTokens > 0 {
		req.MaxTokens = opts.MaxTokens
	}
	return req
}

// HealthCheck verifies API availability via ListModels.
func (m *ChatModel) HealthCheck(ctx context.Context) error {
	if _, err := m.client.ListModels(ctx); err != nil {
		return domain.NewProviderError("openai list models", err)
	}
	return nil
}
