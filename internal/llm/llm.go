// Package llm is the language model port: a prompt goes in, text comes out.
package llm

import (
	"context"
	"strings"

	"github.com/kailas-cloud/contractrag/internal/domain"
)

// Model invokes a language model with a single user prompt.
type Model interface {
	Invoke(ctx context.Context, prompt string, opts ...Option) (string, error)
}

// Request holds the per-call settings assembled from options.
type Request struct {
	SystemMessage string
	Temperature   *float32
	MaxTokens     int
}

// Option tunes a single call. Adapters ignore settings they cannot express.
type Option func(*Request)

// WithSystemMessage sets the system message sent before the prompt.
func WithSystemMessage(msg string) Option {
	return func(r *Request) { r.SystemMessage = msg }
}

// WithTemperature sets the sampling temperature.
func WithTemperature(t float32) Option {
	return func(r *Request) { r.Temperature = &t }
}

// WithMaxTokens caps the generated tokens.
func WithMaxTokens(n int) Option {
	return func(r *Request) { r.MaxTokens = n }
}

// Apply builds a Request from opts.
func Apply(opts ...Option) Request {
	var r Request
	for _, o := range opts {
		o(&r)
	}
	return r
}

// ValidatePrompt rejects empty and whitespace-only prompts. Adapters call it
// before any network traffic.
func ValidatePrompt(prompt string) error {
	if strings.TrimSpace(prompt) == "" {
		return domain.Validationf("prompt must be a non-empty string")
	}
	return nil
}

// WithDefaults wraps m so every call starts from opts. Per-call options
// are applied after them and win.
func WithDefaults(m Model, opts ...Option) Model {
	if len(opts) == 0 {
		return m
	}
	return defaulted{inner: m, opts: opts}
}

type defaulted struct {
	inner Model
	opts  []Option
}

func (d defaulted) Invoke(ctx context.Context, prompt string, opts ...Option) (string, error) {
	all := make([]Option, 0, len(d.opts)+len(opts))
	all = append(all, d.opts...)
	all = append(all, opts...)
	return d.inner.Invoke(ctx, prompt, all...)
}
