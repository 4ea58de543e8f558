package llm

import (
	"context"
	"strings"
)

// DefaultEchoPrefix is the prefix Echo uses when none is set.
const DefaultEchoPrefix = "ECHO:"

// Echo is a deterministic offline Model that returns the trimmed prompt
// behind a prefix. Options are accepted and ignored.
type Echo struct {
	Prefix string
}

// Invoke returns "<prefix> <trimmed prompt>".
func (e Echo) Invoke(ctx context.Context, prompt string, _ ...Option) (string, error) {
	if err := ValidatePrompt(prompt); err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	prefix := e.Prefix
	if prefix == "" {
		prefix = DefaultEchoPrefix
	}
	return prefix + " " + strings.TrimSpace(prompt), nil
}
