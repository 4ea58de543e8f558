package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation signals caller misuse: empty prompt, unknown strategy, bad limit.
	ErrValidation = errors.New("validation error")
	// ErrConnection signals a data operation attempted without an open session.
	ErrConnection = errors.New("not connected")
	// ErrProvider signals that a backend rejected a request or is unreachable.
	ErrProvider = errors.New("provider error")
	// ErrNotFound signals a missing collection, config path or document.
	ErrNotFound = errors.New("not found")

	// ErrEmbeddingProviderError signals an embedding provider failure.
	ErrEmbeddingProviderError = errors.New("embedding provider error")
	// ErrRateLimited signals that a provider answered 429.
	ErrRateLimited = errors.New("rate limited")
)

// ProviderError wraps a backend failure with the operation that produced it.
// errors.Is matches both ErrProvider and the original cause.
type ProviderError struct {
	Op  string
	Err error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrProvider.Error(), e.Op, e.Err)
}

func (e *ProviderError) Unwrap() []error { return []error{ErrProvider, e.Err} }

// NewProviderError wraps err as a ProviderError. A nil err yields nil,
// an err that already is a ProviderError is returned as is.
func NewProviderError(op string, err error) error {
	if err == nil {
		return nil
	}
	var pe *ProviderError
	if errors.As(err, &pe) {
		return err
	}
	return &ProviderError{Op: op, Err: err}
}

// Validationf builds an error matching ErrValidation.
func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// NotFoundf builds an error matching ErrNotFound.
func NotFoundf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
}

// IsProviderError reports whether err carries a ProviderError.
func IsProviderError(err error) bool {
	return errors.Is(err, ErrProvider)
}
