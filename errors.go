package contractrag

import "github.com/kailas-cloud/contractrag/internal/domain"

// Sentinel errors re-exported from the domain layer.
// Use errors.Is() to check.
var (
	ErrValidation             = domain.ErrValidation
	ErrConnection             = domain.ErrConnection
	ErrProvider               = domain.ErrProvider
	ErrNotFound               = domain.ErrNotFound
	ErrEmbeddingProviderError = domain.ErrEmbeddingProviderError
	ErrRateLimited            = domain.ErrRateLimited
)

// ProviderError carries the failing backend operation. Use errors.As.
type ProviderError = domain.ProviderError

// IsProviderError reports whether err comes from a storage or model backend.
func IsProviderError(err error) bool { return domain.IsProviderError(err) }
