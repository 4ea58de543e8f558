package query

import (
	"context"

	"github.com/kailas-cloud/contractrag/internal/storage"
)

// Store is the read side of storage.Port.
type Store interface {
	storage.Searcher
	Connect(ctx context.Context) error
	Close() error
}
