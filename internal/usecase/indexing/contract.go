package indexing

import (
	"context"

	"github.com/kailas-cloud/contractrag/internal/domain/layout"
	"github.com/kailas-cloud/contractrag/internal/domain/schema"
	"github.com/kailas-cloud/contractrag/internal/storage"
)

// Store is the part of storage.Port the pipeline writes through.
type Store interface {
	Connect(ctx context.Context) error
	Close() error
	CreateSchema(ctx context.Context, s schema.Schema) error
	DropAllCollections(ctx context.Context) error
	InsertObjects(ctx context.Context, collection string, objects []storage.Object, batchSize int) error
}

// Parser turns a document name into its layout elements.
type Parser interface {
	Parse(ctx context.Context, document string) ([]layout.Element, error)
}

// Checkpoint remembers finished documents between runs.
type Checkpoint interface {
	Indexed(ctx context.Context) (map[string]struct{}, error)
	MarkIndexed(ctx context.Context, document string) error
	Reset(ctx context.Context) error
}
