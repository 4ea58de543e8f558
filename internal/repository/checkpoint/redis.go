package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kailas-cloud/contractrag/internal/db"
	"github.com/kailas-cloud/contractrag/internal/domain"
)

// DefaultKeyPrefix namespaces checkpoint hashes.
const DefaultKeyPrefix = "contractrag:checkpoint:"

// hashStore is the consumer interface for the Redis hash operations used here.
type hashStore interface {
	HSetMulti(ctx context.Context, items []db.HashSetItem) error
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	Del(ctx context.Context, keys ...string) error
}

// Redis keeps the checkpoint in one hash per collection:
// field = document name, value = completion time.
type Redis struct {
	store hashStore
	key   string
	now   func() time.Time
}

// NewRedis creates a checkpoint for collection stored under keyPrefix.
// An empty keyPrefix means DefaultKeyPrefix.
func NewRedis(store hashStore, keyPrefix, collection string) *Redis {
	if keyPrefix == "" {
		keyPrefix = DefaultKeyPrefix
	}
	return &Redis{store: store, key: keyPrefix + collection, now: time.Now}
}

// Key returns the hash key.
func (r *Redis) Key() string { return r.key }

// Indexed returns the documents marked so far. A missing hash is an empty checkpoint.
func (r *Redis) Indexed(ctx context.Context) (map[string]struct{}, error) {
	fields, err := r.store.HGetAll(ctx, r.key)
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return map[string]struct{}{}, nil
		}
		return nil, domain.NewProviderError("load checkpoint", err)
	}
	done := make(map[string]struct{}, len(fields))
	for doc := range fields {
		done[doc] = struct{}{}
	}
	return done, nil
}

// MarkIndexed records document as finished.
func (r *Redis) MarkIndexed(ctx context.Context, document string) error {
	item := db.HashSetItem{
		Key:    r.key,
		Fields: map[string]string{document: r.now().UTC().Format(time.RFC3339)},
	}
	if err := r.store.HSetMulti(ctx, []db.HashSetItem{item}); err != nil {
		return domain.NewProviderError("mark checkpoint", fmt.Errorf("%s: %w", document, err))
	}
	return nil
}

// Reset deletes the checkpoint hash.
func (r *Redis) Reset(ctx context.Context) error {
	if err := r.store.Del(ctx, r.key); err != nil {
		return domain.NewProviderError("reset checkpoint", err)
	}
	return nil
}
