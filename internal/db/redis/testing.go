package redis

import "github.com/redis/rueidis"

// NewStoreForTest wraps an existing client, usually a rueidis/mock one.
// It skips the dial and CLIENT SETNAME that NewStore performs.
func NewStoreForTest(c rueidis.Client) *Store {
	return &Store{client: c}
}
