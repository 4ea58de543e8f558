package redis

import (
	"context"
	"fmt"
	"maps"
	"slices"

	"github.com/redis/rueidis"

	"github.com/kailas-cloud/contractrag/internal/db"
)

const (
	// pipelineChunk caps the commands sent in one DoMulti.
	pipelineChunk = 256
	// scanCount is the COUNT hint of each SCAN call.
	scanCount = 500
)

// HSetMulti writes the hashes in pipelined chunks. Fields are written in
// name order. The first failing key aborts the remaining chunks.
func (s *Store) HSetMulti(ctx context.Context, items []db.HashSetItem) error {
	for chunk := range slices.Chunk(items, pipelineChunk) {
		cmds := make([]rueidis.Completed, len(chunk))
		for i, item := range chunk {
			cmd := s.b().Hset().Key(item.Key).FieldValue()
			for _, k := range slices.Sorted(maps.Keys(item.Fields)) {
				cmd = cmd.FieldValue(k, item.Fields[k])
			}
			cmds[i] = cmd.Build()
		}

		for i, res := range s.client.DoMulti(ctx, cmds...) {
			if err := res.Error(); err != nil {
				return db.Wrap(db.OpHSet, chunk[i].Key, err)
			}
		}
	}
	return nil
}

// HGetAll returns all fields of a hash. A missing key yields ErrKeyNotFound.
func (s *Store) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	m, err := s.do(ctx, s.b().Hgetall().Key(key).Build()).AsStrMap()
	if err != nil {
		return nil, db.Wrap(db.OpHGetAll, key, err)
	}
	if len(m) == 0 {
		return nil, fmt.Errorf("%s: %w", key, db.ErrKeyNotFound)
	}
	return m, nil
}

// Del deletes keys. Missing keys are not an error.
func (s *Store) Del(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	err := s.do(ctx, s.b().Del().Key(keys...).Build()).Error()
	return db.Wrap(db.OpDel, fmt.Sprintf("%d keys", len(keys)), err)
}

// Scan returns every key matching pattern.
func (s *Store) Scan(ctx context.Context, pattern string) ([]string, error) {
	var keys []string
	var cursor uint64
	for {
		cmd := s.b().Scan().Cursor(cursor).Match(pattern).Count(scanCount).Build()
		res, err := s.do(ctx, cmd).AsScanEntry()
		if err != nil {
			return nil, db.Wrap(db.OpScan, pattern, err)
		}
		keys = append(keys, res.Elements...)
		if cursor = res.Cursor; cursor == 0 {
			return keys, nil
		}
	}
}
