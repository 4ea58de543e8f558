package redis

import (
	"context"
	"fmt"
	"strconv"

	"github.com/redis/rueidis"

	"github.com/kailas-cloud/contractrag/internal/db"
)

// SearchKNN runs a KNN vector similarity search via FT.SEARCH, nearest
// first. Scores are 1-distance unless q.RawScores is set.
func (s *Store) SearchKNN(ctx context.Context, q *db.KNNQuery) (*db.SearchResult, error) {
	switch {
	case q.IndexName == "":
		return nil, invalid("index name is required")
	case len(q.Vector) == 0:
		return nil, invalid("vector is required")
	case q.K <= 0:
		return nil, invalid("k must be positive")
	}

	field := q.VectorField
	if field == "" {
		field = db.DefaultVectorField
	}

	args := []string{q.IndexName, knnQuery(filterQuery(q.Filters), field, q.K)}
	args = appendReturn(args, q.ReturnFields)
	args = append(args,
		"SORTBY", db.VectorScoreField, "ASC",
		"LIMIT", "0", strconv.Itoa(q.K),
		"PARAMS", "2", "BLOB", rueidis.VectorString32(q.Vector),
		"DIALECT", "2",
	)

	raw, err := s.ftSearch(ctx, args)
	if err != nil {
		return nil, db.Wrap(db.OpSearch, q.IndexName, err)
	}
	res, err := parseReply(raw, false)
	if err != nil {
		return nil, err
	}
	for i := range res.Entries {
		e := &res.Entries[i]
		dist, ok := e.Fields[db.VectorScoreField]
		if !ok {
			continue
		}
		delete(e.Fields, db.VectorScoreField)
		d, err := strconv.ParseFloat(dist, 64)
		if err != nil {
			continue
		}
		if q.RawScores {
			e.Score = d
		} else {
			e.Score = max(0, 1-d)
		}
	}
	return res, nil
}

// SearchBM25 runs a BM25 text search via FT.SEARCH. Terms are OR-ed so a
// hit needs only one of them; the score ranks hits sharing more terms higher.
func (s *Store) SearchBM25(ctx context.Context, q *db.TextQuery) (*db.SearchResult, error) {
	switch {
	case q.IndexName == "":
		return nil, invalid("index name is required")
	case len(q.Terms) == 0:
		return nil, invalid("query terms are required")
	case q.TopK <= 0:
		return nil, invalid("topK must be positive")
	}

	query := textQuery(q.Terms, q.Fields)
	if pre := filterQuery(q.Filters); pre != "" {
		query = pre + " " + query
	}

	args := appendReturn([]string{q.IndexName, query}, q.ReturnFields)
	args = append(args, "WITHSCORES", "LIMIT", "0", strconv.Itoa(q.TopK), "DIALECT", "2")

	raw, err := s.ftSearch(ctx, args)
	if err != nil {
		return nil, db.Wrap(db.OpSearch, q.IndexName, err)
	}
	return parseReply(raw, true)
}

func (s *Store) ftSearch(ctx context.Context, args []string) ([]rueidis.RedisMessage, error) {
	return s.do(ctx, s.b().Arbitrary("FT.SEARCH").Args(args...).Build()).ToArray()
}

func appendReturn(args, fields []string) []string {
	if len(fields) == 0 {
		return args
	}
	args = append(args, "RETURN", strconv.Itoa(len(fields)))
	return append(args, fields...)
}

func invalid(msg string) error {
	return fmt.Errorf("%w: %s", db.ErrInvalidQuery, msg)
}

// parseReply decodes an FT.SEARCH reply: the total, then per hit the key,
// the score when withScores is set, and the field/value list. Malformed
// hits are skipped.
func parseReply(raw []rueidis.RedisMessage, withScores bool) (*db.SearchResult, error) {
	if len(raw) == 0 {
		return &db.SearchResult{}, nil
	}
	total, err := raw[0].AsInt64()
	if err != nil {
		return nil, fmt.Errorf("parse total: %w", err)
	}

	stride := 2
	if withScores {
		stride = 3
	}
	res := &db.SearchResult{Total: int(total)}
	for i := 1; i+stride-1 < len(raw); i += stride {
		key, err := raw[i].ToString()
		if err != nil {
			continue
		}
		entry := db.SearchEntry{Key: key}
		if withScores {
			score, err := raw[i+1].ToString()
			if err != nil {
				continue
			}
			if entry.Score, err = strconv.ParseFloat(score, 64); err != nil {
				continue
			}
		}
		fields, err := raw[i+stride-1].ToArray()
		if err != nil {
			continue
		}
		entry.Fields = fieldMap(fields)
		res.Entries = append(res.Entries, entry)
	}
	return res, nil
}

func fieldMap(pairs []rueidis.RedisMessage) map[string]string {
	m := make(map[string]string, len(pairs)/2)
	for j := 0; j+1 < len(pairs); j += 2 {
		name, err := pairs[j].ToString()
		if err != nil {
			continue
		}
		value, err := pairs[j+1].ToString()
		if err != nil {
			continue
		}
		m[name] = value
	}
	return m
}
