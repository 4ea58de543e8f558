package redis

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/kailas-cloud/contractrag/internal/db"
)

// CreateIndex creates an FT index from def. A taken name yields
// db.ErrIndexExists.
func (s *Store) CreateIndex(ctx context.Context, def *db.IndexDefinition) error {
	args, err := createArgs(def)
	if err != nil {
		return err
	}
	return s.ft(ctx, db.OpCreateIndex, def.Name, args...)
}

// DropIndex removes an FT index. deleteDocs adds DD so the indexed hashes
// go with it. An unknown index yields db.ErrIndexNotFound.
func (s *Store) DropIndex(ctx context.Context, name string, deleteDocs bool) error {
	args := []string{name}
	if deleteDocs {
		args = append(args, "DD")
	}
	return s.ft(ctx, db.OpDropIndex, name, args...)
}

// IndexExists probes the index with FT.INFO.
func (s *Store) IndexExists(ctx context.Context, name string) (bool, error) {
	err := s.ft(ctx, db.OpIndexInfo, name, name)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, db.ErrIndexNotFound):
		return false, nil
	}
	return false, err
}

// ftReplies maps FT.* server error messages to sentinels.
var ftReplies = []struct {
	substr string
	err    error
}{
	{"index already exists", db.ErrIndexExists},
	{"unknown index name", db.ErrIndexNotFound},
	{"no such index", db.ErrIndexNotFound},
}

// ft runs an FT.* index command; op doubles as the command name. Known
// server replies become sentinels, other failures a *db.Error on target.
func (s *Store) ft(ctx context.Context, op, target string, args ...string) error {
	err := s.do(ctx, s.b().Arbitrary(op).Args(args...).Build()).Error()
	if err == nil {
		return nil
	}
	for _, r := range ftReplies {
		if isRedisErr(err, r.substr) {
			return r.err
		}
	}
	return db.Wrap(op, target, err)
}

// createArgs renders def as FT.CREATE arguments.
func createArgs(def *db.IndexDefinition) ([]string, error) {
	if err := def.Validate(); err != nil {
		return nil, err
	}
	storage := def.StorageType
	if storage == "" {
		storage = db.StorageHash
	}

	args := []string{def.Name, "ON", string(storage)}
	if len(def.Prefixes) > 0 {
		args = append(args, "PREFIX", strconv.Itoa(len(def.Prefixes)))
		args = append(args, def.Prefixes...)
	}
	args = append(args, "SCHEMA")
	for i := range def.Fields {
		fa, err := fieldArgs(&def.Fields[i])
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", def.Fields[i].Name, err)
		}
		args = append(args, fa...)
	}
	return args, nil
}

func fieldArgs(f *db.IndexField) ([]string, error) {
	if f.Name == "" {
		return nil, errors.New("field name is required")
	}
	args := []string{f.Name}
	if f.Alias != "" {
		args = append(args, "AS", f.Alias)
	}

	switch f.Type {
	case db.IndexFieldNumeric:
		return append(args, "NUMERIC"), nil
	case db.IndexFieldText:
		args = append(args, "TEXT")
		if f.TextWeight > 0 {
			args = append(args, "WEIGHT", strconv.FormatFloat(f.TextWeight, 'g', -1, 64))
		}
		return args, nil
	case db.IndexFieldTag:
		args = append(args, "TAG")
		if f.TagSeparator != "" {
			args = append(args, "SEPARATOR", f.TagSeparator)
		}
		if f.TagCaseSensitive {
			args = append(args, "CASESENSITIVE")
		}
		return args, nil
	case db.IndexFieldVector:
		va, err := vectorArgs(f)
		if err != nil {
			return nil, err
		}
		return append(args, va...), nil
	}
	return nil, fmt.Errorf("unknown field type %q", f.Type)
}

// vectorArgs renders "VECTOR <algo> <nargs> <attrs...>". FLAT is the
// default algorithm and COSINE the default metric.
func vectorArgs(f *db.IndexField) ([]string, error) {
	if f.VectorDim <= 0 {
		return nil, errors.New("vector DIM must be positive")
	}
	algo := cmp.Or(f.VectorAlgo, db.VectorFlat)
	attrs := []string{
		"TYPE", "FLOAT32",
		"DIM", strconv.Itoa(f.VectorDim),
		"DISTANCE_METRIC", string(cmp.Or(f.VectorDistance, db.DistanceCosine)),
	}
	switch algo {
	case db.VectorHNSW:
		m := f.VectorM
		if m <= 0 {
			m = db.DefaultHNSWM
		}
		ef := f.VectorEFConstruct
		if ef <= 0 {
			ef = db.DefaultHNSWEFConstruct
		}
		attrs = append(attrs, "M", strconv.Itoa(m), "EF_CONSTRUCTION", strconv.Itoa(ef))
	case db.VectorFlat:
		if f.VectorBlockSize > 0 {
			attrs = append(attrs, "BLOCK_SIZE", strconv.Itoa(f.VectorBlockSize))
		}
	}
	return append([]string{"VECTOR", string(algo), strconv.Itoa(len(attrs))}, attrs...), nil
}
