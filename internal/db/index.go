package db

import (
	"errors"
	"fmt"
	"strings"
)

// StorageType defines the document storage backend for FT indexes.
// Records are always stored as hashes.
type StorageType string

// StorageHash stores documents as Redis hashes.
const StorageHash StorageType = "HASH"

// DistanceMetric used by FT.SEARCH vector similarity queries.
type DistanceMetric string

const (
	// DistanceL2 is Euclidean distance.
	DistanceL2 DistanceMetric = "L2"
	// DistanceIP is inner product distance.
	DistanceIP DistanceMetric = "IP"
	// DistanceCosine is cosine distance.
	DistanceCosine DistanceMetric = "COSINE"
)

// VectorAlgorithm selects the indexing algorithm for vector fields in FT.CREATE.
type VectorAlgorithm string

const (
	// VectorHNSW uses the HNSW algorithm.
	VectorHNSW VectorAlgorithm = "HNSW"
	// VectorFlat uses the FLAT (brute-force) algorithm.
	VectorFlat VectorAlgorithm = "FLAT"
)

// HNSW defaults applied when a field leaves them unset.
const (
	DefaultHNSWM           = 16
	DefaultHNSWEFConstruct = 200
)

// IndexFieldType is the FT.CREATE keyword of a field.
type IndexFieldType string

// Supported field types.
const (
	IndexFieldNumeric IndexFieldType = "NUMERIC"
	IndexFieldTag     IndexFieldType = "TAG"
	IndexFieldText    IndexFieldType = "TEXT"
	IndexFieldVector  IndexFieldType = "VECTOR"
)

// IndexField describes one attribute of an FT schema. Only the options
// block matching Type is read.
type IndexField struct {
	Name  string
	Alias string // SCHEMA ... AS alias
	Type  IndexFieldType

	TagSeparator     string
	TagCaseSensitive bool

	TextWeight float64

	VectorAlgo        VectorAlgorithm // FLAT when empty
	VectorDim         int
	VectorDistance    DistanceMetric // COSINE when empty
	VectorM           int            // HNSW edges per node
	VectorEFConstruct int            // HNSW build-time candidate list
	VectorBlockSize   int            // FLAT BLOCK_SIZE
}

// attr is the name queries use for the field.
func (f *IndexField) attr() string {
	if f.Alias != "" {
		return f.Alias
	}
	return f.Name
}

func (f *IndexField) validate() error {
	if f.Name == "" {
		return errors.New("field name is required")
	}
	switch f.Type {
	case IndexFieldNumeric, IndexFieldTag:
	case IndexFieldText:
		if f.TextWeight < 0 {
			return fmt.Errorf("field %s: text weight must not be negative", f.Name)
		}
	case IndexFieldVector:
		if f.VectorDim <= 0 {
			return fmt.Errorf("field %s: vector field requires positive DIM", f.Name)
		}
	default:
		return fmt.Errorf("field %s: unknown field type %q", f.Name, f.Type)
	}
	return nil
}

// IndexDefinition is what FT.CREATE needs to build an index over hashes.
type IndexDefinition struct {
	Name        string
	StorageType StorageType
	Prefixes    []string
	Fields      []IndexField
}

// Validate checks the name, that fields exist, that attribute names are
// unique and that every field is well-formed.
func (idx *IndexDefinition) Validate() error {
	switch {
	case idx.Name == "":
		return errors.New("index name is required")
	case !IsValidIdentifier(idx.Name):
		return fmt.Errorf("index name %q contains invalid characters", idx.Name)
	case len(idx.Fields) == 0:
		return errors.New("at least one field is required")
	}

	seen := make(map[string]struct{}, len(idx.Fields))
	for i := range idx.Fields {
		f := &idx.Fields[i]
		if err := f.validate(); err != nil {
			return fmt.Errorf("field #%d: %w", i, err)
		}
		if _, dup := seen[f.attr()]; dup {
			return fmt.Errorf("duplicate field name: %s", f.attr())
		}
		seen[f.attr()] = struct{}{}
	}
	return nil
}

// IsValidIdentifier reports whether s is non-empty and made of ASCII
// letters, digits, '_', ':' and '-'.
func IsValidIdentifier(s string) bool {
	return s != "" && !strings.ContainsFunc(s, func(r rune) bool {
		switch {
		case 'a' <= r && r <= 'z', 'A' <= r && r <= 'Z', '0' <= r && r <= '9':
			return false
		}
		return !strings.ContainsRune("_:-", r)
	})
}
