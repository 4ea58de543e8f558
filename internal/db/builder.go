package db

import (
	"strconv"
	"strings"
)

// IndexBuilder assembles an FT index definition over hashes. Field
// modifiers (As, CaseSensitive, Weight) apply to the last added field.
type IndexBuilder struct {
	def IndexDefinition
}

// NewIndex starts an index definition named name.
func NewIndex(name string) *IndexBuilder {
	return &IndexBuilder{def: IndexDefinition{Name: name, StorageType: StorageHash}}
}

// Prefix adds key prefixes to the index.
func (b *IndexBuilder) Prefix(prefixes ...string) *IndexBuilder {
	b.def.Prefixes = append(b.def.Prefixes, prefixes...)
	return b
}

func (b *IndexBuilder) add(f IndexField) *IndexBuilder {
	b.def.Fields = append(b.def.Fields, f)
	return b
}

func (b *IndexBuilder) last() *IndexField {
	if n := len(b.def.Fields); n > 0 {
		return &b.def.Fields[n-1]
	}
	return nil
}

// Numeric adds a NUMERIC field.
func (b *IndexBuilder) Numeric(name string) *IndexBuilder {
	return b.add(IndexField{Name: name, Type: IndexFieldNumeric})
}

// Tag adds a TAG field.
func (b *IndexBuilder) Tag(name string) *IndexBuilder {
	return b.add(IndexField{Name: name, Type: IndexFieldTag})
}

// Text adds a full-text TEXT field.
func (b *IndexBuilder) Text(name string) *IndexBuilder {
	return b.add(IndexField{Name: name, Type: IndexFieldText})
}

// VectorHNSW adds a FLOAT32 HNSW vector field. Zero m or efConstruct keep
// the server defaults.
func (b *IndexBuilder) VectorHNSW(name string, dim int, distance DistanceMetric, m, efConstruct int) *IndexBuilder {
	return b.add(IndexField{
		Name:              name,
		Type:              IndexFieldVector,
		VectorAlgo:        VectorHNSW,
		VectorDim:         dim,
		VectorDistance:    distance,
		VectorM:           m,
		VectorEFConstruct: efConstruct,
	})
}

// As aliases the last field.
func (b *IndexBuilder) As(alias string) *IndexBuilder {
	if f := b.last(); f != nil {
		f.Alias = alias
	}
	return b
}

// CaseSensitive makes the last TAG field match values exactly.
func (b *IndexBuilder) CaseSensitive() *IndexBuilder {
	if f := b.last(); f != nil && f.Type == IndexFieldTag {
		f.TagCaseSensitive = true
	}
	return b
}

// Weight sets the BM25 weight of the last TEXT field.
func (b *IndexBuilder) Weight(w float64) *IndexBuilder {
	if f := b.last(); f != nil && f.Type == IndexFieldText {
		f.TextWeight = w
	}
	return b
}

// Build validates and returns the definition.
func (b *IndexBuilder) Build() (*IndexDefinition, error) {
	if err := b.def.Validate(); err != nil {
		return nil, err
	}
	def := b.def
	def.Fields = append([]IndexField(nil), b.def.Fields...)
	return &def, nil
}

// String renders the definition the way FT.CREATE would read, without
// per-field attributes. Used in logs.
func (idx *IndexDefinition) String() string {
	var sb strings.Builder
	sb.WriteString("FT.CREATE ")
	sb.WriteString(idx.Name)
	if idx.StorageType != "" {
		sb.WriteString(" ON ")
		sb.WriteString(string(idx.StorageType))
	}
	if len(idx.Prefixes) > 0 {
		sb.WriteString(" PREFIX ")
		sb.WriteString(strconv.Itoa(len(idx.Prefixes)))
		for _, p := range idx.Prefixes {
			sb.WriteByte(' ')
			sb.WriteString(p)
		}
	}
	sb.WriteString(" SCHEMA")
	for i := range idx.Fields {
		f := &idx.Fields[i]
		sb.WriteByte(' ')
		sb.WriteString(f.Name)
		if f.Alias != "" {
			sb.WriteString(" AS ")
			sb.WriteString(f.Alias)
		}
		sb.WriteByte(' ')
		sb.WriteString(string(f.Type))
		if f.Type == IndexFieldVector {
			sb.WriteByte(' ')
			sb.WriteString(string(f.VectorAlgo))
		}
	}
	return sb.String()
}
