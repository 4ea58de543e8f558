package redisstore

import (
	"github.com/kailas-cloud/contractrag/internal/db"
	"github.com/kailas-cloud/contractrag/internal/domain/schema"
)

// indexDefinition maps a schema onto an FT index: text-indexed text becomes
// TEXT, other text an exact-match TAG, numbers and dates NUMERIC. The HNSW
// vector field is added when the schema has a vectorizer.
func indexDefinition(name, prefix string, s schema.Schema) (*db.IndexDefinition, error) {
	b := db.NewIndex(name).Prefix(prefix)
	for _, p := range s.Properties {
		switch {
		case p.DataType == schema.Text && p.IndexText:
			b.Text(p.Name)
		case p.DataType == schema.Text:
			b.Tag(p.Name).CaseSensitive()
		default:
			b.Numeric(p.Name)
		}
	}
	if s.VectorConfig.IsSet() {
		b.VectorHNSW(vectorField, s.VectorConfig.Dimensions, db.DistanceCosine, 0, 0).As(vectorAlias)
	}
	return b.Build()
}
