package config

import "github.com/kailas-cloud/contractrag/internal/domain/schema"

// SchemaConfig is the YAML shape of the collection schema. An empty
// section means the default contract page schema.
type SchemaConfig struct {
	CollectionName   string            `yaml:"collection_name"`
	Properties       []PropertyConfig  `yaml:"properties"`
	VectorConfig     *VectorConfigYAML `yaml:"vector_config"`
	GenerativeConfig *ModelConfigYAML  `yaml:"generative_config"`
}

// PropertyConfig is one schema property.
type PropertyConfig struct {
	Name      string `yaml:"name"`
	DataType  string `yaml:"data_type"`
	IndexText bool   `yaml:"index_text"`
	Vectorize bool   `yaml:"vectorize"`
}

// ModelConfigYAML names a model runtime.
type ModelConfigYAML struct {
	Provider string `yaml:"provider"`
	Model    string `yaml:"model"`
	Endpoint string `yaml:"endpoint"`
}

// VectorConfigYAML configures the vectorizer.
type VectorConfigYAML struct {
	ModelConfigYAML     `yaml:",inline"`
	Dimensions          int    `yaml:"dimensions"`
	DocumentInstruction string `yaml:"document_instruction"`
	QueryInstruction    string `yaml:"query_instruction"`
}

func (m ModelConfigYAML) toDomain() schema.ModelConfig {
	return schema.ModelConfig{Provider: m.Provider, Model: m.Model, Endpoint: m.Endpoint}
}

// ToSchema converts the section into a domain schema. Missing parts are
// taken from schema.ContractPages.
func (s SchemaConfig) ToSchema() schema.Schema {
	out := schema.ContractPages()
	if s.CollectionName != "" {
		out.CollectionName = s.CollectionName
	}
	if len(s.Properties) > 0 {
		out.Properties = make([]schema.Property, len(s.Properties))
		for i, p := range s.Properties {
			out.Properties[i] = schema.Property{
				Name:      p.Name,
				DataType:  schema.DataType(p.DataType),
				IndexText: p.IndexText,
				Vectorize: p.Vectorize,
			}
		}
	}
	if v := s.VectorConfig; v != nil {
		out.VectorConfig = schema.VectorConfig{
			ModelConfig:         v.toDomain(),
			Dimensions:          v.Dimensions,
			DocumentInstruction: v.DocumentInstruction,
			QueryInstruction:    v.QueryInstruction,
		}
	}
	if g := s.GenerativeConfig; g != nil {
		out.GenerativeConfig = g.toDomain()
	}
	return out
}
