package redisstore

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/kailas-cloud/contractrag/internal/domain/schema"
	"github.com/kailas-cloud/contractrag/internal/storage"
)

// metaField is the hash field holding the serialized schema.
const metaField = "definition"

// schemaDTO is the persisted form of a schema.
type schemaDTO struct {
	CollectionName string        `json:"collection_name"`
	Properties     []propertyDTO `json:"properties"`
	Vector         *vectorDTO    `json:"vector,omitempty"`
	Generative     *modelDTO     `json:"generative,omitempty"`
}

type propertyDTO struct {
	Name      string `json:"name"`
	DataType  string `json:"data_type"`
	IndexText bool   `json:"index_text,omitempty"`
	Vectorize bool   `json:"vectorize,omitempty"`
}

type modelDTO struct {
	Provider string `json:"provider,omitempty"`
	Model    string `json:"model,omitempty"`
	Endpoint string `json:"endpoint,omitempty"`
}

type vectorDTO struct {
	modelDTO
	Dimensions          int    `json:"dimensions"`
	DocumentInstruction string `json:"document_instruction,omitempty"`
	QueryInstruction    string `json:"query_instruction,omitempty"`
}

func marshalSchema(s schema.Schema) (string, error) {
	dto := schemaDTO{CollectionName: s.CollectionName}
	for _, p := range s.Properties {
		dto.Properties = append(dto.Properties, propertyDTO{
			Name: p.Name, DataType: string(p.DataType), IndexText: p.IndexText, Vectorize: p.Vectorize,
		})
	}
	if s.VectorConfig.IsSet() {
		v := s.VectorConfig
		dto.Vector = &vectorDTO{
			modelDTO:            modelDTO{Provider: v.Provider, Model: v.Model, Endpoint: v.Endpoint},
			Dimensions:          v.Dimensions,
			DocumentInstruction: v.DocumentInstruction,
			QueryInstruction:    v.QueryInstruction,
		}
	}
	if g := s.GenerativeConfig; g != (schema.ModelConfig{}) {
		dto.Generative = &modelDTO{Provider: g.Provider, Model: g.Model, Endpoint: g.Endpoint}
	}
	data, err := json.Marshal(dto)
	if err != nil {
		return "", fmt.Errorf("marshal schema: %w", err)
	}
	return string(data), nil
}

func unmarshalSchema(data string) (schema.Schema, error) {
	var dto schemaDTO
	if err := json.Unmarshal([]byte(data), &dto); err != nil {
		return schema.Schema{}, fmt.Errorf("unmarshal schema: %w", err)
	}
	s := schema.Schema{CollectionName: dto.CollectionName}
	for _, p := range dto.Properties {
		s.Properties = append(s.Properties, schema.Property{
			Name: p.Name, DataType: schema.DataType(p.DataType), IndexText: p.IndexText, Vectorize: p.Vectorize,
		})
	}
	if v := dto.Vector; v != nil {
		s.VectorConfig = schema.VectorConfig{
			ModelConfig:         schema.ModelConfig{Provider: v.Provider, Model: v.Model, Endpoint: v.Endpoint},
			Dimensions:          v.Dimensions,
			DocumentInstruction: v.DocumentInstruction,
			QueryInstruction:    v.QueryInstruction,
		}
	}
	if g := dto.Generative; g != nil {
		s.GenerativeConfig = schema.ModelConfig{Provider: g.Provider, Model: g.Model, Endpoint: g.Endpoint}
	}
	return s, nil
}

// encodeFields renders normalized properties as hash field strings.
// Dates become unix seconds so NUMERIC ranges apply to them.
func encodeFields(props storage.Object) map[string]string {
	out := make(map[string]string, len(props)+1)
	for name, v := range props {
		switch x := v.(type) {
		case string:
			out[name] = x
		case int:
			out[name] = strconv.Itoa(x)
		case float64:
			out[name] = strconv.FormatFloat(x, 'f', -1, 64)
		case time.Time:
			out[name] = strconv.FormatInt(x.Unix(), 10)
		}
	}
	return out
}

// decodeFields turns hash strings back into typed properties. Fields that
// are not in the schema or do not parse are left out.
func decodeFields(s schema.Schema, fields map[string]string) map[string]any {
	out := make(map[string]any, len(fields))
	for _, p := range s.Properties {
		raw, ok := fields[p.Name]
		if !ok {
			continue
		}
		switch p.DataType {
		case schema.Text:
			out[p.Name] = raw
		case schema.Int:
			if n, err := strconv.Atoi(raw); err == nil {
				out[p.Name] = n
			}
		case schema.Number:
			if f, err := strconv.ParseFloat(raw, 64); err == nil {
				out[p.Name] = f
			}
		case schema.Date:
			if sec, err := strconv.ParseFloat(raw, 64); err == nil {
				out[p.Name] = time.Unix(int64(sec), 0).UTC()
			}
		}
	}
	return out
}
