// Package schema describes a collection declaratively: its properties and
// the vectorizer and generator it is meant to be used with.
package schema

import (
	"errors"
	"fmt"
	"regexp"
)

var nameRegex = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_]*$`)

// reserved names are used internally by storage adapters.
var reservedNames = map[string]bool{
	"id": true, "__vector": true, "__vector_score": true,
}

// DataType is the storage type of a property.
type DataType string

// Supported data types.
const (
	Text   DataType = "text"
	Int    DataType = "int"
	Number DataType = "number"
	Date   DataType = "date"
)

// IsValid reports whether the data type is supported.
func (t DataType) IsValid() bool {
	return t == Text || t == Int || t == Number || t == Date
}

// IsNumeric reports whether values are range-filterable numbers (dates included).
func (t DataType) IsNumeric() bool {
	return t == Int || t == Number || t == Date
}

// Property is one named, typed attribute of the stored records.
type Property struct {
	Name     string
	DataType DataType
	// IndexText enables keyword (BM25) search over a text property.
	IndexText bool
	// Vectorize includes a text property in the embedded text.
	Vectorize bool
}

// ModelConfig names a model runtime.
type ModelConfig struct {
	Provider string
	Model    string
	Endpoint string
}

// VectorConfig configures the vectorizer. Dimensions is the embedding size.
type VectorConfig struct {
	ModelConfig
	Dimensions int
	// DocumentInstruction and QueryInstruction are prepended to texts
	// before embedding (e.g. "search_document: ").
	DocumentInstruction string
	QueryInstruction    string
}

// IsSet reports whether a vectorizer is configured.
func (v VectorConfig) IsSet() bool { return v.Model != "" || v.Dimensions > 0 }

// Schema is the declarative definition of a collection.
type Schema struct {
	CollectionName   string
	Properties       []Property
	VectorConfig     VectorConfig
	GenerativeConfig ModelConfig
}

// Validate reports every structural problem joined into one error.
func (s Schema) Validate() error {
	var errs []error

	if !nameRegex.MatchString(s.CollectionName) || len(s.CollectionName) > 64 {
		errs = append(errs, fmt.Errorf("collection name %q must match %s (max 64)", s.CollectionName, nameRegex))
	}
	if len(s.Properties) == 0 {
		errs = append(errs, errors.New("at least one property is required"))
	}

	seen := make(map[string]bool, len(s.Properties))
	vectorized := 0
	for i, p := range s.Properties {
		switch {
		case p.Name == "":
			errs = append(errs, fmt.Errorf("property %d: name is required", i))
			continue
		case !nameRegex.MatchString(p.Name):
			errs = append(errs, fmt.Errorf("property %q: invalid name", p.Name))
		case reservedNames[p.Name]:
			errs = append(errs, fmt.Errorf("property %q: name is reserved", p.Name))
		}
		if seen[p.Name] {
			errs = append(errs, fmt.Errorf("property %q: duplicate name", p.Name))
		}
		seen[p.Name] = true

		if !p.DataType.IsValid() {
			errs = append(errs, fmt.Errorf("property %q: unknown data type %q", p.Name, p.DataType))
			continue
		}
		if p.DataType != Text && (p.IndexText || p.Vectorize) {
			errs = append(errs, fmt.Errorf("property %q: only text properties can be text-indexed or vectorized", p.Name))
		}
		if p.Vectorize {
			vectorized++
		}
	}

	if s.VectorConfig.IsSet() {
		if s.VectorConfig.Dimensions <= 0 {
			errs = append(errs, errors.New("vector config: dimensions must be positive"))
		}
		if vectorized == 0 {
			errs = append(errs, errors.New("vector config: no vectorized text property"))
		}
	}

	return errors.Join(errs...)
}

// Property returns the property with the given name.
func (s Schema) Property(name string) (Property, bool) {
	for _, p := range s.Properties {
		if p.Name == name {
			return p, true
		}
	}
	return Property{}, false
}

// TextIndexed returns the names of keyword-searchable properties.
func (s Schema) TextIndexed() []string {
	var out []string
	for _, p := range s.Properties {
		if p.IndexText {
			out = append(out, p.Name)
		}
	}
	return out
}

// Vectorized returns the names of properties that feed the embedding.
func (s Schema) Vectorized() []string {
	var out []string
	for _, p := range s.Properties {
		if p.Vectorize {
			out = append(out, p.Name)
		}
	}
	return out
}

// Names returns all property names in declaration order.
func (s Schema) Names() []string {
	out := make([]string, len(s.Properties))
	for i, p := range s.Properties {
		out[i] = p.Name
	}
	return out
}

// ContractPages returns the default schema for contract page records.
func ContractPages() Schema {
	ollama := ModelConfig{Provider: "ollama", Endpoint: "http://localhost:11434"}

	vec := VectorConfig{ModelConfig: ollama, Dimensions: 768,
		DocumentInstruction: "search_document: ", QueryInstruction: "search_query: "}
	vec.Model = "nomic-embed-text"

	gen := ollama
	gen.Model = "llama3.2"

	return Schema{
		CollectionName: "Page",
		Properties: []Property{
			{Name: "document", DataType: Text},
			{Name: "page_number", DataType: Int},
			{Name: "content", DataType: Text, IndexText: true, Vectorize: true},
			{Name: "effective_date", DataType: Date},
		},
		VectorConfig:     vec,
		GenerativeConfig: gen,
	}
}
