// Package catalog loads the document catalog: which agreements to index,
// their effective dates and the metadata filter applied at query time.
package catalog

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"gopkg.in/yaml.v3"

	"github.com/kailas-cloud/contractrag/internal/domain"
	"github.com/kailas-cloud/contractrag/internal/metafilter"
	"github.com/kailas-cloud/contractrag/internal/segment"
)

// DefaultDiscoverPattern matches parser output anywhere under the data folder.
const DefaultDiscoverPattern = "**/*.json"

// Document is one catalog entry.
type Document struct {
	FileName      string
	EffectiveDate *time.Time
}

// Metadata returns the per-page metadata for the segmenter.
func (d Document) Metadata() segment.Metadata {
	return segment.Metadata{EffectiveDate: d.EffectiveDate}
}

// Catalog is the parsed catalog file.
type Catalog struct {
	Documents []Document
	Filter    metafilter.Config
}

type fileDTO struct {
	ServiceAgreements []struct {
		FileName      string `yaml:"file_name"`
		EffectiveDate string `yaml:"effective_date"`
	} `yaml:"service_agreements"`
	MetadataFilterConfig metafilter.Config `yaml:"metadata_filter_config"`
}

// Load reads a catalog file. A missing file is domain.ErrNotFound.
func Load(path string) (Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Catalog{}, domain.NotFoundf("catalog %s", path)
		}
		return Catalog{}, fmt.Errorf("read catalog: %w", err)
	}
	return Parse(data)
}

// Parse decodes catalog YAML.
func Parse(data []byte) (Catalog, error) {
	var dto fileDTO
	if err := yaml.Unmarshal(data, &dto); err != nil {
		return Catalog{}, domain.Validationf("catalog: %v", err)
	}

	c := Catalog{Filter: dto.MetadataFilterConfig}
	for i, sa := range dto.ServiceAgreements {
		if sa.FileName == "" {
			return Catalog{}, domain.Validationf("catalog: service_agreements[%d].file_name is required", i)
		}
		doc := Document{FileName: sa.FileName}
		if sa.EffectiveDate != "" {
			t, err := metafilter.ParseDate(sa.EffectiveDate)
			if err != nil {
				return Catalog{}, domain.Validationf("catalog: %s effective_date: %v", sa.FileName, err)
			}
			doc.EffectiveDate = &t
		}
		c.Documents = append(c.Documents, doc)
	}

	// fail on a bad filter at load time rather than on the first query
	if _, err := metafilter.Build(c.Filter); err != nil {
		return Catalog{}, fmt.Errorf("catalog: %w", err)
	}
	return c, nil
}

// Resolve returns the listed documents, or the documents discovered in dir
// when the catalog lists none.
func (c Catalog) Resolve(dir, pattern string) ([]Document, error) {
	if len(c.Documents) > 0 {
		return c.Documents, nil
	}
	return Discover(dir, pattern)
}

// Discover lists files under dir matching a doublestar pattern, sorted.
// Discovered documents carry no effective date.
func Discover(dir, pattern string) ([]Document, error) {
	if pattern == "" {
		pattern = DefaultDiscoverPattern
	}
	if !doublestar.ValidatePattern(pattern) {
		return nil, domain.Validationf("discover pattern %q", pattern)
	}
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		return nil, domain.NotFoundf("data folder %s", dir)
	}

	matches, err := doublestar.Glob(os.DirFS(dir), pattern, doublestar.WithFilesOnly())
	if err != nil {
		return nil, fmt.Errorf("discover %s: %w", dir, err)
	}
	slices.Sort(matches)

	docs := make([]Document, 0, len(matches))
	for _, m := range matches {
		docs = append(docs, Document{FileName: filepath.FromSlash(m)})
	}
	return docs, nil
}
