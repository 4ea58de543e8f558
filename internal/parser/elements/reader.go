// Package elements reads layout elements produced by an external document
// parser. The expected file is a JSON array of {"type", "text"} objects,
// which is what unstructured's element JSON export writes.
package elements

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/kailas-cloud/contractrag/internal/domain"
	"github.com/kailas-cloud/contractrag/internal/domain/layout"
)

// rawElement is one entry of the parser output. Extra fields are ignored.
type rawElement struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// Reader loads parsed documents from a data folder.
type Reader struct {
	dir string
}

// NewReader creates a reader rooted at dir.
func NewReader(dir string) *Reader {
	return &Reader{dir: dir}
}

// Dir returns the data folder.
func (r *Reader) Dir() string { return r.dir }

// Parse returns the elements of document in order. document is a file name
// relative to the data folder; for non-JSON names the parsed sibling
// (<name>.json, then <stem>.json) is read instead.
func (r *Reader) Parse(ctx context.Context, document string) ([]layout.Element, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	path, err := r.resolve(document)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	var raw []rawElement
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, domain.Validationf("parse %s: %v", path, err)
	}

	out := make([]layout.Element, 0, len(raw))
	for _, el := range raw {
		out = append(out, layout.New(layout.ParseCategory(el.Type), el.Text))
	}
	return out, nil
}

func (r *Reader) resolve(document string) (string, error) {
	if document == "" {
		return "", domain.Validationf("document name is required")
	}

	for _, c := range candidates(document) {
		path := filepath.Join(r.dir, c)
		info, err := os.Stat(path)
		if err == nil && !info.IsDir() {
			return path, nil
		}
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("stat %s: %w", path, err)
		}
	}
	return "", domain.NotFoundf("parsed document %q in %s", document, r.dir)
}

func candidates(document string) []string {
	ext := filepath.Ext(document)
	if strings.EqualFold(ext, ".json") {
		return []string{document}
	}
	out := []string{document + ".json"}
	if ext != "" {
		out = append(out, strings.TrimSuffix(document, ext)+".json")
	}
	return out
}
