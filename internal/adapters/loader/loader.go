// Package loader reads document sources from disk and tags them with the
// format the ingestion pipeline must use.
package loader

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/0xcro3dile/redline-go/internal/domain/entities"
)

// maxSourceSize bounds a single upload read from disk.
const maxSourceSize = 64 << 20

// MultiLoader maps file extensions to source formats. Unknown extensions are
// read as unstructured text.
type MultiLoader struct {
	formats map[string]entities.SourceFormat
}

// NewMultiLoader creates a loader for .docx, .json and plain text files.
func NewMultiLoader() *MultiLoader {
	return &MultiLoader{
		formats: map[string]entities.SourceFormat{
			".docx":     entities.FormatPackagedXML,
			".json":     entities.FormatJSONSnapshot,
			".txt":      entities.FormatUnstructured,
			".md":       entities.FormatUnstructured,
			".markdown": entities.FormatUnstructured,
			".html":     entities.FormatUnstructured,
			".pdf":      entities.FormatUnstructured,
		},
	}
}

// FormatFor returns the source format for a file name.
func (m *MultiLoader) FormatFor(path string) entities.SourceFormat {
	if f, ok := m.formats[strings.ToLower(filepath.Ext(path))]; ok {
		return f
	}
	return entities.FormatUnstructured
}

// Load reads the file at path.
func (m *MultiLoader) Load(ctx context.Context, path string) (*entities.Source, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s is a directory", path)
	}
	if info.Size() > maxSourceSize {
		return nil, fmt.Errorf("%s exceeds %d bytes", path, maxSourceSize)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	return &entities.Source{
		Name:   filepath.Base(path),
		Format: m.FormatFor(path),
		Data:   data,
	}, nil
}

// SupportedExtensions returns all mapped extensions, sorted.
func (m *MultiLoader) SupportedExtensions() []string {
	exts := make([]string, 0, len(m.formats))
	for ext := range m.formats {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}
