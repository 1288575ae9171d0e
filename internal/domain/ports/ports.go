// Package ports defines interfaces for external dependencies.
// Usecases depend on these abstractions; adapters implement them.
package ports

import (
	"context"
	"errors"

	"github.com/0xcro3dile/redline-go/internal/domain/entities"
)

// ErrNotFound is returned by stores for unknown ids.
var ErrNotFound = errors.New("not found")

// DocumentDecoder reconstructs the structured paragraph view of a packaged
// document. A non-nil error means the caller must fall back to text extraction.
type DocumentDecoder interface {
	Decode(ctx context.Context, data []byte, filename string) (*entities.Document, error)
}

// DocumentParser extracts plain text from document bytes, leniently.
type DocumentParser interface {
	// Parse extracts text content from document bytes.
	Parse(ctx context.Context, data []byte, filename string) (string, error)

	// SupportedFormats returns formats this parser handles (e.g., "docx", "pdf").
	SupportedFormats() []string
}

// DocumentLoader reads a document source from disk.
type DocumentLoader interface {
	// Load reads the file at path and tags it with a SourceFormat.
	Load(ctx context.Context, path string) (*entities.Source, error)

	// FormatFor picks the SourceFormat for a file name.
	FormatFor(path string) entities.SourceFormat

	// SupportedExtensions returns file extensions this loader recognises.
	SupportedExtensions() []string
}

// LLMService is the external text-generation service.
type LLMService interface {
	// Generate produces a complete response for a prompt.
	Generate(ctx context.Context, prompt string) (string, error)

	// GenerateStream produces a streaming response.
	// Returns a channel of StreamTokens for token-by-token output.
	GenerateStream(ctx context.Context, prompt string) (<-chan StreamToken, error)
}

// StreamToken represents a single token in a streaming LLM response.
type StreamToken struct {
	Content string
	Done    bool
	Error   error
}

// DocumentStore persists ingested documents and their findings.
type DocumentStore interface {
	SaveDocument(ctx context.Context, doc *entities.Document) error
	GetDocument(ctx context.Context, id string) (*entities.Document, error)
	ListDocuments(ctx context.Context) ([]entities.Document, error)
	DeleteDocument(ctx context.Context, id string) error

	SaveFindings(ctx context.Context, findings []entities.Finding) error
	GetFinding(ctx context.Context, id string) (*entities.Finding, error)
	ListFindings(ctx context.Context, documentID string) ([]entities.Finding, error)
	UpdateFinding(ctx context.Context, finding *entities.Finding) error
}

// RuleSource supplies the current review playbook.
type RuleSource interface {
	Rules() []entities.Rule
}

// FileWatcher monitors a directory for changes.
type FileWatcher interface {
	// Watch starts monitoring the directory and emits events.
	Watch(ctx context.Context, dir string) (<-chan FileEvent, error)

	// Stop stops the watcher.
	Stop() error
}

// FileEvent represents a file system change.
type FileEvent struct {
	Path      string
	Operation FileOperation
}

// FileOperation is the type of file change.
type FileOperation int

const (
	FileCreated FileOperation = iota
	FileModified
	FileDeleted
)
