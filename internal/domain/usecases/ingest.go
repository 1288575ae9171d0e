// Package usecases orchestrates the domain packages behind the ports:
// ingestion of contract sources and the clause review workflow.
package usecases

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/0xcro3dile/redline-go/internal/adapters/snapshot"
	"github.com/0xcro3dile/redline-go/internal/domain/entities"
	"github.com/0xcro3dile/redline-go/internal/domain/ports"
	"github.com/0xcro3dile/redline-go/internal/infrastructure/logger"
)

// FallbackPrefix starts the text of the single paragraph produced when a
// packaged document cannot be decoded structurally.
const FallbackPrefix = "Error parsing document structure. Text extracted via fallback: "

// FallbackParagraphID is the id of that paragraph.
const FallbackParagraphID = "err"

var (
	// ErrNoDocument means there is no document to work on.
	ErrNoDocument = errors.New("no document loaded")
	// ErrEmptySource means a source produced no text at all.
	ErrEmptySource = errors.New("source contains no text")
	// ErrKeptPrevious means neither decoding nor fallback extraction worked
	// and Ingest returned the unchanged current document alongside it.
	ErrKeptPrevious = errors.New("source unreadable, previous document kept")
)

// IngestUseCase turns uploaded sources into Documents and keeps the most
// recently ingested one as the current document.
type IngestUseCase struct {
	decoder   ports.DocumentDecoder
	extractor ports.DocumentParser // lenient extraction for the fallback
	parser    ports.DocumentParser // unstructured sources
	store     ports.DocumentStore
	log       *logger.Logger

	mu      sync.RWMutex
	current *entities.Document
}

// NewIngestUseCase wires the ingestion pipeline. parser may equal extractor.
func NewIngestUseCase(
	decoder ports.DocumentDecoder,
	extractor ports.DocumentParser,
	parser ports.DocumentParser,
	store ports.DocumentStore,
	log *logger.Logger,
) *IngestUseCase {
	if parser == nil {
		parser = extractor
	}
	return &IngestUseCase{
		decoder:   decoder,
		extractor: extractor,
		parser:    parser,
		store:     store,
		log:       logger.OrNop(log).With("comp", "ingest"),
	}
}

// Ingest dispatches on src.Format. A successful result replaces the current
// document and is persisted. A rejected snapshot leaves the current document
// untouched. When a packaged source can be read neither structurally nor by
// the fallback, the current document is returned together with ErrKeptPrevious.
func (uc *IngestUseCase) Ingest(ctx context.Context, src entities.Source) (*entities.Document, error) {
	var (
		doc *entities.Document
		err error
	)

	switch src.Format {
	case entities.FormatPackagedXML:
		doc, err = uc.decoder.Decode(ctx, src.Data, src.Name)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			uc.log.Warn("structured decode failed, using fallback extraction", "file", src.Name, "err", err)
			fb, ok := uc.fallback(ctx, src.Data, src.Name)
			if !ok {
				prior := uc.Current()
				if prior == nil {
					return nil, fmt.Errorf("%w: %v", ErrNoDocument, err)
				}
				return prior, fmt.Errorf("%w: %v", ErrKeptPrevious, err)
			}
			doc = fb
		}

	case entities.FormatJSONSnapshot:
		doc, err = snapshot.Decode(src.Data, src.Name)
		if err != nil {
			uc.log.Warn("snapshot rejected", "file", src.Name, "err", err)
			return nil, err
		}

	case entities.FormatUnstructured:
		doc, err = uc.fromText(ctx, src)
		if err != nil {
			return nil, err
		}

	default:
		return nil, fmt.Errorf("unknown source format %q", src.Format)
	}

	doc.ID = ""
	if err := uc.store.SaveDocument(ctx, doc); err != nil {
		return nil, fmt.Errorf("saving document: %w", err)
	}

	uc.setCurrent(doc)
	uc.log.Info("document ingested", "id", doc.ID, "file", src.Name, "format", string(src.Format), "paragraphs", len(doc.Paragraphs))
	return doc.Clone(), nil
}

// Fallback builds the single-paragraph document for bytes that could not be
// decoded. When the extractor fails too, the current document is returned
// unchanged (nil when nothing was ingested yet).
func (uc *IngestUseCase) Fallback(ctx context.Context, data []byte, filename string) *entities.Document {
	if doc, ok := uc.fallback(ctx, data, filename); ok {
		return doc
	}
	return uc.Current()
}

func (uc *IngestUseCase) fallback(ctx context.Context, data []byte, filename string) (*entities.Document, bool) {
	text, err := uc.extractor.Parse(ctx, data, filename)
	if err != nil {
		uc.log.Error("fallback extraction failed, keeping previous document", "file", filename, "err", err)
		return nil, false
	}
	return &entities.Document{
		Metadata: entities.NewMetadata(filename),
		Paragraphs: []entities.Paragraph{{
			ID:           FallbackParagraphID,
			Text:         FallbackPrefix + text,
			Style:        "Normal",
			OutlineLevel: 0,
			Status:       entities.StatusOriginal,
		}},
	}, true
}

var blankLines = regexp.MustCompile(`\n\s*\n`)

// fromText splits extracted text into one paragraph per blank-line separated block.
func (uc *IngestUseCase) fromText(ctx context.Context, src entities.Source) (*entities.Document, error) {
	text, err := uc.parser.Parse(ctx, src.Data, src.Name)
	if err != nil {
		return nil, fmt.Errorf("extracting text from %s: %w", src.Name, err)
	}

	text = strings.ReplaceAll(text, "\r\n", "\n")
	doc := &entities.Document{Metadata: entities.NewMetadata(src.Name)}
	for _, block := range blankLines.Split(text, -1) {
		block = strings.TrimSpace(block)
		if block == "" {
			continue
		}
		doc.Paragraphs = append(doc.Paragraphs, entities.Paragraph{
			ID:           fmt.Sprintf("text_para_%d", len(doc.Paragraphs)),
			Text:         block,
			OriginalText: block,
			Style:        "Normal",
			Status:       entities.StatusOriginal,
		})
	}
	if len(doc.Paragraphs) == 0 {
		return nil, ErrEmptySource
	}
	return doc, nil
}

// Current returns a copy of the current document, or nil.
func (uc *IngestUseCase) Current() *entities.Document {
	uc.mu.RLock()
	defer uc.mu.RUnlock()
	return uc.current.Clone()
}

// Refresh replaces the current document when doc is a newer version of it.
func (uc *IngestUseCase) Refresh(doc *entities.Document) {
	uc.mu.Lock()
	defer uc.mu.Unlock()
	if uc.current != nil && doc != nil && uc.current.ID == doc.ID {
		uc.current = doc.Clone()
	}
}

func (uc *IngestUseCase) setCurrent(doc *entities.Document) {
	uc.mu.Lock()
	defer uc.mu.Unlock()
	uc.current = doc.Clone()
}

// Chunk is a group of consecutive paragraphs sent for review together.
type Chunk struct {
	Index        int
	ParagraphIDs []string
	Text         string // "[id] text" lines
}

// DefaultChunkParagraphs is used when ChunkParagraphs gets a non-positive size.
const DefaultChunkParagraphs = 8

// ChunkParagraphs groups the paragraphs of doc into chunks of at most size.
func ChunkParagraphs(doc *entities.Document, size int) []Chunk {
	if doc == nil || len(doc.Paragraphs) == 0 {
		return nil
	}
	if size <= 0 {
		size = DefaultChunkParagraphs
	}

	var chunks []Chunk
	for start := 0; start < len(doc.Paragraphs); start += size {
		end := start + size
		if end > len(doc.Paragraphs) {
			end = len(doc.Paragraphs)
		}

		var sb strings.Builder
		ids := make([]string, 0, end-start)
		for _, p := range doc.Paragraphs[start:end] {
			ids = append(ids, p.ID)
			fmt.Fprintf(&sb, "[%s] %s\n", p.ID, p.Text)
		}
		chunks = append(chunks, Chunk{
			Index:        len(chunks),
			ParagraphIDs: ids,
			Text:         sb.String(),
		})
	}
	return chunks
}
