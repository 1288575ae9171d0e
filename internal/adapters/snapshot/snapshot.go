// Package snapshot reads and writes the JSON form of a Document.
package snapshot

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/0xcro3dile/redline-go/internal/domain/entities"
)

// ErrInvalidSnapshot means the bytes are not a usable document snapshot.
var ErrInvalidSnapshot = errors.New("invalid document snapshot")

type rawSnapshot struct {
	ID         string             `json:"id"`
	Metadata   *entities.Metadata `json:"metadata"`
	Paragraphs json.RawMessage    `json:"paragraphs"`
}

// Decode validates and converts a snapshot. A missing or non-array
// "paragraphs" field is rejected with ErrInvalidSnapshot.
func Decode(data []byte, filename string) (*entities.Document, error) {
	var raw rawSnapshot
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSnapshot, err)
	}

	trimmed := bytes.TrimSpace(raw.Paragraphs)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return nil, fmt.Errorf("%w: missing paragraphs array", ErrInvalidSnapshot)
	}

	var paragraphs []entities.Paragraph
	if err := json.Unmarshal(trimmed, &paragraphs); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSnapshot, err)
	}

	seen := make(map[string]bool, len(paragraphs))
	for i := range paragraphs {
		p := &paragraphs[i]
		if p.ID == "" {
			p.ID = fmt.Sprintf("json_para_%d", i)
		}
		if seen[p.ID] {
			return nil, fmt.Errorf("%w: duplicate paragraph id %q", ErrInvalidSnapshot, p.ID)
		}
		seen[p.ID] = true
		if p.Style == "" {
			p.Style = "Normal"
		}
		if p.Status == "" {
			p.Status = entities.StatusOriginal
		}
	}

	doc := &entities.Document{
		ID:         raw.ID,
		Paragraphs: paragraphs,
	}
	if raw.Metadata != nil {
		doc.Metadata = *raw.Metadata
	}
	if doc.Metadata.Filename == "" {
		doc.Metadata.Filename = filename
	}
	if doc.Metadata.Timestamp == "" {
		doc.Metadata.Timestamp = entities.NewMetadata(filename).Timestamp
	}
	return doc, nil
}

// Encode writes the snapshot form read by Decode.
func Encode(doc *entities.Document) ([]byte, error) {
	if doc == nil {
		return nil, fmt.Errorf("%w: nil document", ErrInvalidSnapshot)
	}
	out := *doc
	if out.Paragraphs == nil {
		out.Paragraphs = []entities.Paragraph{}
	}
	return json.MarshalIndent(out, "", "  ")
}
