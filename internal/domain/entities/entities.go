// Package entities contains core business entities.
// These are pure domain objects with no external dependencies.
package entities

import (
	"strings"
	"time"
)

// SourceFormat tags how an uploaded byte stream must be interpreted.
// The set is closed; ingestion dispatches on it explicitly.
type SourceFormat string

const (
	FormatPackagedXML  SourceFormat = "packaged-xml"
	FormatJSONSnapshot SourceFormat = "json-snapshot"
	FormatUnstructured SourceFormat = "unstructured"
)

// ParseSourceFormat maps a user supplied tag to a SourceFormat.
// Unknown tags map to FormatUnstructured.
func ParseSourceFormat(s string) SourceFormat {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "packaged-xml", "docx":
		return FormatPackagedXML
	case "json-snapshot", "json":
		return FormatJSONSnapshot
	default:
		return FormatUnstructured
	}
}

// Source is one uploaded input: its name, declared format and raw bytes.
type Source struct {
	Name   string
	Format SourceFormat
	Data   []byte
}

// ParagraphStatus tracks whether a paragraph was edited after ingestion.
type ParagraphStatus string

const (
	StatusOriginal ParagraphStatus = "original"
	StatusModified ParagraphStatus = "modified"
)

// Metadata describes where a Document came from.
type Metadata struct {
	Filename  string `json:"filename"`
	Timestamp string `json:"timestamp"`
}

// Paragraph is one logical paragraph of an ingested contract.
type Paragraph struct {
	ID           string          `json:"id"`
	Text         string          `json:"text"`
	OriginalText string          `json:"original_text,omitempty"` // pre-edit text; once set it never changes
	Style        string          `json:"style"`
	OutlineLevel int             `json:"outline_level"`
	Status       ParagraphStatus `json:"status"`
}

// Document is the ordered paragraph view of one ingested contract.
// It is replaced wholesale on re-ingestion and only mutated via ApplyPatch.
type Document struct {
	ID         string      `json:"id,omitempty"`
	Metadata   Metadata    `json:"metadata"`
	Paragraphs []Paragraph `json:"paragraphs"`
}

// NewMetadata stamps a filename with the current UTC time.
func NewMetadata(filename string) Metadata {
	return Metadata{
		Filename:  filename,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
}

// Paragraph returns the paragraph with the given id.
func (d *Document) Paragraph(id string) (*Paragraph, bool) {
	for i := range d.Paragraphs {
		if d.Paragraphs[i].ID == id {
			return &d.Paragraphs[i], true
		}
	}
	return nil, false
}

// ApplyPatch replaces the text of paragraph id. The first edit snapshots the
// pre-edit text into OriginalText; later edits leave it untouched.
func (d *Document) ApplyPatch(id, text string) bool {
	p, ok := d.Paragraph(id)
	if !ok {
		return false
	}
	if p.OriginalText == "" {
		p.OriginalText = p.Text
	}
	p.Text = text
	p.Status = StatusModified
	return true
}

// Clone returns a deep copy so callers can mutate without aliasing.
func (d *Document) Clone() *Document {
	if d == nil {
		return nil
	}
	out := *d
	out.Paragraphs = append([]Paragraph(nil), d.Paragraphs...)
	return &out
}

// RiskLevel is the three-valued severity attached to a finding.
type RiskLevel string

const (
	RiskRed    RiskLevel = "RED"
	RiskYellow RiskLevel = "YELLOW"
	RiskGreen  RiskLevel = "GREEN"
)

// FindingStatus is open until the review workflow accepts or rejects it.
type FindingStatus string

const (
	FindingOpen     FindingStatus = "open"
	FindingResolved FindingStatus = "resolved"
)

// Section names recognised inside a clause block.
const (
	SectionRisk             = "RISK"
	SectionIssue            = "ISSUE"
	SectionOriginal         = "ORIGINAL"
	SectionReasoning        = "REASONING"
	SectionSuggestedRewrite = "SUGGESTED_REWRITE"
)

// ClauseBlock is one delimited unit of a generation response.
// ParseError is non-empty when the block was recovered without its end marker.
type ClauseBlock struct {
	ID         string
	Sections   map[string]string
	ParseError string
}

// Finding is the reviewable record derived from a ClauseBlock.
type Finding struct {
	ID            string        `json:"id"`
	DocumentID    string        `json:"document_id,omitempty"`
	TargetID      string        `json:"target_id"`
	IssueType     string        `json:"issue_type"`
	RiskLevel     RiskLevel     `json:"risk_level"`
	Reasoning     string        `json:"reasoning"`
	SuggestedText string        `json:"suggested_text"`
	OriginalText  string        `json:"original_text"`
	Status        FindingStatus `json:"status"`
}

// DiffOp is the operation of a DiffSpan.
type DiffOp int

const (
	DiffDelete DiffOp = -1
	DiffEqual  DiffOp = 0
	DiffInsert DiffOp = 1
)

func (o DiffOp) String() string {
	switch o {
	case DiffDelete:
		return "delete"
	case DiffInsert:
		return "insert"
	default:
		return "equal"
	}
}

// DiffSpan is one run of an original-vs-proposed diff.
type DiffSpan struct {
	Op   DiffOp `json:"op"`
	Text string `json:"text"`
}

// Rule is one entry of a review playbook.
type Rule struct {
	ID             string   `json:"id" yaml:"id"`
	Topic          string   `json:"topic" yaml:"topic"`
	Category       string   `json:"category,omitempty" yaml:"category,omitempty"`
	SignalKeywords []string `json:"signal_keywords,omitempty" yaml:"signal_keywords,omitempty"`
	Synonyms       []string `json:"synonyms,omitempty" yaml:"synonyms,omitempty"`
	Guidance       string   `json:"guidance,omitempty" yaml:"guidance,omitempty"`
}

// Playbook is a named rule catalogue.
type Playbook struct {
	Metadata PlaybookMetadata `json:"metadata" yaml:"metadata"`
	Rules    []Rule           `json:"rules" yaml:"rules"`
}

// PlaybookMetadata names a playbook.
type PlaybookMetadata struct {
	Name string `json:"name" yaml:"name"`
}
