// Package irparse reads the tagged clause format returned by the generation
// service and maps it into review findings.
//
// A response is a sequence of blocks:
//
//	<<CLAUSE id="docx_para_3">>
//	[RISK] RED
//	[ISSUE] Uncapped liability
//	[ORIGINAL] ...
//	[REASONING] ...
//	[SUGGESTED_REWRITE] ...
//	<<END_CLAUSE>>
//
// Parsing never fails. Blocks without a valid id header are skipped, blocks
// without an end marker are recovered to the end of the segment and flagged.
package irparse

import (
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/0xcro3dile/redline-go/internal/domain/entities"
	"github.com/0xcro3dile/redline-go/internal/infrastructure/logger"
)

const (
	endMarker = "<<END_CLAUSE>>"

	// MissingEndMarker is the ParseError of a block recovered without <<END_CLAUSE>>.
	MissingEndMarker = "Missing <<END_CLAUSE>> tag. Content recovered until end of block."

	defaultIssue     = "General Issue"
	defaultRisk      = "YELLOW"
	defaultReasoning = "No reasoning provided."
)

var (
	blockStart    = regexp.MustCompile(`<<CLAUSE\s+`)
	idHeader      = regexp.MustCompile(`^id="([^"]+)">>`)
	sectionHeader = regexp.MustCompile(`\[(RISK|ISSUE|ORIGINAL|REASONING|SUGGESTED_REWRITE)\]`)
)

// Parser splits raw responses into clause blocks.
type Parser struct {
	log *logger.Logger
}

// New creates a parser. log may be nil.
func New(log *logger.Logger) *Parser {
	return &Parser{log: logger.OrNop(log).With("comp", "irparse")}
}

// Parse returns the clause blocks of raw in order of appearance.
func (p *Parser) Parse(raw string) []entities.ClauseBlock {
	clean := strings.ReplaceAll(raw, "\r\n", "\n")

	segments := blockStart.Split(clean, -1)
	var blocks []entities.ClauseBlock
	// segments[0] is preamble before the first block.
	for i := 1; i < len(segments); i++ {
		seg := segments[i]

		m := idHeader.FindStringSubmatch(seg)
		if m == nil {
			p.log.Warn("clause block without a valid id header, skipping", "segment", i)
			continue
		}

		content := seg[len(m[0]):]
		parseError := ""
		if end := strings.Index(content, endMarker); end >= 0 {
			content = content[:end]
		} else {
			parseError = MissingEndMarker
			p.log.Warn("clause block missing end marker, recovered", "id", m[1])
		}

		blocks = append(blocks, entities.ClauseBlock{
			ID:         m[1],
			Sections:   withDefaults(extractSections(content)),
			ParseError: parseError,
		})
	}
	return blocks
}

// Parse parses raw without logging.
func Parse(raw string) []entities.ClauseBlock {
	return New(nil).Parse(raw)
}

// extractSections maps each recognised header to the trimmed text up to the
// next recognised header. A repeated header keeps its last body. Unrecognised
// bracket tokens are ordinary text.
func extractSections(content string) map[string]string {
	sections := make(map[string]string)
	locs := sectionHeader.FindAllStringSubmatchIndex(content, -1)
	for i, loc := range locs {
		name := content[loc[2]:loc[3]]
		end := len(content)
		if i+1 < len(locs) {
			end = locs[i+1][0]
		}
		sections[name] = strings.TrimSpace(content[loc[1]:end])
	}
	return sections
}

func withDefaults(sections map[string]string) map[string]string {
	defaults := map[string]string{
		entities.SectionIssue:            defaultIssue,
		entities.SectionRisk:             defaultRisk,
		entities.SectionReasoning:        defaultReasoning,
		entities.SectionOriginal:         "",
		entities.SectionSuggestedRewrite: "",
	}
	for name, def := range defaults {
		if sections[name] == "" {
			sections[name] = def
		}
	}
	return sections
}

// NormalizeRisk maps free-form severity text onto the three risk levels by
// substring: red/high/critical, then green/low, else yellow. The word "yellow"
// itself is removed first since it contains "low"; a bare substring match
// would send the default YELLOW to GREEN, so this step is intentional.
func NormalizeRisk(s string) entities.RiskLevel {
	r := strings.ReplaceAll(strings.ToLower(s), "yellow", "")
	switch {
	case strings.Contains(r, "red"), strings.Contains(r, "high"), strings.Contains(r, "critical"):
		return entities.RiskRed
	case strings.Contains(r, "green"), strings.Contains(r, "low"):
		return entities.RiskGreen
	default:
		return entities.RiskYellow
	}
}

// ToFindings maps blocks to open findings for documentID. Recovered blocks
// carry a visible warning in their reasoning.
func ToFindings(blocks []entities.ClauseBlock, documentID string) []entities.Finding {
	findings := make([]entities.Finding, 0, len(blocks))
	for _, b := range blocks {
		reasoning := b.Sections[entities.SectionReasoning]
		if b.ParseError != "" {
			reasoning += "\n\n[SYSTEM WARNING: " + b.ParseError + "]"
		}
		findings = append(findings, entities.Finding{
			ID:            uuid.NewString(),
			DocumentID:    documentID,
			TargetID:      b.ID,
			IssueType:     b.Sections[entities.SectionIssue],
			RiskLevel:     NormalizeRisk(b.Sections[entities.SectionRisk]),
			Reasoning:     reasoning,
			SuggestedText: b.Sections[entities.SectionSuggestedRewrite],
			OriginalText:  b.Sections[entities.SectionOriginal],
			Status:        entities.FindingOpen,
		})
	}
	return findings
}
