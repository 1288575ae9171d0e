package usecases

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/0xcro3dile/redline-go/internal/domain/entities"
	"github.com/0xcro3dile/redline-go/internal/domain/irparse"
	"github.com/0xcro3dile/redline-go/internal/domain/ports"
	"github.com/0xcro3dile/redline-go/internal/domain/prefilter"
	"github.com/0xcro3dile/redline-go/internal/domain/textdiff"
	"github.com/0xcro3dile/redline-go/internal/infrastructure/logger"
)

var (
	// ErrFindingNotFound means the finding id is unknown.
	ErrFindingNotFound = errors.New("finding not found")
	// ErrFindingResolved means the finding was already accepted or rejected.
	ErrFindingResolved = errors.New("finding already resolved")
	// ErrNothingToApply means an accept had neither a suggestion nor edited text.
	ErrNothingToApply = errors.New("finding has no text to apply")
	// ErrTargetMissing means the finding points at a paragraph the document lacks.
	ErrTargetMissing = errors.New("target paragraph not in document")
)

// fallbackRuleCount is how many rules are sent when no category scores.
const fallbackRuleCount = 5

// ReviewConfig tunes ReviewUseCase.
type ReviewConfig struct {
	ChunkParagraphs int // paragraphs per generation request
	MaxCategories   int // categories kept per chunk
	Concurrency     int // chunks reviewed in parallel
}

// DefaultReviewConfig returns the defaults used by the server and CLI.
func DefaultReviewConfig() ReviewConfig {
	return ReviewConfig{
		ChunkParagraphs: DefaultChunkParagraphs,
		MaxCategories:   3,
		Concurrency:     2,
	}
}

// ReviewUseCase runs playbook reviews through the generation service and
// handles the accept/reject workflow for the resulting findings.
type ReviewUseCase struct {
	llm    ports.LLMService
	rules  ports.RuleSource
	store  ports.DocumentStore
	parser *irparse.Parser
	differ *textdiff.Engine
	cfg    ReviewConfig
	log    *logger.Logger

	onChange func(*entities.Document)
}

// NewReviewUseCase wires the review workflow.
func NewReviewUseCase(
	llm ports.LLMService,
	rules ports.RuleSource,
	store ports.DocumentStore,
	cfg ReviewConfig,
	log *logger.Logger,
) *ReviewUseCase {
	def := DefaultReviewConfig()
	if cfg.ChunkParagraphs <= 0 {
		cfg.ChunkParagraphs = def.ChunkParagraphs
	}
	if cfg.MaxCategories <= 0 {
		cfg.MaxCategories = def.MaxCategories
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = def.Concurrency
	}
	log = logger.OrNop(log).With("comp", "review")
	return &ReviewUseCase{
		llm:    llm,
		rules:  rules,
		store:  store,
		parser: irparse.New(log),
		differ: textdiff.New(log),
		cfg:    cfg,
		log:    log,
	}
}

// OnDocumentChange registers a callback invoked after Accept rewrites a document.
func (uc *ReviewUseCase) OnDocumentChange(fn func(*entities.Document)) {
	uc.onChange = fn
}

// Review sends every chunk of the document to the generation service and
// stores the parsed findings. Findings come back in chunk order.
func (uc *ReviewUseCase) Review(ctx context.Context, docID string) ([]entities.Finding, error) {
	doc, err := uc.document(ctx, docID)
	if err != nil {
		return nil, err
	}

	chunks := ChunkParagraphs(doc, uc.cfg.ChunkParagraphs)
	results := make([][]entities.Finding, len(chunks))
	rules := uc.rules.Rules()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(uc.cfg.Concurrency)
	for i, chunk := range chunks {
		i, chunk := i, chunk
		g.Go(func() error {
			raw, err := uc.generate(gctx, chunk, rules)
			if err != nil {
				return fmt.Errorf("chunk %d: %w", chunk.Index, err)
			}
			results[i] = irparse.ToFindings(uc.parser.Parse(raw), doc.ID)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var findings []entities.Finding
	for _, r := range results {
		findings = append(findings, r...)
	}
	if err := uc.persist(ctx, doc, findings); err != nil {
		return nil, err
	}

	uc.log.Info("review complete", "doc", doc.ID, "chunks", len(chunks), "findings", len(findings))
	return findings, nil
}

// ParseResponse turns an externally produced response into stored findings.
func (uc *ReviewUseCase) ParseResponse(ctx context.Context, docID, raw string) ([]entities.Finding, error) {
	doc, err := uc.document(ctx, docID)
	if err != nil {
		return nil, err
	}

	findings := irparse.ToFindings(uc.parser.Parse(raw), doc.ID)
	if err := uc.persist(ctx, doc, findings); err != nil {
		return nil, err
	}
	return findings, nil
}

// Findings lists the stored findings of a document.
func (uc *ReviewUseCase) Findings(ctx context.Context, docID string) ([]entities.Finding, error) {
	if _, err := uc.document(ctx, docID); err != nil {
		return nil, err
	}
	return uc.store.ListFindings(ctx, docID)
}

// AcceptResult is what Accept changed.
type AcceptResult struct {
	Finding   entities.Finding    `json:"finding"`
	Paragraph entities.Paragraph  `json:"paragraph"`
	Diff      []entities.DiffSpan `json:"diff"`
}

// Accept applies the finding's suggestion, or editedText when non-empty, to
// the target paragraph and resolves the finding.
func (uc *ReviewUseCase) Accept(ctx context.Context, findingID, editedText string) (*AcceptResult, error) {
	f, err := uc.openFinding(ctx, findingID)
	if err != nil {
		return nil, err
	}

	text := f.SuggestedText
	if strings.TrimSpace(editedText) != "" {
		text = editedText
	}
	if text == "" {
		return nil, ErrNothingToApply
	}

	doc, err := uc.document(ctx, f.DocumentID)
	if err != nil {
		return nil, err
	}
	if !doc.ApplyPatch(f.TargetID, text) {
		return nil, fmt.Errorf("%w: %s", ErrTargetMissing, f.TargetID)
	}
	if err := uc.store.SaveDocument(ctx, doc); err != nil {
		return nil, fmt.Errorf("saving document: %w", err)
	}

	f.Status = entities.FindingResolved
	if err := uc.store.UpdateFinding(ctx, f); err != nil {
		return nil, fmt.Errorf("updating finding: %w", err)
	}

	p, _ := doc.Paragraph(f.TargetID)
	if uc.onChange != nil {
		uc.onChange(doc)
	}

	uc.log.Info("finding accepted", "finding", f.ID, "target", f.TargetID, "edited", text != f.SuggestedText)
	return &AcceptResult{
		Finding:   *f,
		Paragraph: *p,
		Diff:      uc.differ.Diff(p.OriginalText, p.Text),
	}, nil
}

// Reject resolves the finding without touching the document.
func (uc *ReviewUseCase) Reject(ctx context.Context, findingID string) (*entities.Finding, error) {
	f, err := uc.openFinding(ctx, findingID)
	if err != nil {
		return nil, err
	}
	f.Status = entities.FindingResolved
	if err := uc.store.UpdateFinding(ctx, f); err != nil {
		return nil, fmt.Errorf("updating finding: %w", err)
	}
	uc.log.Info("finding rejected", "finding", f.ID)
	return f, nil
}

// Diff renders the finding's original text against its suggestion.
func (uc *ReviewUseCase) Diff(ctx context.Context, findingID string) ([]entities.DiffSpan, error) {
	f, err := uc.finding(ctx, findingID)
	if err != nil {
		return nil, err
	}
	return uc.differ.Diff(f.OriginalText, f.SuggestedText), nil
}

func (uc *ReviewUseCase) generate(ctx context.Context, chunk Chunk, rules []entities.Rule) (string, error) {
	selected := prefilter.SelectRules(prefilter.Rank(chunk.Text, rules), rules, uc.cfg.MaxCategories)
	if len(selected) == 0 {
		selected = rules
		if len(selected) > fallbackRuleCount {
			selected = selected[:fallbackRuleCount]
		}
	}

	stream, err := uc.llm.GenerateStream(ctx, BuildReviewPrompt(chunk, selected))
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	for tok := range stream {
		if tok.Error != nil {
			if sb.Len() == 0 {
				return "", tok.Error
			}
			// Keep what arrived; the parser recovers unterminated blocks.
			uc.log.Warn("generation stream interrupted", "chunk", chunk.Index, "received", sb.Len(), "err", tok.Error)
			break
		}
		sb.WriteString(tok.Content)
	}
	return sb.String(), nil
}

// persist fills missing original text from the document and stores findings.
func (uc *ReviewUseCase) persist(ctx context.Context, doc *entities.Document, findings []entities.Finding) error {
	for i := range findings {
		if findings[i].OriginalText != "" {
			continue
		}
		if p, ok := doc.Paragraph(findings[i].TargetID); ok {
			findings[i].OriginalText = p.Text
		} else {
			uc.log.Warn("finding targets unknown paragraph", "doc", doc.ID, "target", findings[i].TargetID)
		}
	}
	if len(findings) == 0 {
		return nil
	}
	if err := uc.store.SaveFindings(ctx, findings); err != nil {
		return fmt.Errorf("saving findings: %w", err)
	}
	return nil
}

func (uc *ReviewUseCase) document(ctx context.Context, id string) (*entities.Document, error) {
	doc, err := uc.store.GetDocument(ctx, id)
	if errors.Is(err, ports.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrNoDocument, id)
	}
	return doc, err
}

func (uc *ReviewUseCase) finding(ctx context.Context, id string) (*entities.Finding, error) {
	f, err := uc.store.GetFinding(ctx, id)
	if errors.Is(err, ports.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrFindingNotFound, id)
	}
	return f, err
}

func (uc *ReviewUseCase) openFinding(ctx context.Context, id string) (*entities.Finding, error) {
	f, err := uc.finding(ctx, id)
	if err != nil {
		return nil, err
	}
	if f.Status == entities.FindingResolved {
		return nil, fmt.Errorf("%w: %s", ErrFindingResolved, id)
	}
	return f, nil
}

// BuildReviewPrompt renders the instructions, candidate rules and chunk text.
func BuildReviewPrompt(chunk Chunk, rules []entities.Rule) string {
	var sb strings.Builder
	sb.WriteString("You are reviewing a contract against a playbook. ")
	sb.WriteString("For every paragraph that conflicts with a rule, emit one block:\n\n")
	sb.WriteString("<<CLAUSE id=\"<paragraph id>\">>\n")
	sb.WriteString("[RISK] RED, YELLOW or GREEN\n")
	sb.WriteString("[ISSUE] short issue type\n")
	sb.WriteString("[ORIGINAL] the paragraph text\n")
	sb.WriteString("[REASONING] why it conflicts\n")
	sb.WriteString("[SUGGESTED_REWRITE] replacement text\n")
	sb.WriteString("<<END_CLAUSE>>\n\n")
	sb.WriteString("Use the paragraph ids shown in brackets. Emit nothing for compliant paragraphs.\n\n")

	sb.WriteString("Rules:\n")
	for _, r := range rules {
		fmt.Fprintf(&sb, "- %s (%s): %s", r.ID, r.Topic, r.Guidance)
		sb.WriteString("\n")
	}

	sb.WriteString("\nContract:\n")
	sb.WriteString(chunk.Text)
	return sb.String()
}
