package usecases

import (
	"context"
	"errors"
	"sync"

	"github.com/0xcro3dile/redline-go/internal/domain/entities"
	"github.com/0xcro3dile/redline-go/internal/domain/ports"
)

// mockDecoder implements ports.DocumentDecoder for testing
type mockDecoder struct {
	decodeFn func(data []byte, filename string) (*entities.Document, error)
}

func (m *mockDecoder) Decode(ctx context.Context, data []byte, filename string) (*entities.Document, error) {
	if m.decodeFn != nil {
		return m.decodeFn(data, filename)
	}
	return &entities.Document{
		Metadata: entities.NewMetadata(filename),
		Paragraphs: []entities.Paragraph{
			{ID: "docx_para_0", Text: "Payment within 30 days.", OriginalText: "Payment within 30 days.", Style: "Normal", Status: entities.StatusOriginal},
		},
	}, nil
}

// mockParser implements ports.DocumentParser for testing
type mockParser struct {
	text string
	err  error
}

func (m *mockParser) Parse(ctx context.Context, data []byte, filename string) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	if m.text != "" {
		return m.text, nil
	}
	return string(data), nil
}

func (m *mockParser) SupportedFormats() []string { return []string{"txt"} }

// mockLLM implements ports.LLMService for testing. respond maps a prompt to
// the streamed chunks; a non-nil streamErr is sent after them.
type mockLLM struct {
	mu        sync.Mutex
	prompts   []string
	respond   func(prompt string) []string
	streamErr error
	openErr   error
}

func (m *mockLLM) Generate(ctx context.Context, prompt string) (string, error) {
	return "", errors.New("not used")
}

func (m *mockLLM) GenerateStream(ctx context.Context, prompt string) (<-chan ports.StreamToken, error) {
	m.mu.Lock()
	m.prompts = append(m.prompts, prompt)
	m.mu.Unlock()

	if m.openErr != nil {
		return nil, m.openErr
	}

	var parts []string
	if m.respond != nil {
		parts = m.respond(prompt)
	}
	ch := make(chan ports.StreamToken, len(parts)+1)
	for _, p := range parts {
		ch <- ports.StreamToken{Content: p}
	}
	if m.streamErr != nil {
		ch <- ports.StreamToken{Done: true, Error: m.streamErr}
	} else {
		ch <- ports.StreamToken{Done: true}
	}
	close(ch)
	return ch, nil
}

// staticRules implements ports.RuleSource for testing
type staticRules []entities.Rule

func (r staticRules) Rules() []entities.Rule { return r }

var testRules = staticRules{
	{ID: "PAY-1", Topic: "Payment terms", Category: "PAYMENT", SignalKeywords: []string{"payment", "invoice"}, Guidance: "Net 60 at most."},
	{ID: "LIAB-1", Topic: "Liability cap", Category: "LIABILITY", SignalKeywords: []string{"liability"}, Synonyms: []string{"indemnify"}, Guidance: "Cap at fees paid."},
	{ID: "LAW-1", Topic: "Governing law", Category: "LAW", SignalKeywords: []string{"governed"}, Guidance: "Delaware."},
}
