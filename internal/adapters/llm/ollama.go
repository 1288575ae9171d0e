// Package llm provides the generation service adapter.
package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/0xcro3dile/redline-go/internal/domain/ports"
	"github.com/0xcro3dile/redline-go/internal/infrastructure/logger"
)

// OllamaAdapter implements ports.LLMService against an Ollama-compatible
// /api/generate endpoint.
type OllamaAdapter struct {
	baseURL string
	model   string
	system  string
	client  *http.Client
	log     *logger.Logger
}

// NewOllamaAdapter creates a new adapter. Empty values fall back to a local
// Ollama and llama3.2.
func NewOllamaAdapter(baseURL, model string, log *logger.Logger) *OllamaAdapter {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	if model == "" {
		model = "llama3.2"
	}
	return &OllamaAdapter{
		baseURL: baseURL,
		model:   model,
		client: &http.Client{
			Timeout: 300 * time.Second, // clause reviews stream for a while
		},
		log: logger.OrNop(log).With("comp", "llm", "model", model),
	}
}

// WithSystem sets a system prompt sent with every request.
func (a *OllamaAdapter) WithSystem(system string) *OllamaAdapter {
	a.system = system
	return a
}

type generateRequest struct {
	Model   string         `json:"model"`
	Prompt  string         `json:"prompt"`
	System  string         `json:"system,omitempty"`
	Stream  bool           `json:"stream"`
	Options map[string]any `json:"options,omitempty"`
}

type generateResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
	Error    string `json:"error,omitempty"`
}

func (a *OllamaAdapter) post(ctx context.Context, prompt string, stream bool) (*http.Response, error) {
	body, err := json.Marshal(generateRequest{
		Model:  a.model,
		Prompt: prompt,
		System: a.system,
		Stream: stream,
		// Reviews should be reproducible.
		Options: map[string]any{"temperature": 0},
	})
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling generation service: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		resp.Body.Close()
		return nil, fmt.Errorf("generation service returned status %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}
	return resp, nil
}

// Generate returns the complete response for prompt.
func (a *OllamaAdapter) Generate(ctx context.Context, prompt string) (string, error) {
	resp, err := a.post(ctx, prompt, false)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var out generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decoding response: %w", err)
	}
	if out.Error != "" {
		return "", fmt.Errorf("generation error: %s", out.Error)
	}
	return out.Response, nil
}

// GenerateStream streams newline-delimited JSON chunks as tokens. The channel
// is closed after the final token; a failure mid-stream arrives as a token
// with Error set.
func (a *OllamaAdapter) GenerateStream(ctx context.Context, prompt string) (<-chan ports.StreamToken, error) {
	resp, err := a.post(ctx, prompt, true)
	if err != nil {
		return nil, err
	}

	ch := make(chan ports.StreamToken, 100)

	go func() {
		defer close(ch)
		defer resp.Body.Close()

		send := func(tok ports.StreamToken) bool {
			select {
			case ch <- tok:
				return true
			case <-ctx.Done():
				return false
			}
		}

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 64*1024), 1024*1024)
		for scanner.Scan() {
			if ctx.Err() != nil {
				send(ports.StreamToken{Done: true, Error: ctx.Err()})
				return
			}

			line := scanner.Bytes()
			if len(line) == 0 {
				continue
			}

			var chunk generateResponse
			if err := json.Unmarshal(line, &chunk); err != nil {
				a.log.Debug("skipping malformed stream line", "err", err)
				continue
			}
			if chunk.Error != "" {
				send(ports.StreamToken{Done: true, Error: fmt.Errorf("generation error: %s", chunk.Error)})
				return
			}

			if !send(ports.StreamToken{Content: chunk.Response, Done: chunk.Done}) {
				return
			}
			if chunk.Done {
				return
			}
		}

		if err := scanner.Err(); err != nil {
			send(ports.StreamToken{Done: true, Error: err})
			return
		}
		// Body ended without a done chunk.
		send(ports.StreamToken{Done: true, Error: io.ErrUnexpectedEOF})
	}()

	return ch, nil
}
