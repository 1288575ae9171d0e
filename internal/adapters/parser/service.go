package parser

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/0xcro3dile/redline-go/internal/infrastructure/logger"
)

// maxServiceResponse bounds the extraction service's reply.
const maxServiceResponse = 16 << 20

// contentTypes maps upload extensions to the media type sent to the service.
var contentTypes = map[string]string{
	".pdf":      "application/pdf",
	".docx":     "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	".html":     "text/html",
	".htm":      "text/html",
	".txt":      "text/plain",
	".md":       "text/markdown",
	".markdown": "text/markdown",
}

// ServiceParser implements ports.DocumentParser by calling an external
// extraction service (POST /parse, GET /health). It is used for unstructured
// sources, mostly PDFs, that the local extractor cannot read.
type ServiceParser struct {
	serviceURL string
	client     *http.Client
	log        *logger.Logger
}

// NewServiceParser creates a parser for the extraction service at serviceURL.
func NewServiceParser(serviceURL string, log *logger.Logger) *ServiceParser {
	if serviceURL == "" {
		serviceURL = "http://localhost:8081"
	}
	return &ServiceParser{
		serviceURL: strings.TrimRight(serviceURL, "/"),
		client: &http.Client{
			Timeout: 60 * time.Second,
		},
		log: logger.OrNop(log).With("comp", "extractor"),
	}
}

// parseResponse is the extraction service response format.
type parseResponse struct {
	Text    string `json:"text"`
	Pages   int    `json:"pages"`
	Library string `json:"library,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Parse sends the raw bytes with the media type and format derived from
// filename, and returns the extracted text tidied the same way as the
// local extractor's output.
func (p *ServiceParser) Parse(ctx context.Context, data []byte, filename string) (string, error) {
	if len(data) == 0 {
		return "", ErrNoText
	}

	ext := strings.ToLower(filepath.Ext(filename))
	contentType, ok := contentTypes[ext]
	if !ok {
		contentType = "application/octet-stream"
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.serviceURL+"/parse", bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("X-Filename", filepath.Base(filename))
	if ext != "" {
		req.Header.Set("X-Format", strings.TrimPrefix(ext, "."))
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("calling extraction service: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxServiceResponse))
	if err != nil {
		return "", fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		if len(body) > 512 {
			body = body[:512]
		}
		return "", fmt.Errorf("extraction service status %d: %s", resp.StatusCode, bytes.TrimSpace(body))
	}

	var result parseResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return "", fmt.Errorf("decoding response: %w", err)
	}
	if result.Error != "" {
		return "", fmt.Errorf("extraction error: %s", result.Error)
	}

	text := tidyLines(result.Text)
	if text == "" {
		return "", ErrNoText
	}
	p.log.Debug("extracted text", "file", filename, "pages", result.Pages, "library", result.Library, "chars", len(text))
	return text, nil
}

func (p *ServiceParser) SupportedFormats() []string {
	return []string{"pdf", "docx", "html", "txt", "md"}
}

// IsServiceHealthy checks if the extraction service is reachable.
func (p *ServiceParser) IsServiceHealthy(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.serviceURL+"/health", nil)
	if err != nil {
		return false
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()

	return resp.StatusCode == http.StatusOK
}
