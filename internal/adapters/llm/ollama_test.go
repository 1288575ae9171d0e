package llm

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestOllamaAdapter_Generate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		var req generateRequest
		json.NewDecoder(r.Body).Decode(&req)
		if req.Stream || req.Model != "test-model" || req.System != "be strict" {
			t.Errorf("unexpected request: %+v", req)
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"response": `<<CLAUSE id="p1">>[ISSUE] x<<END_CLAUSE>>`,
			"done":     true,
		})
	}))
	defer server.Close()

	adapter := NewOllamaAdapter(server.URL, "test-model", nil).WithSystem("be strict")
	resp, err := adapter.Generate(context.Background(), "review this")

	if err != nil {
		t.Fatalf("generate failed: %v", err)
	}
	if !strings.HasPrefix(resp, "<<CLAUSE") {
		t.Errorf("unexpected response: %s", resp)
	}
}

func TestOllamaAdapter_GenerateStream(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"response":"<<CLAUSE","done":false}` + "\n"))
		w.Write([]byte("not json\n"))
		w.Write([]byte(`{"response":" id=\"a\">>","done":false}` + "\n"))
		w.Write([]byte(`{"response":"","done":true}` + "\n"))
	}))
	defer server.Close()

	adapter := NewOllamaAdapter(server.URL, "test", nil)
	ch, err := adapter.GenerateStream(context.Background(), "test")
	if err != nil {
		t.Fatalf("stream failed: %v", err)
	}

	var b strings.Builder
	for token := range ch {
		if token.Error != nil {
			t.Fatalf("unexpected stream error: %v", token.Error)
		}
		b.WriteString(token.Content)
	}

	if b.String() != `<<CLAUSE id="a">>` {
		t.Errorf("unexpected stream content: %q", b.String())
	}
}

func TestOllamaAdapter_StreamTruncated(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"response":"partial","done":false}` + "\n"))
	}))
	defer server.Close()

	ch, err := NewOllamaAdapter(server.URL, "test", nil).GenerateStream(context.Background(), "test")
	if err != nil {
		t.Fatalf("stream failed: %v", err)
	}

	var content string
	var last error
	for token := range ch {
		content += token.Content
		if token.Error != nil {
			last = token.Error
		}
	}
	if content != "partial" {
		t.Errorf("partial content should be delivered, got %q", content)
	}
	if !errors.Is(last, io.ErrUnexpectedEOF) {
		t.Errorf("expected unexpected EOF, got %v", last)
	}
}

func TestOllamaAdapter_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer server.Close()

	adapter := NewOllamaAdapter(server.URL, "test", nil)
	_, err := adapter.Generate(context.Background(), "test")

	if err == nil || !strings.Contains(err.Error(), "404") {
		t.Errorf("should error on 404, got %v", err)
	}
	if _, err := adapter.GenerateStream(context.Background(), "test"); err == nil {
		t.Error("stream should error on 404")
	}
}

func TestOllamaAdapter_DefaultValues(t *testing.T) {
	adapter := NewOllamaAdapter("", "", nil)
	if adapter.baseURL != "http://localhost:11434" {
		t.Error("should default to localhost")
	}
	if adapter.model != "llama3.2" {
		t.Error("should default to llama3.2")
	}
}
