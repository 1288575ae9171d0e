package parser

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestServiceParser_Parse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/parse" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if r.Header.Get("X-Filename") != "msa.pdf" {
			t.Errorf("unexpected filename header: %s", r.Header.Get("X-Filename"))
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"text":  "Hello from the extractor",
			"pages": 1,
		})
	}))
	defer server.Close()

	parser := NewServiceParser(server.URL, nil)
	text, err := parser.Parse(context.Background(), []byte("fake pdf"), "msa.pdf")

	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if text != "Hello from the extractor" {
		t.Errorf("unexpected text: %s", text)
	}
}

func TestServiceParser_ServiceError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"error": "parsing failed",
			"text":  "",
		})
	}))
	defer server.Close()

	parser := NewServiceParser(server.URL, nil)
	if _, err := parser.Parse(context.Background(), []byte("bad"), "test.pdf"); err == nil {
		t.Error("should error on parse failure")
	}
}

func TestServiceParser_BadStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer server.Close()

	if _, err := NewServiceParser(server.URL, nil).Parse(context.Background(), []byte("x"), "x.pdf"); err == nil {
		t.Error("should error on non-200")
	}
}

func TestServiceParser_DefaultURL(t *testing.T) {
	parser := NewServiceParser("", nil)
	if parser.serviceURL != "http://localhost:8081" {
		t.Error("should default to localhost:8081")
	}
}

func TestServiceParser_IsServiceHealthy(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
		}
	}))
	defer server.Close()

	if !NewServiceParser(server.URL, nil).IsServiceHealthy(context.Background()) {
		t.Error("should be healthy")
	}
}

func TestServiceParser_UnhealthyService(t *testing.T) {
	if NewServiceParser("http://localhost:99999", nil).IsServiceHealthy(context.Background()) {
		t.Error("should be unhealthy")
	}
}

func TestServiceParser_SendsFormatAndTidiesText(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Content-Type"); got != "application/pdf" {
			t.Errorf("unexpected content type: %s", got)
		}
		if got := r.Header.Get("X-Format"); got != "pdf" {
			t.Errorf("unexpected format header: %s", got)
		}
		if got := r.Header.Get("X-Filename"); got != "MSA.PDF" {
			t.Errorf("filename should drop directories, got %s", got)
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"text":  "1.  Payment\u00a0terms\r\n\r\n\r\n2. Law  ",
			"pages": 2,
		})
	}))
	defer server.Close()

	text, err := NewServiceParser(server.URL+"/", nil).Parse(context.Background(), []byte("%PDF"), "inbox/MSA.PDF")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if text != "1. Payment terms\n\n2. Law" {
		t.Errorf("unexpected text: %q", text)
	}
}

func TestServiceParser_UnknownExtensionAndEmptyInput(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if got := r.Header.Get("Content-Type"); got != "application/octet-stream" {
			t.Errorf("unexpected content type: %s", got)
		}
		if r.Header.Get("X-Format") != "" {
			t.Error("no format header expected without an extension")
		}
		json.NewEncoder(w).Encode(map[string]interface{}{"text": "   "})
	}))
	defer server.Close()

	p := NewServiceParser(server.URL, nil)
	if _, err := p.Parse(context.Background(), nil, "x.pdf"); !errors.Is(err, ErrNoText) {
		t.Errorf("empty input should be ErrNoText, got %v", err)
	}
	if calls != 0 {
		t.Error("empty input should not reach the service")
	}
	if _, err := p.Parse(context.Background(), []byte("x"), "blob"); !errors.Is(err, ErrNoText) {
		t.Errorf("blank extraction should be ErrNoText, got %v", err)
	}
}
