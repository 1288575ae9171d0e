// Package config loads runtime settings from the environment and an optional .env file.
package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds everything the server, watcher and CLI need.
type Config struct {
	Addr            string
	DataDir         string
	LogMode         string
	InboxDir        string
	PlaybookPath    string
	OllamaURL       string
	OllamaModel     string
	ExtractorURL    string
	ChunkParagraphs int
	MaxCategories   int
}

// Load reads .env (when present) and then the process environment.
// Variables already set in the environment win over .env values.
func Load() *Config {
	_ = godotenv.Load()
	return FromEnv()
}

// FromEnv builds a Config from the current environment only.
func FromEnv() *Config {
	return &Config{
		Addr:            String("REDLINE_ADDR", ":8080"),
		DataDir:         String("REDLINE_DATA_DIR", "./data"),
		LogMode:         String("REDLINE_LOG_MODE", "dev"),
		InboxDir:        String("REDLINE_INBOX_DIR", ""),
		PlaybookPath:    String("REDLINE_PLAYBOOK", ""),
		OllamaURL:       String("OLLAMA_URL", "http://localhost:11434"),
		OllamaModel:     String("OLLAMA_MODEL", "llama3.2"),
		ExtractorURL:    String("EXTRACTOR_URL", ""),
		ChunkParagraphs: Int("REDLINE_CHUNK_PARAGRAPHS", 8),
		MaxCategories:   Int("REDLINE_MAX_CATEGORIES", 3),
	}
}

func String(name, def string) string {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return def
	}
	return v
}

func Int(name string, def int) int {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}
