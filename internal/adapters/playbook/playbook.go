// Package playbook loads review rule catalogues from YAML or JSON files.
package playbook

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/0xcro3dile/redline-go/internal/domain/entities"
	"github.com/0xcro3dile/redline-go/internal/infrastructure/logger"
)

//go:embed default.yaml
var defaultPlaybook []byte

// Default returns the built-in playbook used when no file is configured.
func Default() *entities.Playbook {
	pb, err := Parse(defaultPlaybook, ".yaml")
	if err != nil {
		panic(fmt.Sprintf("built-in playbook: %v", err))
	}
	return pb
}

// LoadFile reads a playbook from disk. The extension selects the decoder.
func LoadFile(path string) (*entities.Playbook, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading playbook %s: %w", path, err)
	}
	pb, err := Parse(data, filepath.Ext(path))
	if err != nil {
		return nil, fmt.Errorf("playbook %s: %w", path, err)
	}
	return pb, nil
}

// Parse decodes a playbook. ext is ".json" for JSON; anything else is YAML.
func Parse(data []byte, ext string) (*entities.Playbook, error) {
	var pb entities.Playbook
	switch strings.ToLower(ext) {
	case ".json":
		if err := json.Unmarshal(data, &pb); err != nil {
			return nil, fmt.Errorf("parsing json: %w", err)
		}
	default:
		if err := yaml.Unmarshal(data, &pb); err != nil {
			return nil, fmt.Errorf("parsing yaml: %w", err)
		}
	}
	if err := Validate(&pb); err != nil {
		return nil, err
	}
	return &pb, nil
}

// Validate checks rule ids are present and unique.
func Validate(pb *entities.Playbook) error {
	seen := make(map[string]bool, len(pb.Rules))
	for i, r := range pb.Rules {
		if strings.TrimSpace(r.ID) == "" {
			return fmt.Errorf("rule %d: id is required", i)
		}
		if seen[r.ID] {
			return fmt.Errorf("rule %q: duplicate id", r.ID)
		}
		seen[r.ID] = true
	}
	return nil
}

// Store holds the active playbook and implements ports.RuleSource.
type Store struct {
	mu       sync.RWMutex
	path     string
	playbook *entities.Playbook
	log      *logger.Logger
}

// NewStore loads path, or the built-in playbook when path is empty.
func NewStore(path string, log *logger.Logger) (*Store, error) {
	s := &Store{path: path, log: logger.OrNop(log).With("comp", "playbook")}
	if path == "" {
		s.playbook = Default()
		return s, nil
	}
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// NewStaticStore wraps an in-memory playbook.
func NewStaticStore(pb *entities.Playbook) *Store {
	return &Store{playbook: pb, log: logger.Nop()}
}

// Reload re-reads the backing file. On error the previous playbook stays active.
func (s *Store) Reload() error {
	if s.path == "" {
		return nil
	}
	pb, err := LoadFile(s.path)
	if err != nil {
		s.log.Warn("playbook reload failed, keeping previous", "path", s.path, "err", err)
		return err
	}

	s.mu.Lock()
	s.playbook = pb
	s.mu.Unlock()

	s.log.Info("playbook loaded", "name", pb.Metadata.Name, "rules", len(pb.Rules))
	return nil
}

// Path is the backing file, empty for built-in or static playbooks.
func (s *Store) Path() string {
	return s.path
}

func (s *Store) Name() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.playbook == nil {
		return ""
	}
	return s.playbook.Metadata.Name
}

// Rules returns a copy of the active rules.
func (s *Store) Rules() []entities.Rule {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.playbook == nil {
		return nil
	}
	return append([]entities.Rule(nil), s.playbook.Rules...)
}
