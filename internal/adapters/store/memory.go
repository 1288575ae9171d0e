package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/0xcro3dile/redline-go/internal/domain/entities"
)

// MemoryStore is an in-process DocumentStore for tests and ephemeral runs.
type MemoryStore struct {
	mu       sync.RWMutex
	docs     map[string]*entities.Document
	docOrder []string
	findings map[string]entities.Finding // findingID -> finding
	byDoc    map[string][]string         // docID -> []findingID
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		docs:     make(map[string]*entities.Document),
		findings: make(map[string]entities.Finding),
		byDoc:    make(map[string][]string),
	}
}

func (s *MemoryStore) SaveDocument(ctx context.Context, doc *entities.Document) error {
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.docs[doc.ID]; !ok {
		s.docOrder = append(s.docOrder, doc.ID)
	}
	s.docs[doc.ID] = doc.Clone()
	return nil
}

func (s *MemoryStore) GetDocument(ctx context.Context, id string) (*entities.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, ok := s.docs[id]
	if !ok {
		return nil, fmt.Errorf("document %s: %w", id, ErrNotFound)
	}
	return doc.Clone(), nil
}

// ListDocuments returns document headers, newest first.
func (s *MemoryStore) ListDocuments(ctx context.Context) ([]entities.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]entities.Document, 0, len(s.docOrder))
	for i := len(s.docOrder) - 1; i >= 0; i-- {
		d := s.docs[s.docOrder[i]]
		out = append(out, entities.Document{ID: d.ID, Metadata: d.Metadata})
	}
	return out, nil
}

func (s *MemoryStore) DeleteDocument(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.docs[id]; !ok {
		return fmt.Errorf("document %s: %w", id, ErrNotFound)
	}
	delete(s.docs, id)
	for i, d := range s.docOrder {
		if d == id {
			s.docOrder = append(s.docOrder[:i], s.docOrder[i+1:]...)
			break
		}
	}
	for _, fid := range s.byDoc[id] {
		delete(s.findings, fid)
	}
	delete(s.byDoc, id)
	return nil
}

func (s *MemoryStore) SaveFindings(ctx context.Context, findings []entities.Finding) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range findings {
		f := &findings[i]
		if f.ID == "" {
			f.ID = uuid.NewString()
		}
		if _, ok := s.docs[f.DocumentID]; !ok {
			return fmt.Errorf("document %s: %w", f.DocumentID, ErrNotFound)
		}
		if _, exists := s.findings[f.ID]; !exists {
			s.byDoc[f.DocumentID] = append(s.byDoc[f.DocumentID], f.ID)
		}
		s.findings[f.ID] = *f
	}
	return nil
}

func (s *MemoryStore) GetFinding(ctx context.Context, id string) (*entities.Finding, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	f, ok := s.findings[id]
	if !ok {
		return nil, fmt.Errorf("finding %s: %w", id, ErrNotFound)
	}
	return &f, nil
}

func (s *MemoryStore) ListFindings(ctx context.Context, documentID string) ([]entities.Finding, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]entities.Finding, 0, len(s.byDoc[documentID]))
	for _, id := range s.byDoc[documentID] {
		out = append(out, s.findings[id])
	}
	return out, nil
}

func (s *MemoryStore) UpdateFinding(ctx context.Context, f *entities.Finding) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.findings[f.ID]
	if !ok {
		return fmt.Errorf("finding %s: %w", f.ID, ErrNotFound)
	}
	cur.Status = f.Status
	cur.SuggestedText = f.SuggestedText
	s.findings[f.ID] = cur
	return nil
}
