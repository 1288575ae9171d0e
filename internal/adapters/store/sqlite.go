// Package store provides DocumentStore adapters.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"github.com/0xcro3dile/redline-go/internal/domain/entities"
	"github.com/0xcro3dile/redline-go/internal/domain/ports"
)

// ErrNotFound is returned for unknown document or finding ids.
var ErrNotFound = ports.ErrNotFound

// SQLiteStore implements ports.DocumentStore on a local SQLite file.
type SQLiteStore struct {
	mu       sync.RWMutex
	db       *sql.DB
	dataPath string
}

// NewSQLiteStore opens (or creates) dataPath/redline.db.
func NewSQLiteStore(dataPath string) (*SQLiteStore, error) {
	if dataPath == "" {
		dataPath = "./data"
	}

	if err := os.MkdirAll(dataPath, 0755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	dbPath := filepath.Join(dataPath, "redline.db")
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	store := &SQLiteStore{
		db:       db,
		dataPath: dataPath,
	}

	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS documents (
		id TEXT PRIMARY KEY,
		filename TEXT NOT NULL,
		timestamp TEXT NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE TABLE IF NOT EXISTS paragraphs (
		document_id TEXT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
		position INTEGER NOT NULL,
		id TEXT NOT NULL,
		text TEXT NOT NULL,
		original_text TEXT NOT NULL DEFAULT '',
		style TEXT NOT NULL,
		outline_level INTEGER NOT NULL DEFAULT 0,
		status TEXT NOT NULL,
		PRIMARY KEY (document_id, id)
	);
	CREATE TABLE IF NOT EXISTS findings (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		document_id TEXT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
		target_id TEXT NOT NULL,
		issue_type TEXT NOT NULL,
		risk_level TEXT NOT NULL,
		reasoning TEXT NOT NULL,
		suggested_text TEXT NOT NULL,
		original_text TEXT NOT NULL,
		status TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_findings_document ON findings(document_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

// SaveDocument inserts or fully replaces a document and its paragraphs.
// An empty ID is filled with a new uuid.
func (s *SQLiteStore) SaveDocument(ctx context.Context, doc *entities.Document) error {
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO documents (id, filename, timestamp) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET filename = excluded.filename, timestamp = excluded.timestamp
	`, doc.ID, doc.Metadata.Filename, doc.Metadata.Timestamp)
	if err != nil {
		return fmt.Errorf("upserting document: %w", err)
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM paragraphs WHERE document_id = ?", doc.ID); err != nil {
		return fmt.Errorf("clearing paragraphs: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO paragraphs (document_id, position, id, text, original_text, style, outline_level, status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("preparing statement: %w", err)
	}
	defer stmt.Close()

	for i, p := range doc.Paragraphs {
		_, err = stmt.ExecContext(ctx,
			doc.ID, i, p.ID, p.Text, p.OriginalText, p.Style, p.OutlineLevel, string(p.Status),
		)
		if err != nil {
			return fmt.Errorf("inserting paragraph %s: %w", p.ID, err)
		}
	}

	return tx.Commit()
}

// GetDocument loads a document with its paragraphs in order.
func (s *SQLiteStore) GetDocument(ctx context.Context, id string) (*entities.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc := &entities.Document{ID: id}
	err := s.db.QueryRowContext(ctx,
		"SELECT filename, timestamp FROM documents WHERE id = ?", id,
	).Scan(&doc.Metadata.Filename, &doc.Metadata.Timestamp)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("document %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("querying document: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, text, original_text, style, outline_level, status
		FROM paragraphs WHERE document_id = ? ORDER BY position
	`, id)
	if err != nil {
		return nil, fmt.Errorf("querying paragraphs: %w", err)
	}
	defer rows.Close()

	doc.Paragraphs = []entities.Paragraph{}
	for rows.Next() {
		var p entities.Paragraph
		var status string
		if err := rows.Scan(&p.ID, &p.Text, &p.OriginalText, &p.Style, &p.OutlineLevel, &status); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		p.Status = entities.ParagraphStatus(status)
		doc.Paragraphs = append(doc.Paragraphs, p)
	}
	return doc, rows.Err()
}

// ListDocuments returns document headers, newest first. Paragraphs are not loaded.
func (s *SQLiteStore) ListDocuments(ctx context.Context) ([]entities.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, filename, timestamp FROM documents ORDER BY created_at DESC, rowid DESC")
	if err != nil {
		return nil, fmt.Errorf("querying documents: %w", err)
	}
	defer rows.Close()

	docs := []entities.Document{}
	for rows.Next() {
		var d entities.Document
		if err := rows.Scan(&d.ID, &d.Metadata.Filename, &d.Metadata.Timestamp); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

// DeleteDocument removes a document together with its paragraphs and findings.
func (s *SQLiteStore) DeleteDocument(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, "DELETE FROM documents WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting document: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("document %s: %w", id, ErrNotFound)
	}
	return nil
}

// SaveFindings inserts or replaces findings. Their document must exist.
func (s *SQLiteStore) SaveFindings(ctx context.Context, findings []entities.Finding) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO findings (id, document_id, target_id, issue_type, risk_level, reasoning, suggested_text, original_text, status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET status = excluded.status, suggested_text = excluded.suggested_text
	`)
	if err != nil {
		return fmt.Errorf("preparing statement: %w", err)
	}
	defer stmt.Close()

	for i := range findings {
		f := &findings[i]
		if f.ID == "" {
			f.ID = uuid.NewString()
		}
		_, err = stmt.ExecContext(ctx,
			f.ID, f.DocumentID, f.TargetID, f.IssueType, string(f.RiskLevel),
			f.Reasoning, f.SuggestedText, f.OriginalText, string(f.Status),
		)
		if err != nil {
			return fmt.Errorf("inserting finding: %w", err)
		}
	}

	return tx.Commit()
}

const findingColumns = `id, document_id, target_id, issue_type, risk_level, reasoning, suggested_text, original_text, status`

type scanner interface {
	Scan(dest ...any) error
}

func scanFinding(row scanner) (*entities.Finding, error) {
	var f entities.Finding
	var risk, status string
	err := row.Scan(&f.ID, &f.DocumentID, &f.TargetID, &f.IssueType, &risk,
		&f.Reasoning, &f.SuggestedText, &f.OriginalText, &status)
	if err != nil {
		return nil, err
	}
	f.RiskLevel = entities.RiskLevel(risk)
	f.Status = entities.FindingStatus(status)
	return &f, nil
}

func (s *SQLiteStore) GetFinding(ctx context.Context, id string) (*entities.Finding, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	f, err := scanFinding(s.db.QueryRowContext(ctx,
		"SELECT "+findingColumns+" FROM findings WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("finding %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("querying finding: %w", err)
	}
	return f, nil
}

// ListFindings returns the findings of a document in the order they were saved.
func (s *SQLiteStore) ListFindings(ctx context.Context, documentID string) ([]entities.Finding, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT "+findingColumns+" FROM findings WHERE document_id = ? ORDER BY seq", documentID)
	if err != nil {
		return nil, fmt.Errorf("querying findings: %w", err)
	}
	defer rows.Close()

	findings := []entities.Finding{}
	for rows.Next() {
		f, err := scanFinding(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		findings = append(findings, *f)
	}
	return findings, rows.Err()
}

// UpdateFinding overwrites the mutable fields of an existing finding.
func (s *SQLiteStore) UpdateFinding(ctx context.Context, f *entities.Finding) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		"UPDATE findings SET status = ?, suggested_text = ? WHERE id = ?",
		string(f.Status), f.SuggestedText, f.ID)
	if err != nil {
		return fmt.Errorf("updating finding: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("finding %s: %w", f.ID, ErrNotFound)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
