// Package store persists screening history locally. Only assessment-level
// fields and content hashes are stored; raw symptom text and prompt text
// never touch disk.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/nku-health/nku-screen/internal/domain"
)

// Record is one persisted screening outcome.
type Record struct {
	ID         int64
	SessionID  string
	Severity   domain.Severity
	Urgency    domain.Urgency
	Triage     domain.TriageCategory
	Provenance domain.Provenance
	// ConcernCount stands in for the concern list itself.
	ConcernCount int
	// PromptHash is the hex SHA-256 of the prompt, enough to correlate
	// repeated screenings without storing patient text.
	PromptHash string
	CreatedAt  time.Time
}

// SQLiteStore implements screening history on a local SQLite file.
type SQLiteStore struct {
	db     *sql.DB
	dbPath string
}

// NewSQLiteStore opens (or creates) the database and schema.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// WAL mode keeps reads cheap while a save is in flight.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set WAL mode: %w", err)
	}

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &SQLiteStore{db: db, dbPath: dbPath}, nil
}

func createSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS screenings (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL,
		severity TEXT NOT NULL,
		urgency TEXT NOT NULL,
		triage TEXT NOT NULL,
		provenance TEXT NOT NULL,
		concern_count INTEGER NOT NULL DEFAULT 0,
		prompt_hash TEXT NOT NULL DEFAULT '',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_screenings_session ON screenings(session_id);
	CREATE INDEX IF NOT EXISTS idx_screenings_created_at ON screenings(created_at);
	`
	_, err := db.Exec(schema)
	return err
}

// scanner is an interface for sql.Row and sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(s scanner) (*Record, error) {
	rec := &Record{}
	var severity, urgency, triage, provenance string

	err := s.Scan(
		&rec.ID, &rec.SessionID, &severity, &urgency, &triage,
		&provenance, &rec.ConcernCount, &rec.PromptHash, &rec.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	rec.Severity = domain.Severity(severity)
	rec.Urgency = domain.Urgency(urgency)
	rec.Triage = domain.TriageCategory(triage)
	rec.Provenance = domain.Provenance(provenance)
	return rec, nil
}

// Save inserts one screening record and fills its ID and CreatedAt.
func (s *SQLiteStore) Save(ctx context.Context, rec *Record) error {
	now := time.Now()
	rec.CreatedAt = now

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO screenings (
			session_id, severity, urgency, triage,
			provenance, concern_count, prompt_hash, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		rec.SessionID,
		string(rec.Severity),
		string(rec.Urgency),
		string(rec.Triage),
		string(rec.Provenance),
		rec.ConcernCount,
		rec.PromptHash,
		now,
	)
	if err != nil {
		return fmt.Errorf("failed to insert: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get insert ID: %w", err)
	}
	rec.ID = id
	return nil
}

// ListRecent returns the newest records first.
func (s *SQLiteStore) ListRecent(ctx context.Context, limit int) ([]*Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, severity, urgency, triage,
			provenance, concern_count, prompt_hash, created_at
		FROM screenings
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query: %w", err)
	}
	defer rows.Close()

	var result []*Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		result = append(result, rec)
	}
	return result, rows.Err()
}

// Count returns the total number of stored screenings.
func (s *SQLiteStore) Count(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM screenings").Scan(&count)
	return count, err
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
