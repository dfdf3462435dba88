// Package docmeta persists per-document ingestion records in SQLite.
// The vector backend stores chunk payloads; this store remembers how
// each document was ingested so listings and re-ingestion have the
// original parameters.
package docmeta

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	_ "modernc.org/sqlite"

	qerr "github.com/quarry-search/quarry/internal/errors"
)

const schema = `
CREATE TABLE IF NOT EXISTS documents (
	id          TEXT PRIMARY KEY,
	filename    TEXT NOT NULL,
	metadata    TEXT NOT NULL DEFAULT '{}',
	strategy    TEXT NOT NULL,
	chunk_size  INTEGER NOT NULL,
	overlap     INTEGER NOT NULL,
	chunk_count INTEGER NOT NULL,
	created_at  TEXT NOT NULL
);
`

// Record describes one ingested document.
type Record struct {
	ID         string         `json:"id"`
	Filename   string         `json:"filename"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Strategy   string         `json:"strategy"`
	ChunkSize  int            `json:"chunk_size"`
	Overlap    int            `json:"overlap"`
	ChunkCount int            `json:"chunk_count"`
	CreatedAt  time.Time      `json:"created_at"`
}

// Store is a SQLite-backed document record store.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the store at path. Use ":memory:" for
// an ephemeral store.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, qerr.Storage("failed to open metadata store", err)
	}
	// modernc sqlite serializes writes; a single connection avoids
	// SQLITE_BUSY under concurrent ingests.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, qerr.Storage("failed to initialize metadata schema", err)
	}
	return &Store{db: db}, nil
}

// Save inserts or replaces the record.
func (s *Store) Save(ctx context.Context, rec Record) error {
	meta, err := json.Marshal(rec.Metadata)
	if err != nil {
		return qerr.Storage("failed to encode document metadata", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO documents
			(id, filename, metadata, strategy, chunk_size, overlap, chunk_count, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Filename, string(meta), rec.Strategy,
		rec.ChunkSize, rec.Overlap, rec.ChunkCount,
		rec.CreatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return qerr.Storage("failed to save document record", err).WithDetail("document_id", rec.ID)
	}
	return nil
}

// Get returns the record for id, or a NOT_FOUND error.
func (s *Store) Get(ctx context.Context, id string) (*Record, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, filename, metadata, strategy, chunk_size, overlap, chunk_count, created_at
		FROM documents WHERE id = ?`, id)

	rec, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return nil, qerr.NotFound("document not found", nil).WithDetail("document_id", id)
	}
	if err != nil {
		return nil, qerr.Storage("failed to read document record", err)
	}
	return rec, nil
}

// List returns all records, newest first.
func (s *Store) List(ctx context.Context) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, filename, metadata, strategy, chunk_size, overlap, chunk_count, created_at
		FROM documents ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, qerr.Storage("failed to list document records", err)
	}
	defer func() { _ = rows.Close() }()

	records := []Record{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, qerr.Storage("failed to read document record", err)
		}
		records = append(records, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, qerr.Storage("failed to list document records", err)
	}
	return records, nil
}

// Delete removes the record for id. Deleting an absent record is a
// no-op.
func (s *Store) Delete(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, id); err != nil {
		return qerr.Storage("failed to delete document record", err).WithDetail("document_id", id)
	}
	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*Record, error) {
	var rec Record
	var meta, created string
	if err := row.Scan(&rec.ID, &rec.Filename, &meta, &rec.Strategy,
		&rec.ChunkSize, &rec.Overlap, &rec.ChunkCount, &created); err != nil {
		return nil, err
	}
	if meta != "" && meta != "null" {
		if err := json.Unmarshal([]byte(meta), &rec.Metadata); err != nil {
			return nil, err
		}
	}
	ts, err := time.Parse(time.RFC3339Nano, created)
	if err != nil {
		return nil, err
	}
	rec.CreatedAt = ts
	return &rec, nil
}
