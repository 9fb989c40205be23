// Package storage persists source metadata between runs. Each record is the
// minimum a locked source needs: identity, display name, backend type and
// the opaque encrypted credentials blob.
package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

const (
	// DBFileName is the metadata database filename.
	DBFileName = "sources.db"

	// MinDiskSpaceBytes is the minimum free space required before writes.
	MinDiskSpaceBytes = 10 * 1024 * 1024

	fileMode = 0600
	dirMode  = 0700
)

var (
	ErrRecordNotFound = errors.New("storage: source record not found")
)

// Record is the persisted form of a source.
type Record struct {
	ID          string
	Name        string
	Type        string
	Credentials []byte
	Position    int

	// InitRemote marks a source whose backing store must be created on
	// first unlock. Cleared once the store exists.
	InitRemote bool
}

// Store is a SQLite-backed metadata store.
type Store struct {
	db   *sql.DB
	path string
}

// Open opens (creating if necessary) the metadata store in the given
// directory.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, dirMode); err != nil {
		return nil, fmt.Errorf("storage: failed to create directory: %w", err)
	}

	dbPath := filepath.Join(dir, DBFileName)
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("storage: failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS sources (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			type TEXT NOT NULL,
			credentials BLOB,
			position INTEGER NOT NULL DEFAULT 0,
			init_remote INTEGER NOT NULL DEFAULT 0,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("storage: failed to create tables: %w", err)
	}

	if err := os.Chmod(dbPath, fileMode); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage: failed to set database permissions: %w", err)
	}

	return &Store{db: db, path: dir}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Save inserts or updates a source record.
func (s *Store) Save(rec Record) error {
	if err := checkDiskSpace(s.path); err != nil {
		return err
	}

	_, err := s.db.Exec(`
		INSERT INTO sources (id, name, type, credentials, position, init_remote, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			type = excluded.type,
			credentials = excluded.credentials,
			position = excluded.position,
			init_remote = excluded.init_remote,
			updated_at = CURRENT_TIMESTAMP
	`, rec.ID, rec.Name, rec.Type, rec.Credentials, rec.Position, rec.InitRemote)
	if err != nil {
		return fmt.Errorf("storage: failed to save source: %w", err)
	}
	return nil
}

// List returns all records ordered by position.
func (s *Store) List() ([]Record, error) {
	rows, err := s.db.Query(`
		SELECT id, name, type, credentials, position, init_remote
		FROM sources ORDER BY position, created_at
	`)
	if err != nil {
		return nil, fmt.Errorf("storage: failed to query sources: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.ID, &rec.Name, &rec.Type, &rec.Credentials, &rec.Position, &rec.InitRemote); err != nil {
			return nil, fmt.Errorf("storage: failed to scan row: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("storage: error iterating rows: %w", err)
	}

	return records, nil
}

// Delete removes a record by ID.
func (s *Store) Delete(id string) error {
	result, err := s.db.Exec("DELETE FROM sources WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("storage: failed to delete source: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("storage: failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return ErrRecordNotFound
	}
	return nil
}

// Rename updates the display name of a record.
func (s *Store) Rename(id, name string) error {
	result, err := s.db.Exec(
		"UPDATE sources SET name = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?", name, id)
	if err != nil {
		return fmt.Errorf("storage: failed to rename source: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("storage: failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return ErrRecordNotFound
	}
	return nil
}
