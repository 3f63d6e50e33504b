// Copyright 2025 Cihan Bekem
// SPDX-License-Identifier: Apache-2.0

package seqid

import (
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStore persists counters in a local SQLite file so candidate
// identifiers survive console restarts within the same profile. It has no
// cross-device authority.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLiteStore opens (or creates) the counter database at path. Use
// ":memory:" for an ephemeral store.
func OpenSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open seq store: %w", err)
	}
	store, err := NewSQLiteStore(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

// NewSQLiteStore wraps an existing database handle and ensures the counter
// table exists.
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS _seq_counters (
		namespace TEXT PRIMARY KEY,
		counter   INTEGER NOT NULL DEFAULT 0
	)`)
	if err != nil {
		return nil, fmt.Errorf("failed to create counter table: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Get(namespace string) (int64, error) {
	var counter int64
	err := s.db.QueryRow(`SELECT counter FROM _seq_counters WHERE namespace = ?`, namespace).Scan(&counter)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to query counter: %w", err)
	}
	return counter, nil
}

func (s *SQLiteStore) Set(namespace string, value int64) error {
	_, err := s.db.Exec(`
		INSERT INTO _seq_counters (namespace, counter) VALUES (?, ?)
		ON CONFLICT(namespace) DO UPDATE SET counter = excluded.counter
	`, namespace, value)
	if err != nil {
		return fmt.Errorf("failed to persist counter: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }
