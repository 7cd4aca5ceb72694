// Copyright 2024 Package Tracking System
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "github.com/mattn/go-sqlite3"
)

// DB wraps the sql.DB connection and provides access to stores
type DB struct {
	*sql.DB
	Credentials *SQLiteCredentialStore
	Packages    *SQLiteTrackingList
}

// OpenSQLite opens a database connection and initializes stores
func OpenSQLite(dbPath string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o700); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite allows one writer
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	database := &DB{
		DB:          db,
		Credentials: &SQLiteCredentialStore{db: db},
		Packages:    &SQLiteTrackingList{db: db},
	}

	if err := database.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return database, nil
}

// Ping verifies the connection
func (db *DB) Ping(ctx context.Context) error {
	if err := db.DB.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}
	return nil
}

// migrate creates the database schema
func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS credentials (
		carrier TEXT PRIMARY KEY,
		blob BLOB NOT NULL,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS saved_packages (
		position INTEGER PRIMARY KEY,
		tracking_number TEXT NOT NULL
	);
	`

	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// SQLiteCredentialStore stores credential blobs in the credentials table
type SQLiteCredentialStore struct {
	db *sql.DB
}

// Load retrieves the blob for a carrier, or nil when none is stored
func (s *SQLiteCredentialStore) Load(ctx context.Context, key string) ([]byte, error) {
	var blob []byte
	err := s.db.QueryRowContext(ctx, `SELECT blob FROM credentials WHERE carrier = ?`, key).Scan(&blob)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load credentials: %w", err)
	}
	return blob, nil
}

// Save inserts or replaces the blob for a carrier
func (s *SQLiteCredentialStore) Save(ctx context.Context, key string, blob []byte) error {
	query := `INSERT INTO credentials (carrier, blob, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
			  ON CONFLICT(carrier) DO UPDATE SET blob = excluded.blob, updated_at = CURRENT_TIMESTAMP`

	if _, err := s.db.ExecContext(ctx, query, key, blob); err != nil {
		return fmt.Errorf("failed to save credentials: %w", err)
	}
	return nil
}

// Delete removes a carrier's blob
func (s *SQLiteCredentialStore) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM credentials WHERE carrier = ?`, key); err != nil {
		return fmt.Errorf("failed to delete credentials: %w", err)
	}
	return nil
}

// SQLiteTrackingList stores the saved tracking numbers in insertion order
type SQLiteTrackingList struct {
	db *sql.DB
	mu sync.Mutex
}

type sqlQuerier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Load returns the saved numbers in order
func (l *SQLiteTrackingList) Load(ctx context.Context) ([]string, error) {
	return loadTrackingNumbers(ctx, l.db)
}

// Save replaces the list in a single transaction
func (l *SQLiteTrackingList) Save(ctx context.Context, numbers []string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.inTx(ctx, func(tx *sql.Tx) error {
		return replaceTrackingNumbers(ctx, tx, numbers)
	})
}

// Update reads and rewrites the list in one transaction
func (l *SQLiteTrackingList) Update(ctx context.Context, fn func([]string) []string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.inTx(ctx, func(tx *sql.Tx) error {
		numbers, err := loadTrackingNumbers(ctx, tx)
		if err != nil {
			return err
		}
		next := fn(numbers)
		if next == nil {
			return nil
		}
		return replaceTrackingNumbers(ctx, tx, next)
	})
}

func (l *SQLiteTrackingList) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit tracking list: %w", err)
	}
	return nil
}

func loadTrackingNumbers(ctx context.Context, q sqlQuerier) ([]string, error) {
	rows, err := q.QueryContext(ctx, `SELECT tracking_number FROM saved_packages ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("failed to query tracking list: %w", err)
	}
	defer rows.Close()

	numbers := []string{}
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, fmt.Errorf("failed to scan tracking number: %w", err)
		}
		numbers = append(numbers, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read tracking list: %w", err)
	}
	return numbers, nil
}

func replaceTrackingNumbers(ctx context.Context, tx *sql.Tx, numbers []string) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM saved_packages`); err != nil {
		return fmt.Errorf("failed to clear tracking list: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO saved_packages (position, tracking_number) VALUES (?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for i, n := range numbers {
		if _, err := stmt.ExecContext(ctx, i, n); err != nil {
			return fmt.Errorf("failed to save tracking number: %w", err)
		}
	}
	return nil
}
