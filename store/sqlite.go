package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

const kvSchema = `CREATE TABLE IF NOT EXISTS kv (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
)`

// SQLitePersister stores the map as rows of a single kv table.
// Each Save replaces the table contents inside one transaction.
type SQLitePersister struct {
	db *sql.DB
}

// NewSQLitePersister opens (creating if needed) the database at path.
func NewSQLitePersister(path string) (*SQLitePersister, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(kvSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create kv table: %w", err)
	}

	return &SQLitePersister{db: db}, nil
}

// Load reads every row of the kv table.
func (p *SQLitePersister) Load(ctx context.Context) (map[string]json.RawMessage, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT key, value FROM kv`)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLoadFailed, err)
	}
	defer rows.Close()

	out := make(map[string]json.RawMessage)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrLoadFailed, err)
		}
		if !json.Valid([]byte(value)) {
			return nil, fmt.Errorf("%w: key %s holds invalid JSON", ErrLoadFailed, key)
		}
		out[key] = json.RawMessage(value)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLoadFailed, err)
	}

	return out, nil
}

// Save replaces the table contents with snapshot.
func (p *SQLitePersister) Save(ctx context.Context, snapshot map[string]json.RawMessage) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSaveFailed, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM kv`); err != nil {
		return fmt.Errorf("%w: %v", ErrSaveFailed, err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO kv (key, value) VALUES (?, ?)`)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSaveFailed, err)
	}
	defer stmt.Close()

	for key, value := range snapshot {
		if _, err := stmt.ExecContext(ctx, key, string(value)); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrSaveFailed, key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: %v", ErrSaveFailed, err)
	}
	return nil
}

// Close closes the database.
func (p *SQLitePersister) Close() error {
	return p.db.Close()
}
