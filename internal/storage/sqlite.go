package storage

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver
)

// SQLiteBackend implements Backend using a single SQLite database file,
// with artifact data stored as BLOBs. It targets single-node and embedded
// deployments where an object store is overkill; like MemoryBackend it
// materializes each artifact rather than streaming it.
type SQLiteBackend struct {
	db *sql.DB
}

// NewSQLiteBackend opens (or creates) the database at dbPath, applies
// performance PRAGMAs, and creates the artifact table.
func NewSQLiteBackend(dbPath string) (*SQLiteBackend, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening SQLite storage database: %w", err)
	}

	b := &SQLiteBackend{db: db}
	if err := b.initDB(); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing SQLite storage database: %w", err)
	}
	return b, nil
}

// initDB applies PRAGMAs and creates the artifact table.
func (b *SQLiteBackend) initDB() error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, p := range pragmas {
		if _, err := b.db.Exec(p); err != nil {
			return fmt.Errorf("executing %q: %w", p, err)
		}
	}

	schema := `
		CREATE TABLE IF NOT EXISTS artifacts (
			key  TEXT PRIMARY KEY,
			data BLOB NOT NULL
		);
	`
	if _, err := b.db.Exec(schema); err != nil {
		return fmt.Errorf("creating storage schema: %w", err)
	}
	return nil
}

// Close closes the underlying SQLite database connection.
func (b *SQLiteBackend) Close() error {
	if b.db != nil {
		return b.db.Close()
	}
	return nil
}

// Exists checks whether an artifact row exists for the key.
func (b *SQLiteBackend) Exists(ctx context.Context, key string) (bool, error) {
	var one int
	err := b.db.QueryRowContext(ctx,
		`SELECT 1 FROM artifacts WHERE key = ?`, key,
	).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("%w: exists %q: %v", ErrUnavailable, key, err)
	}
	return true, nil
}

// Put reads the body to completion and stores it as a BLOB row. Uses
// INSERT OR REPLACE: uniqueness is enforced above this layer.
func (b *SQLiteBackend) Put(ctx context.Context, key string, body io.Reader, size int64) error {
	data, err := io.ReadAll(body)
	if err != nil {
		return fmt.Errorf("%w: reading body for %q: %v", ErrUnavailable, key, err)
	}

	_, err = b.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO artifacts (key, data) VALUES (?, ?)`,
		key, data,
	)
	if err != nil {
		return fmt.Errorf("%w: put %q: %v", ErrUnavailable, key, err)
	}
	return nil
}

// Get retrieves the artifact data for the key.
func (b *SQLiteBackend) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	var data []byte
	err := b.db.QueryRowContext(ctx,
		`SELECT data FROM artifacts WHERE key = ?`, key,
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get %q: %v", ErrUnavailable, key, err)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

// Ping verifies the database is operational with a trivial query.
func (b *SQLiteBackend) Ping(ctx context.Context) error {
	var n int
	if err := b.db.QueryRowContext(ctx, `SELECT 1`).Scan(&n); err != nil {
		return fmt.Errorf("%w: ping: %v", ErrUnavailable, err)
	}
	return nil
}

// Ensure SQLiteBackend implements Backend at compile time.
var _ Backend = (*SQLiteBackend)(nil)
