package dedupe

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
)

// PostgresStore keeps records in the remote_dedupe table
type PostgresStore struct {
	db *sql.DB
}

var _ Store = (*PostgresStore)(nil)

// OpenPostgresStore connects to databaseURL and prepares the table
func OpenPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open dedupe database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to reach dedupe database: %w", err)
	}

	store, err := NewPostgresStore(ctx, db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

// NewPostgresStore wraps an open database and creates the table if needed
func NewPostgresStore(ctx context.Context, db *sql.DB) (*PostgresStore, error) {
	store := &PostgresStore{db: db}

	if err := store.ensureTable(ctx); err != nil {
		return nil, fmt.Errorf("failed to ensure dedupe table: %w", err)
	}

	return store, nil
}

// ensureTable creates the remote_dedupe table if it doesn't exist
func (s *PostgresStore) ensureTable(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS remote_dedupe (
			name TEXT PRIMARY KEY,
			fingerprint TEXT NOT NULL,
			first_seen_at TIMESTAMPTZ DEFAULT NOW(),
			last_seen_at TIMESTAMPTZ DEFAULT NOW(),
			seen_count INTEGER DEFAULT 1
		)
	`

	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to create remote_dedupe table: %w", err)
	}
	return nil
}

// Get returns the recorded fingerprint for name
func (s *PostgresStore) Get(ctx context.Context, name string) (string, bool, error) {
	query := `SELECT fingerprint FROM remote_dedupe WHERE name = $1`

	var fingerprint string
	err := s.db.QueryRowContext(ctx, query, name).Scan(&fingerprint)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get fingerprint: %w", err)
	}

	return fingerprint, true, nil
}

// Put upserts the fingerprint for name and bumps its seen count
func (s *PostgresStore) Put(ctx context.Context, name string, fingerprint string) error {
	query := `
		INSERT INTO remote_dedupe (name, fingerprint, first_seen_at, last_seen_at, seen_count)
		VALUES ($1, $2, NOW(), NOW(), 1)
		ON CONFLICT (name) DO UPDATE
		SET fingerprint = EXCLUDED.fingerprint,
		    last_seen_at = NOW(),
		    seen_count = remote_dedupe.seen_count + 1
	`

	if _, err := s.db.ExecContext(ctx, query, name, fingerprint); err != nil {
		return fmt.Errorf("failed to put fingerprint: %w", err)
	}
	return nil
}

// Close closes the database
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
