// ABOUTME: SQLite implementation of the store interfaces using modernc.org/sqlite
// ABOUTME: Provides principal/key/challenge persistence with automatic schema creation

package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements the store interfaces using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// Compile-time interface checks.
var (
	_ PrincipalStore = (*SQLiteStore)(nil)
	_ KeyStore       = (*SQLiteStore)(nil)
	_ ChallengeStore = (*SQLiteStore)(nil)
	_ AuditStore     = (*SQLiteStore)(nil)
)

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Enable WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	// Foreign keys drive cascade delete of keys and challenges
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// createSchema creates the database tables if they don't exist.
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS principals (
			id TEXT PRIMARY KEY,
			username TEXT NOT NULL UNIQUE,
			password_hash TEXT NOT NULL,
			master_salt TEXT NOT NULL DEFAULT '',
			legacy_token_hash TEXT UNIQUE,
			created_at TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS pgp_keys (
			id TEXT PRIMARY KEY,
			owner_id TEXT NOT NULL REFERENCES principals(id) ON DELETE CASCADE,
			role TEXT NOT NULL CHECK (role IN ('public', 'private')),
			data BLOB NOT NULL,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_pgp_keys_owner ON pgp_keys(owner_id, role);

		CREATE TABLE IF NOT EXISTS challenges (
			id TEXT PRIMARY KEY,
			owner_id TEXT NOT NULL REFERENCES principals(id) ON DELETE CASCADE,
			nonce TEXT NOT NULL,
			created_at TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_challenges_owner_nonce ON challenges(owner_id, nonce);
		CREATE INDEX IF NOT EXISTS idx_challenges_owner_created ON challenges(owner_id, created_at);

		CREATE TABLE IF NOT EXISTS audit_log (
			audit_id TEXT PRIMARY KEY,
			principal_id TEXT,
			action TEXT NOT NULL,
			method TEXT,
			outcome TEXT NOT NULL,
			ts TEXT NOT NULL,
			detail_json TEXT
		);
		CREATE INDEX IF NOT EXISTS idx_audit_log_principal ON audit_log(principal_id, ts);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("executing schema: %w", err)
	}

	return nil
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error {
	s.logger.Info("closing SQLite store")
	return s.db.Close()
}

// isConstraintViolation reports whether err is a SQLite constraint failure.
func isConstraintViolation(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "UNIQUE constraint failed") ||
		strings.Contains(errStr, "constraint failed")
}

// nullString converts an empty string to nil for nullable columns.
func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// ptrToString dereferences a *string, returning "" for nil.
func ptrToString(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

// parseTime parses an RFC3339 timestamp column, logging rather than failing
// on malformed values so one bad row can't poison reads.
func (s *SQLiteStore) parseTime(raw, column, id string) time.Time {
	parsed, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		s.logger.Warn("failed to parse timestamp", "column", column, "id", id, "error", err)
		return time.Time{}
	}
	return parsed
}
