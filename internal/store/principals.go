// ABOUTME: Principal persistence methods for the SQLite store
// ABOUTME: Supports lookup by id, username, and legacy token hash plus cascade delete

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// CreatePrincipal creates a new principal.
// Returns ErrUsernameExists if the username is already taken.
func (s *SQLiteStore) CreatePrincipal(ctx context.Context, p *Principal) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO principals (id, username, password_hash, master_salt, legacy_token_hash, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		p.ID,
		p.Username,
		p.PasswordHash,
		p.MasterSalt,
		nullString(ptrToString(p.LegacyTokenHash)),
		p.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		if isConstraintViolation(err) {
			return ErrUsernameExists
		}
		return fmt.Errorf("inserting principal: %w", err)
	}

	s.logger.Debug("created principal", "id", p.ID, "username", p.Username)
	return nil
}

// GetPrincipal retrieves a principal by ID.
// Returns ErrNotFound if it doesn't exist.
func (s *SQLiteStore) GetPrincipal(ctx context.Context, id string) (*Principal, error) {
	return s.getPrincipal(ctx, `WHERE id = ?`, id)
}

// GetPrincipalByUsername retrieves a principal by username.
// Returns ErrNotFound if it doesn't exist.
func (s *SQLiteStore) GetPrincipalByUsername(ctx context.Context, username string) (*Principal, error) {
	return s.getPrincipal(ctx, `WHERE username = ?`, username)
}

// GetPrincipalByLegacyTokenHash retrieves a principal by the hash of its
// fixed legacy API token. Returns ErrNotFound if no account matches.
func (s *SQLiteStore) GetPrincipalByLegacyTokenHash(ctx context.Context, tokenHash string) (*Principal, error) {
	return s.getPrincipal(ctx, `WHERE legacy_token_hash = ?`, tokenHash)
}

func (s *SQLiteStore) getPrincipal(ctx context.Context, where string, arg any) (*Principal, error) {
	query := `
		SELECT id, username, password_hash, master_salt, legacy_token_hash, created_at
		FROM principals ` + where

	var p Principal
	var legacyHash sql.NullString
	var createdAt string

	err := s.db.QueryRowContext(ctx, query, arg).Scan(
		&p.ID,
		&p.Username,
		&p.PasswordHash,
		&p.MasterSalt,
		&legacyHash,
		&createdAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying principal: %w", err)
	}

	if legacyHash.Valid {
		p.LegacyTokenHash = &legacyHash.String
	}
	p.CreatedAt = s.parseTime(createdAt, "created_at", p.ID)

	return &p, nil
}

// ListPrincipals returns all principals ordered by creation time.
func (s *SQLiteStore) ListPrincipals(ctx context.Context) ([]*Principal, error) {
	query := `
		SELECT id, username, password_hash, master_salt, legacy_token_hash, created_at
		FROM principals
		ORDER BY created_at ASC
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying principals: %w", err)
	}
	defer rows.Close()

	var principals []*Principal
	for rows.Next() {
		var p Principal
		var legacyHash sql.NullString
		var createdAt string

		if err := rows.Scan(&p.ID, &p.Username, &p.PasswordHash, &p.MasterSalt, &legacyHash, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning principal: %w", err)
		}
		if legacyHash.Valid {
			p.LegacyTokenHash = &legacyHash.String
		}
		p.CreatedAt = s.parseTime(createdAt, "created_at", p.ID)
		principals = append(principals, &p)
	}

	return principals, rows.Err()
}

// DeletePrincipal removes a principal. Key material and challenges go with
// it via ON DELETE CASCADE. Returns ErrNotFound if the principal doesn't
// exist.
func (s *SQLiteStore) DeletePrincipal(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM principals WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting principal: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking delete result: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}

	s.logger.Debug("deleted principal", "id", id)
	return nil
}
