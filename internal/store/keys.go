// ABOUTME: PGP key material persistence methods for the SQLite store
// ABOUTME: Enforces at most one key per (owner, role) by replacing on write

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SetKey stores key material for (owner, role), replacing any existing row.
// The at-most-one-per-role invariant lives here in the service layer rather
// than in a schema constraint.
func (s *SQLiteStore) SetKey(ctx context.Context, key *KeyMaterial) error {
	if key.ID == "" {
		key.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	if key.CreatedAt.IsZero() {
		key.CreatedAt = now
	}
	key.UpdatedAt = now

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx,
		`UPDATE pgp_keys SET data = ?, updated_at = ? WHERE owner_id = ? AND role = ?`,
		key.Data,
		key.UpdatedAt.Format(time.RFC3339),
		key.OwnerID,
		string(key.Role),
	)
	if err != nil {
		return fmt.Errorf("updating key: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking update result: %w", err)
	}

	if affected == 0 {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO pgp_keys (id, owner_id, role, data, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			key.ID,
			key.OwnerID,
			string(key.Role),
			key.Data,
			key.CreatedAt.Format(time.RFC3339),
			key.UpdatedAt.Format(time.RFC3339),
		)
		if err != nil {
			return fmt.Errorf("inserting key: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing key write: %w", err)
	}

	s.logger.Debug("stored key material", "owner_id", key.OwnerID, "role", key.Role)
	return nil
}

// GetKey retrieves the key material for (owner, role).
// Returns ErrNotFound if the owner has no key in that role.
func (s *SQLiteStore) GetKey(ctx context.Context, ownerID string, role KeyRole) (*KeyMaterial, error) {
	query := `
		SELECT id, owner_id, role, data, created_at, updated_at
		FROM pgp_keys
		WHERE owner_id = ? AND role = ?
	`

	var key KeyMaterial
	var roleStr, createdAt, updatedAt string

	err := s.db.QueryRowContext(ctx, query, ownerID, string(role)).Scan(
		&key.ID,
		&key.OwnerID,
		&roleStr,
		&key.Data,
		&createdAt,
		&updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying key: %w", err)
	}

	key.Role = KeyRole(roleStr)
	key.CreatedAt = s.parseTime(createdAt, "created_at", key.ID)
	key.UpdatedAt = s.parseTime(updatedAt, "updated_at", key.ID)

	return &key, nil
}
