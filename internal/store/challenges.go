// ABOUTME: Challenge row persistence methods for the SQLite store
// ABOUTME: Supports lookup by (owner, nonce), deletion, and the pruning queries

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// InsertChallenge persists a new challenge row.
func (s *SQLiteStore) InsertChallenge(ctx context.Context, c *Challenge) error {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO challenges (id, owner_id, nonce, created_at)
		VALUES (?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		c.ID,
		c.OwnerID,
		c.Nonce,
		c.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("inserting challenge: %w", err)
	}

	return nil
}

// GetChallenge looks up a challenge by owner and nonce.
// Returns ErrNotFound if no such challenge is outstanding.
func (s *SQLiteStore) GetChallenge(ctx context.Context, ownerID, nonce string) (*Challenge, error) {
	query := `
		SELECT id, owner_id, nonce, created_at
		FROM challenges
		WHERE owner_id = ? AND nonce = ?
	`

	var c Challenge
	var createdAt string

	err := s.db.QueryRowContext(ctx, query, ownerID, nonce).Scan(&c.ID, &c.OwnerID, &c.Nonce, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying challenge: %w", err)
	}

	c.CreatedAt = s.parseTime(createdAt, "created_at", c.ID)
	return &c, nil
}

// DeleteChallenge removes a challenge by ID. Deleting an already-deleted
// challenge is not an error; the single-use rule makes double-consume a
// no-op.
func (s *SQLiteStore) DeleteChallenge(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM challenges WHERE id = ?`, id); err != nil {
		return fmt.Errorf("deleting challenge: %w", err)
	}
	return nil
}

// DeleteChallengesBefore removes up to limit challenges for the owner
// created before cutoff, oldest first.
func (s *SQLiteStore) DeleteChallengesBefore(ctx context.Context, ownerID string, cutoff time.Time, limit int) (int, error) {
	query := `
		DELETE FROM challenges
		WHERE id IN (
			SELECT id FROM challenges
			WHERE owner_id = ? AND created_at < ?
			ORDER BY created_at ASC
			LIMIT ?
		)
	`

	result, err := s.db.ExecContext(ctx, query, ownerID, cutoff.UTC().Format(time.RFC3339), limit)
	if err != nil {
		return 0, fmt.Errorf("pruning expired challenges: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("checking prune result: %w", err)
	}
	return int(affected), nil
}

// DeleteAllChallengesBefore removes challenges created before cutoff across
// all principals. Used by the operator prune, which is not bounded per owner.
func (s *SQLiteStore) DeleteAllChallengesBefore(ctx context.Context, cutoff time.Time) (int, error) {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM challenges WHERE created_at < ?`,
		cutoff.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return 0, fmt.Errorf("pruning expired challenges: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("checking prune result: %w", err)
	}
	return int(affected), nil
}

// DeleteOldestChallenges removes the n oldest challenges for the owner.
func (s *SQLiteStore) DeleteOldestChallenges(ctx context.Context, ownerID string, n int) (int, error) {
	if n <= 0 {
		return 0, nil
	}

	query := `
		DELETE FROM challenges
		WHERE id IN (
			SELECT id FROM challenges
			WHERE owner_id = ?
			ORDER BY created_at ASC, id ASC
			LIMIT ?
		)
	`

	result, err := s.db.ExecContext(ctx, query, ownerID, n)
	if err != nil {
		return 0, fmt.Errorf("pruning excess challenges: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("checking prune result: %w", err)
	}
	return int(affected), nil
}

// CountChallenges returns the number of outstanding challenges for an owner.
func (s *SQLiteStore) CountChallenges(ctx context.Context, ownerID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM challenges WHERE owner_id = ?`, ownerID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting challenges: %w", err)
	}
	return count, nil
}

// ListChallenges returns the owner's challenges ordered oldest first.
func (s *SQLiteStore) ListChallenges(ctx context.Context, ownerID string) ([]*Challenge, error) {
	query := `
		SELECT id, owner_id, nonce, created_at
		FROM challenges
		WHERE owner_id = ?
		ORDER BY created_at ASC, id ASC
	`

	rows, err := s.db.QueryContext(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("querying challenges: %w", err)
	}
	defer rows.Close()

	var challenges []*Challenge
	for rows.Next() {
		var c Challenge
		var createdAt string
		if err := rows.Scan(&c.ID, &c.OwnerID, &c.Nonce, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning challenge: %w", err)
		}
		c.CreatedAt = s.parseTime(createdAt, "created_at", c.ID)
		challenges = append(challenges, &c)
	}

	return challenges, rows.Err()
}
