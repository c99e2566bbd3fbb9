// ABOUTME: Store interface and data types for gpg-gateway persistence
// ABOUTME: Defines Principal, KeyMaterial, Challenge structs and the per-concern store interfaces

package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrUsernameExists is returned when trying to create a principal with a
// username that is already taken.
var ErrUsernameExists = errors.New("username already exists")

// Principal represents an authenticated identity: a human or AI-agent
// account that owns key material and challenges.
type Principal struct {
	ID           string
	Username     string
	PasswordHash string // slow-hash output, never logged or returned
	// MasterSalt is the hex-encoded salt for deterministic session key
	// derivation. Empty or short for accounts that predate the scheme.
	MasterSalt string
	// LegacyTokenHash is the SHA-256 hex of a fixed API token, set only on
	// accounts created before deterministic session keys.
	LegacyTokenHash *string
	CreatedAt       time.Time
}

// KeyRole distinguishes the two halves of a principal's PGP keypair.
type KeyRole string

const (
	KeyRolePublic  KeyRole = "public"
	KeyRolePrivate KeyRole = "private"
)

// KeyMaterial is a stored PGP key. Public keys hold armored text as
// provided; private keys hold the armored text encrypted at rest, so Data is
// opaque bytes either way.
type KeyMaterial struct {
	ID        string
	OwnerID   string
	Role      KeyRole
	Data      []byte
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Challenge is a single-use nonce a principal signs to prove possession of
// its private key. Rows are deleted when consumed and pruned by age/count.
type Challenge struct {
	ID        string
	OwnerID   string
	Nonce     string
	CreatedAt time.Time
}

// PrincipalStore defines persistence operations for principals.
type PrincipalStore interface {
	CreatePrincipal(ctx context.Context, p *Principal) error
	GetPrincipal(ctx context.Context, id string) (*Principal, error)
	GetPrincipalByUsername(ctx context.Context, username string) (*Principal, error)
	GetPrincipalByLegacyTokenHash(ctx context.Context, tokenHash string) (*Principal, error)
	ListPrincipals(ctx context.Context) ([]*Principal, error)
	// DeletePrincipal removes the principal and, via foreign keys, all of
	// its key material and challenges.
	DeletePrincipal(ctx context.Context, id string) error
}

// KeyStore defines persistence operations for PGP key material.
type KeyStore interface {
	// SetKey stores the key for (owner, role), replacing any existing row.
	// The at-most-one-per-role invariant is enforced here rather than by a
	// schema constraint.
	SetKey(ctx context.Context, key *KeyMaterial) error
	GetKey(ctx context.Context, ownerID string, role KeyRole) (*KeyMaterial, error)
}

// ChallengeStore defines the raw persistence operations the challenge
// service builds its lifecycle on.
type ChallengeStore interface {
	InsertChallenge(ctx context.Context, c *Challenge) error
	// GetChallenge looks up an outstanding challenge by owner and nonce.
	GetChallenge(ctx context.Context, ownerID, nonce string) (*Challenge, error)
	DeleteChallenge(ctx context.Context, id string) error
	// DeleteChallengesBefore removes up to limit challenges for the owner
	// created before cutoff, oldest first. Returns the number deleted.
	DeleteChallengesBefore(ctx context.Context, ownerID string, cutoff time.Time, limit int) (int, error)
	// DeleteAllChallengesBefore removes challenges created before cutoff
	// for every principal. Returns the number deleted.
	DeleteAllChallengesBefore(ctx context.Context, cutoff time.Time) (int, error)
	// DeleteOldestChallenges removes the n oldest challenges for the owner.
	// Returns the number deleted.
	DeleteOldestChallenges(ctx context.Context, ownerID string, n int) (int, error)
	CountChallenges(ctx context.Context, ownerID string) (int, error)
	ListChallenges(ctx context.Context, ownerID string) ([]*Challenge, error)
}
