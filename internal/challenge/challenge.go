// ABOUTME: Challenge lifecycle service: single-use proof-of-possession nonces
// ABOUTME: Handles creation with retention pruning and one-shot signature verification

package challenge

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sealway/gpg-gateway/internal/store"
)

// Defaults for challenge retention.
const (
	DefaultMaxAgeDays = 7
	DefaultMaxPerUser = 100

	// pruneBatchLimit caps how many expired rows a single Create call will
	// clean up, so pathological history can't make creation unbounded.
	pruneBatchLimit = 500

	// nonceBytes of entropy per challenge.
	nonceBytes = 32
)

// Verification result messages. These are specific on purpose: challenge
// verification happens after authentication, so precise failure modes leak
// nothing about account existence.
const (
	MsgNotFound          = "Challenge not found or expired"
	MsgExpired           = "Challenge expired"
	MsgSignatureRequired = "Signature required"
	MsgNoPublicKey       = "User public key not found"
	MsgVerified          = "Challenge verified"
	MsgInvalidSignature  = "Invalid signature"
)

// SignatureVerifier is the slice of the PGP engine the service needs.
type SignatureVerifier interface {
	Verify(ctx context.Context, data, signature []byte, armoredPublicKey string) (bool, error)
}

// Config holds retention settings; zero values get defaults.
type Config struct {
	MaxAgeDays int
	MaxPerUser int
}

// Result is the outcome of a verification attempt.
type Result struct {
	OK      bool
	Message string
}

// Service manages challenge creation and consumption. Challenges always
// live in the persistence layer, never in process memory, so correctness
// does not depend on single-process affinity.
type Service struct {
	challenges store.ChallengeStore
	keys       store.KeyStore
	engine     SignatureVerifier
	cfg        Config
	logger     *slog.Logger
	now        func() time.Time
}

// NewService creates a challenge service.
func NewService(challenges store.ChallengeStore, keys store.KeyStore, engine SignatureVerifier, cfg Config) *Service {
	if cfg.MaxAgeDays <= 0 {
		cfg.MaxAgeDays = DefaultMaxAgeDays
	}
	if cfg.MaxPerUser <= 0 {
		cfg.MaxPerUser = DefaultMaxPerUser
	}
	return &Service{
		challenges: challenges,
		keys:       keys,
		engine:     engine,
		cfg:        cfg,
		logger:     slog.Default().With("component", "challenge"),
		now:        time.Now,
	}
}

func (s *Service) maxAge() time.Duration {
	return time.Duration(s.cfg.MaxAgeDays) * 24 * time.Hour
}

// PruneExpired removes expired challenges for every principal and returns
// the number deleted. Operator-triggered; per-owner pruning still happens
// on every Create.
func (s *Service) PruneExpired(ctx context.Context) (int, error) {
	cutoff := s.now().UTC().Add(-s.maxAge())
	deleted, err := s.challenges.DeleteAllChallengesBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if deleted > 0 {
		s.logger.Info("pruned expired challenges", "deleted", deleted)
	}
	return deleted, nil
}

// Create prunes the owner's stale challenges and issues a new one.
//
// Pruning is two-phase: everything older than the max age goes first, then
// the oldest rows beyond the per-user cap. Cap enforcement is best effort
// under concurrent creates; a small transient overshoot is acceptable.
func (s *Service) Create(ctx context.Context, ownerID string) (*store.Challenge, error) {
	if err := s.prune(ctx, ownerID); err != nil {
		return nil, err
	}

	nonce, err := generateNonce()
	if err != nil {
		return nil, err
	}

	c := &store.Challenge{
		OwnerID:   ownerID,
		Nonce:     nonce,
		CreatedAt: s.now().UTC(),
	}
	if err := s.challenges.InsertChallenge(ctx, c); err != nil {
		return nil, err
	}

	s.logger.Debug("issued challenge", "owner_id", ownerID, "challenge_id", c.ID)
	return c, nil
}

func (s *Service) prune(ctx context.Context, ownerID string) error {
	cutoff := s.now().Add(-s.maxAge())
	expired, err := s.challenges.DeleteChallengesBefore(ctx, ownerID, cutoff, pruneBatchLimit)
	if err != nil {
		return fmt.Errorf("pruning expired challenges: %w", err)
	}

	count, err := s.challenges.CountChallenges(ctx, ownerID)
	if err != nil {
		return fmt.Errorf("counting challenges: %w", err)
	}

	var excess int
	// +1 leaves room for the challenge about to be created.
	if over := count - s.cfg.MaxPerUser + 1; over > 0 {
		excess, err = s.challenges.DeleteOldestChallenges(ctx, ownerID, over)
		if err != nil {
			return fmt.Errorf("pruning excess challenges: %w", err)
		}
	}

	if expired > 0 || excess > 0 {
		s.logger.Debug("pruned challenges", "owner_id", ownerID, "expired", expired, "excess", excess)
	}
	return nil
}

func generateNonce() (string, error) {
	buf := make([]byte, nonceBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating nonce: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// Verify checks a signed challenge response and consumes the challenge.
//
// The challenge is deleted on every completed verification attempt, valid
// signature or not, so a captured response can't be replayed. A second call
// with the same nonce simply finds nothing.
func (s *Service) Verify(ctx context.Context, ownerID, nonce, signature string) (Result, error) {
	c, err := s.challenges.GetChallenge(ctx, ownerID, nonce)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return Result{Message: MsgNotFound}, nil
		}
		return Result{}, err
	}

	if s.now().Sub(c.CreatedAt) > s.maxAge() {
		if err := s.challenges.DeleteChallenge(ctx, c.ID); err != nil {
			return Result{}, err
		}
		return Result{Message: MsgExpired}, nil
	}

	if signature == "" {
		return Result{Message: MsgSignatureRequired}, nil
	}

	key, err := s.keys.GetKey(ctx, ownerID, store.KeyRolePublic)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return Result{Message: MsgNoPublicKey}, nil
		}
		return Result{}, err
	}

	valid, verifyErr := s.engine.Verify(ctx, []byte(c.Nonce), []byte(signature), string(key.Data))

	// Single use: consumed whatever the engine said.
	if err := s.challenges.DeleteChallenge(ctx, c.ID); err != nil {
		return Result{}, err
	}

	if verifyErr != nil {
		return Result{}, verifyErr
	}
	if valid {
		return Result{OK: true, Message: MsgVerified}, nil
	}
	return Result{Message: MsgInvalidSignature}, nil
}
