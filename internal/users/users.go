// ABOUTME: User lifecycle service: registration with keypair provisioning and login
// ABOUTME: Coordinates hashing, salt generation, key generation, and at-rest sealing

package users

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"

	"github.com/sealway/gpg-gateway/internal/auth"
	"github.com/sealway/gpg-gateway/internal/keywrap"
	"github.com/sealway/gpg-gateway/internal/sessionkey"
	"github.com/sealway/gpg-gateway/internal/store"
)

// ErrRegistrationFailed is the generic error for registration problems that
// must not be distinguishable from the outside, duplicate usernames above
// all. Input validation failures return a *ValidationError instead.
var ErrRegistrationFailed = errors.New("registration failed, verify your details or contact an administrator")

// ErrMigrationRequired is returned when a legacy account without a master
// salt tries to log in; those accounts can only use their fixed token.
var ErrMigrationRequired = errors.New("account requires migration to deterministic session keys")

// KeypairGenerator is the slice of the PGP engine registration needs.
type KeypairGenerator interface {
	GenerateKeypair(ctx context.Context, name, email, passphrase string) (publicKey, privateKey string, err error)
}

// RegistrationInput carries everything a registration attempt provides.
// PublicKey and PrivateKey are optional armored material; when either is
// missing a fresh keypair is generated.
type RegistrationInput struct {
	Username   string
	Password   string
	Email      string
	PublicKey  string
	PrivateKey string
}

// RegistrationResult is a successful registration: the new principal, its
// first session key, and the armored public key (generated or as provided).
type RegistrationResult struct {
	Principal *store.Principal
	Session   *auth.SessionKeyInfo
	PublicKey string
}

// LoginResult is a successful login.
type LoginResult struct {
	Principal *store.Principal
	Session   *auth.SessionKeyInfo
}

// Service implements registration and login on top of the stores, the
// password hasher, and the PGP engine.
type Service struct {
	principals store.PrincipalStore
	keys       store.KeyStore
	hasher     auth.PasswordHasher
	verifier   *auth.SessionKeyVerifier
	engine     KeypairGenerator
	audit      auth.Auditor
	logger     *slog.Logger
}

// NewService creates a user service.
func NewService(principals store.PrincipalStore, keys store.KeyStore, hasher auth.PasswordHasher, verifier *auth.SessionKeyVerifier, engine KeypairGenerator, audit auth.Auditor) *Service {
	return &Service{
		principals: principals,
		keys:       keys,
		hasher:     hasher,
		verifier:   verifier,
		engine:     engine,
		audit:      audit,
		logger:     slog.Default().With("component", "users"),
	}
}

// Register creates an account, provisions its keypair, and returns the
// first session key.
//
// Validation failures come back as *ValidationError; everything after
// validation collapses to ErrRegistrationFailed so the response never
// reveals whether a username is taken.
func (s *Service) Register(ctx context.Context, in RegistrationInput) (*RegistrationResult, error) {
	if err := validateUsername(in.Username); err != nil {
		return nil, err
	}
	if err := validatePassword(in.Password); err != nil {
		return nil, err
	}
	if err := validateEmail(in.Email); err != nil {
		return nil, err
	}

	passwordHash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, fmt.Errorf("hashing password: %w", err)
	}

	masterSalt, err := sessionkey.GenerateMasterSalt()
	if err != nil {
		return nil, fmt.Errorf("generating master salt: %w", err)
	}

	principal := &store.Principal{
		Username:     in.Username,
		PasswordHash: passwordHash,
		MasterSalt:   masterSalt,
	}
	if err := s.principals.CreatePrincipal(ctx, principal); err != nil {
		if errors.Is(err, store.ErrUsernameExists) {
			s.logger.Info("registration rejected", "reason", "username taken")
			s.auditEvent(ctx, store.AuditRegister, nil, store.AuditOutcomeFailure, "username taken")
			return nil, ErrRegistrationFailed
		}
		return nil, err
	}

	result, err := s.provisionKeys(ctx, principal, in)
	if err != nil {
		// Leave no half-created account behind; FK cascade removes any
		// key rows that made it in.
		if delErr := s.principals.DeletePrincipal(ctx, principal.ID); delErr != nil {
			s.logger.Error("failed to remove principal after provisioning failure",
				"principal_id", principal.ID, "error", delErr)
		}
		s.auditEvent(ctx, store.AuditRegister, nil, store.AuditOutcomeFailure, "key provisioning failed")
		return nil, err
	}

	s.auditEvent(ctx, store.AuditRegister, &principal.ID, store.AuditOutcomeSuccess, "")
	s.logger.Info("registered principal", "principal_id", principal.ID, "username", principal.Username)
	return result, nil
}

func (s *Service) provisionKeys(ctx context.Context, principal *store.Principal, in RegistrationInput) (*RegistrationResult, error) {
	session, err := s.verifier.IssueSessionKey(principal.PasswordHash, principal.MasterSalt)
	if err != nil {
		return nil, fmt.Errorf("issuing session key: %w", err)
	}

	wrapSecret, err := wrapSecretFor(principal)
	if err != nil {
		return nil, err
	}

	publicKey, privateKey := in.PublicKey, in.PrivateKey
	if publicKey == "" || privateKey == "" {
		email := in.Email
		if email == "" {
			email = principal.Username + "@example.com"
		}
		passphrase := keywrap.DeriveGPGPassphrase(wrapSecret, principal.ID)
		publicKey, privateKey, err = s.engine.GenerateKeypair(ctx, principal.Username, email, passphrase)
		if err != nil {
			return nil, fmt.Errorf("generating keypair: %w", err)
		}
	}

	if err := s.keys.SetKey(ctx, &store.KeyMaterial{
		OwnerID: principal.ID,
		Role:    store.KeyRolePublic,
		Data:    []byte(publicKey),
	}); err != nil {
		return nil, fmt.Errorf("storing public key: %w", err)
	}

	sealed, err := keywrap.Seal(wrapSecret, []byte(privateKey))
	if err != nil {
		return nil, fmt.Errorf("sealing private key: %w", err)
	}
	if err := s.keys.SetKey(ctx, &store.KeyMaterial{
		OwnerID: principal.ID,
		Role:    store.KeyRolePrivate,
		Data:    sealed,
	}); err != nil {
		return nil, fmt.Errorf("storing private key: %w", err)
	}

	return &RegistrationResult{Principal: principal, Session: session, PublicKey: publicKey}, nil
}

// Login verifies credentials and returns a session key for the current
// window. All failures surface as auth.ErrInvalidCredentials except the
// legacy-account case, which gets its own actionable error.
func (s *Service) Login(ctx context.Context, username, password string) (*LoginResult, error) {
	principal, err := s.principals.GetPrincipalByUsername(ctx, username)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
		// Burn a comparison so this path costs the same as a bad password.
		s.hasher.CompareDummy(password)
		s.auditEvent(ctx, store.AuditLogin, nil, store.AuditOutcomeFailure, "no such principal")
		return nil, auth.ErrInvalidCredentials
	}

	if !s.hasher.Compare(password, principal.PasswordHash) {
		s.auditEvent(ctx, store.AuditLogin, nil, store.AuditOutcomeFailure, "bad password")
		return nil, auth.ErrInvalidCredentials
	}

	if !sessionkey.ValidMasterSalt(principal.MasterSalt) {
		s.auditEvent(ctx, store.AuditLogin, &principal.ID, store.AuditOutcomeFailure, "legacy account")
		return nil, ErrMigrationRequired
	}

	session, err := s.verifier.IssueSessionKey(principal.PasswordHash, principal.MasterSalt)
	if err != nil {
		return nil, fmt.Errorf("issuing session key: %w", err)
	}

	s.auditEvent(ctx, store.AuditLogin, &principal.ID, store.AuditOutcomeSuccess, "")
	return &LoginResult{Principal: principal, Session: session}, nil
}

// PrivateKey loads and unseals the principal's private key and derives the
// passphrase protecting it inside GPG. credential is whatever the request
// authenticated with; it selects the wrap secret for legacy accounts.
func (s *Service) PrivateKey(ctx context.Context, principal *store.Principal, credential string) (armored, passphrase string, err error) {
	wrapSecret, err := auth.WrapSecret(principal, credential)
	if err != nil {
		return "", "", err
	}

	key, err := s.keys.GetKey(ctx, principal.ID, store.KeyRolePrivate)
	if err != nil {
		return "", "", err
	}

	plaintext, err := keywrap.Open(wrapSecret, key.Data)
	if err != nil {
		return "", "", fmt.Errorf("unsealing private key: %w", err)
	}

	return string(plaintext), keywrap.DeriveGPGPassphrase(wrapSecret, principal.ID), nil
}

// PublicKey loads the principal's armored public key.
func (s *Service) PublicKey(ctx context.Context, principalID string) (string, error) {
	key, err := s.keys.GetKey(ctx, principalID, store.KeyRolePublic)
	if err != nil {
		return "", err
	}
	return string(key.Data), nil
}

// wrapSecretFor computes the at-rest secret for a fresh deterministic
// account, where no presented credential exists yet.
func wrapSecretFor(principal *store.Principal) (string, error) {
	masterSecret, err := sessionkey.DeriveMasterSecret(principal.PasswordHash, principal.MasterSalt)
	if err != nil {
		return "", fmt.Errorf("deriving master secret: %w", err)
	}
	return hex.EncodeToString(masterSecret), nil
}

func (s *Service) auditEvent(ctx context.Context, action store.AuditAction, principalID *string, outcome string, reason string) {
	detail := map[string]any{}
	if reason != "" {
		detail["reason"] = reason
	}
	err := s.audit.AppendAuditEntry(ctx, &store.AuditEntry{
		PrincipalID: principalID,
		Action:      action,
		Outcome:     outcome,
		Detail:      detail,
	})
	if err != nil {
		s.logger.Error("failed to append audit entry", "error", err)
	}
}
