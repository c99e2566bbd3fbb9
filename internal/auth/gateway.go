// ABOUTME: Top-level authentication gateway combining session keys and legacy fixed tokens
// ABOUTME: Emits exactly one audit event per call and fails generically to block enumeration

package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"log/slog"

	"github.com/sealway/gpg-gateway/internal/sessionkey"
	"github.com/sealway/gpg-gateway/internal/store"
)

// ErrInvalidCredentials is the single error surfaced for every
// authentication failure. The specific reason is logged and audited,
// never returned, so callers can't distinguish "wrong key" from
// "no such user".
var ErrInvalidCredentials = errors.New("invalid credentials")

// PrincipalLookup is the slice of the store the gateway needs.
type PrincipalLookup interface {
	GetPrincipalByUsername(ctx context.Context, username string) (*store.Principal, error)
	GetPrincipalByLegacyTokenHash(ctx context.Context, tokenHash string) (*store.Principal, error)
}

// Auditor records authentication outcomes.
type Auditor interface {
	AppendAuditEntry(ctx context.Context, e *store.AuditEntry) error
}

// Gateway authenticates a presented credential, picking the session-key or
// legacy-token path by the credential's format.
type Gateway struct {
	principals PrincipalLookup
	audit      Auditor
	verifier   *SessionKeyVerifier
	logger     *slog.Logger
}

// NewGateway creates an authentication gateway.
func NewGateway(principals PrincipalLookup, audit Auditor, verifier *SessionKeyVerifier) *Gateway {
	return &Gateway{
		principals: principals,
		audit:      audit,
		verifier:   verifier,
		logger:     slog.Default().With("component", "auth"),
	}
}

// HashLegacyToken computes the storage hash of a fixed legacy API token.
func HashLegacyToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// WrapSecret returns the stable secret protecting the principal's private
// key at rest. Session keys rotate hourly, so deterministic accounts use
// the hex master secret instead, which the server can re-derive on any
// authenticated request. Legacy tokens are fixed and serve as-is.
func WrapSecret(p *store.Principal, credential string) (string, error) {
	if !sessionkey.IsSessionKey(credential) {
		return credential, nil
	}
	masterSecret, err := sessionkey.DeriveMasterSecret(p.PasswordHash, p.MasterSalt)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(masterSecret), nil
}

// Authenticate resolves a presented credential to a principal.
//
// Session keys (sk_ prefix) are not self-describing, so that path requires
// a username to pick the right salt and hash. Anything else is treated as a
// legacy fixed token and looked up by hash; that path has no expiry and no
// window logic.
//
// Every call emits exactly one audit event with the outcome and method, but
// never the credential itself.
func (g *Gateway) Authenticate(ctx context.Context, username, credential string) (*store.Principal, error) {
	if sessionkey.IsSessionKey(credential) {
		return g.authenticateSessionKey(ctx, username, credential)
	}
	return g.authenticateLegacyToken(ctx, credential)
}

func (g *Gateway) authenticateSessionKey(ctx context.Context, username, credential string) (*store.Principal, error) {
	if username == "" {
		g.auditAuth(ctx, store.AuthMethodSessionKey, nil, "username required for session key")
		return nil, ErrInvalidCredentials
	}

	principal, err := g.principals.GetPrincipalByUsername(ctx, username)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
		g.logger.Info("authentication failed", "method", store.AuthMethodSessionKey, "reason", ReasonNoPrincipal)
		g.auditAuth(ctx, store.AuthMethodSessionKey, nil, ReasonNoPrincipal)
		return nil, ErrInvalidCredentials
	}

	result := g.verifier.Verify(principal.PasswordHash, principal.MasterSalt, credential)
	if !result.Valid {
		g.logger.Info("authentication failed",
			"method", store.AuthMethodSessionKey,
			"reason", result.Reason,
		)
		g.auditAuth(ctx, store.AuthMethodSessionKey, nil, result.Reason)
		return nil, ErrInvalidCredentials
	}

	g.auditAuth(ctx, store.AuthMethodSessionKey, &principal.ID, result.Reason)
	return principal, nil
}

func (g *Gateway) authenticateLegacyToken(ctx context.Context, credential string) (*store.Principal, error) {
	principal, err := g.principals.GetPrincipalByLegacyTokenHash(ctx, HashLegacyToken(credential))
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
		g.logger.Info("authentication failed", "method", store.AuthMethodLegacyToken, "reason", "unknown token")
		g.auditAuth(ctx, store.AuthMethodLegacyToken, nil, "unknown token")
		return nil, ErrInvalidCredentials
	}

	g.auditAuth(ctx, store.AuthMethodLegacyToken, &principal.ID, "valid legacy token")
	return principal, nil
}

// auditAuth records one authentication event. Best effort: persistence
// trouble in the audit path must not turn a valid login into an error.
func (g *Gateway) auditAuth(ctx context.Context, method string, principalID *string, reason string) {
	outcome := store.AuditOutcomeFailure
	if principalID != nil {
		outcome = store.AuditOutcomeSuccess
	}
	err := g.audit.AppendAuditEntry(ctx, &store.AuditEntry{
		PrincipalID: principalID,
		Action:      store.AuditAuthenticate,
		Method:      method,
		Outcome:     outcome,
		Detail:      map[string]any{"reason": reason},
	})
	if err != nil {
		g.logger.Error("failed to append audit entry", "error", err)
	}
}
