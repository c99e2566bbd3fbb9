// ABOUTME: Session key verification against current and previous time windows
// ABOUTME: Always derives both expected keys and compares in constant time

package auth

import (
	"crypto/hmac"
	"time"

	"github.com/sealway/gpg-gateway/internal/sessionkey"
)

// Verification reasons, for logging only. The HTTP boundary collapses all
// of them into a single generic message to avoid username enumeration.
const (
	ReasonValidCurrent  = "valid for current window"
	ReasonValidPrevious = "valid via grace period (previous window)"
	ReasonLegacyAccount = "legacy account"
	ReasonKeyMismatch   = "key mismatch"
	ReasonNoPrincipal   = "no such principal"
)

// Verification is the outcome of a session key check. WindowUsed is nil
// unless the key was valid.
type Verification struct {
	Valid      bool
	WindowUsed *int64
	Reason     string
}

// SessionKeyVerifier checks presented session keys by re-deriving the
// expected key for the current and previous windows. It holds no state
// beyond a clock and is safe for concurrent use.
type SessionKeyVerifier struct {
	now func() time.Time
}

// NewSessionKeyVerifier creates a verifier using the wall clock.
func NewSessionKeyVerifier() *SessionKeyVerifier {
	return &SessionKeyVerifier{now: time.Now}
}

// Verify checks providedKey against the keys derivable from the principal's
// stored hash and salt.
//
// Both window keys are derived and compared on every call, whatever the
// outcome, so response timing does not reveal which window is active or
// whether the grace period applies.
func (v *SessionKeyVerifier) Verify(passwordHash, masterSalt, providedKey string) Verification {
	if !sessionkey.ValidMasterSalt(masterSalt) {
		// Predates the deterministic scheme; the legacy fixed-token path
		// is the only way in for this account.
		return Verification{Reason: ReasonLegacyAccount}
	}

	masterSecret, err := sessionkey.DeriveMasterSecret(passwordHash, masterSalt)
	if err != nil {
		return Verification{Reason: ReasonLegacyAccount}
	}

	now := v.now()
	currentWindow := sessionkey.WindowIndex(now)
	previousWindow := currentWindow - 1

	expectedCurrent := sessionkey.DeriveSessionKey(masterSecret, currentWindow)
	expectedPrevious := sessionkey.DeriveSessionKey(masterSecret, previousWindow)

	// Both comparisons run unconditionally and in constant time.
	validCurrent := hmac.Equal([]byte(providedKey), []byte(expectedCurrent))
	validPrevious := hmac.Equal([]byte(providedKey), []byte(expectedPrevious))
	withinGrace := sessionkey.WithinGrace(now)

	switch {
	case validCurrent:
		return Verification{Valid: true, WindowUsed: &currentWindow, Reason: ReasonValidCurrent}
	case validPrevious && withinGrace:
		return Verification{Valid: true, WindowUsed: &previousWindow, Reason: ReasonValidPrevious}
	default:
		return Verification{Reason: ReasonKeyMismatch}
	}
}

// SessionKeyInfo is what a caller gets back on login: the derived key and
// the moment it stops working (the grace-period end of the current window).
type SessionKeyInfo struct {
	SessionKey  string
	WindowIndex int64
	WindowStart time.Time
	ExpiresAt   time.Time
}

// IssueSessionKey derives the session key for the current window. Called
// after the password has been verified; it does no checking of its own
// beyond salt validity.
func (v *SessionKeyVerifier) IssueSessionKey(passwordHash, masterSalt string) (*SessionKeyInfo, error) {
	masterSecret, err := sessionkey.DeriveMasterSecret(passwordHash, masterSalt)
	if err != nil {
		return nil, err
	}

	window := sessionkey.WindowIndex(v.now())
	start, _, graceEnd := sessionkey.WindowBounds(window)

	return &SessionKeyInfo{
		SessionKey:  sessionkey.DeriveSessionKey(masterSecret, window),
		WindowIndex: window,
		WindowStart: start,
		ExpiresAt:   graceEnd,
	}, nil
}
