// ABOUTME: Deterministic session key derivation from a stored password hash and per-user salt
// ABOUTME: Keys are scoped to hourly windows and re-derivable, so nothing is stored server-side

package sessionkey

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/pbkdf2"
)

// Derivation parameters. Changing any of these invalidates every key
// previously issued, so they are fixed constants rather than config.
const (
	// WindowSeconds is the length of a session window.
	WindowSeconds = 3600

	// GraceSeconds is how far into a new window the previous window's
	// key is still accepted.
	GraceSeconds = 600

	// PBKDF2Iterations is the iteration count for master secret derivation.
	PBKDF2Iterations = 100000

	// SecretLength is the master secret length in bytes.
	SecretLength = 32

	// MasterSaltBytes is the master salt length in raw bytes (hex-encoded
	// it is twice this many characters).
	MasterSaltBytes = 32

	// Prefix marks a derived session key, distinguishing it from legacy
	// fixed API tokens.
	Prefix = "sk_"

	// derivation context string, versioned so a future scheme change can
	// coexist with outstanding keys
	messagePrefix = "session_key_v1:"
)

// MasterSaltHexLen is the expected length of a hex-encoded master salt.
// A principal whose stored salt has any other length predates this scheme.
const MasterSaltHexLen = MasterSaltBytes * 2

// GenerateMasterSalt returns a new random master salt, hex-encoded.
func GenerateMasterSalt() (string, error) {
	buf := make([]byte, MasterSaltBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating master salt: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// ValidMasterSalt reports whether salt looks like a salt generated by
// GenerateMasterSalt. Legacy accounts have an empty or short salt.
func ValidMasterSalt(salt string) bool {
	if len(salt) != MasterSaltHexLen {
		return false
	}
	_, err := hex.DecodeString(salt)
	return err == nil
}

// DeriveMasterSecret derives the 32-byte master secret from the stored
// password hash and the principal's master salt. The derivation is
// deterministic: identical inputs always produce identical output, which is
// what lets session keys be verified without storing them.
func DeriveMasterSecret(passwordHash, masterSalt string) ([]byte, error) {
	salt, err := hex.DecodeString(masterSalt)
	if err != nil {
		return nil, fmt.Errorf("decoding master salt: %w", err)
	}
	if len(salt) != MasterSaltBytes {
		return nil, fmt.Errorf("master salt is %d bytes, want %d", len(salt), MasterSaltBytes)
	}
	return pbkdf2.Key([]byte(passwordHash), salt, PBKDF2Iterations, SecretLength, sha256.New), nil
}

// DeriveSessionKey derives the session key for a specific window from a
// master secret. The key is HMAC-SHA256 over a versioned message containing
// the window index, base64url-encoded without padding and prefixed so
// callers can tell it apart from legacy tokens.
func DeriveSessionKey(masterSecret []byte, windowIndex int64) string {
	mac := hmac.New(sha256.New, masterSecret)
	fmt.Fprintf(mac, "%s%d", messagePrefix, windowIndex)
	return Prefix + base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

// IsSessionKey reports whether the presented credential carries the session
// key marker prefix.
func IsSessionKey(credential string) bool {
	return strings.HasPrefix(credential, Prefix)
}

// WindowIndex returns the session window index containing t.
func WindowIndex(t time.Time) int64 {
	return t.Unix() / WindowSeconds
}

// WindowBounds returns the start, end and grace-period end of a window.
func WindowBounds(index int64) (start, end, graceEnd time.Time) {
	start = time.Unix(index*WindowSeconds, 0).UTC()
	end = start.Add(WindowSeconds * time.Second)
	graceEnd = end.Add(GraceSeconds * time.Second)
	return start, end, graceEnd
}

// WithinGrace reports whether t falls in the opening stretch of its window
// during which the previous window's key is still honored.
func WithinGrace(t time.Time) bool {
	windowStart := WindowIndex(t) * WindowSeconds
	return t.Unix()-windowStart < GraceSeconds
}
