// ABOUTME: At-rest encryption for stored private keys and GPG passphrase derivation
// ABOUTME: AES-256-GCM sealing keyed from account-scoped PBKDF2 derivations

package keywrap

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	"golang.org/x/crypto/pbkdf2"
)

// Derivation parameters. Iteration count matches the session key scheme so
// both derivations present the same work factor.
const (
	iterations = 100000
	keyLen     = 32
	saltLen    = 16
	nonceLen   = 12

	passphraseSaltPrefix = "gpg_passphrase_salt_"
)

// ErrMalformedBlob is returned when a sealed blob is too short to contain
// its salt, nonce, and ciphertext.
var ErrMalformedBlob = errors.New("malformed sealed blob")

// DeriveGPGPassphrase derives the passphrase protecting an account's
// private key inside GPG itself. The passphrase is bound to the owner, so
// two accounts sharing a wrapping secret still get distinct passphrases.
func DeriveGPGPassphrase(secret, ownerID string) string {
	salt := sha256.Sum256([]byte(passphraseSaltPrefix + ownerID))
	key := pbkdf2.Key([]byte(secret), salt[:], iterations, keyLen, sha256.New)
	return hex.EncodeToString(key)
}

// Seal encrypts plaintext under a key derived from secret and a fresh
// random salt. Output layout: salt (16) || nonce (12) || ciphertext.
func Seal(secret string, plaintext []byte) ([]byte, error) {
	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("generating salt: %w", err)
	}

	gcm, err := newGCM(secret, salt)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, nonceLen)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generating nonce: %w", err)
	}

	blob := make([]byte, 0, saltLen+nonceLen+len(plaintext)+gcm.Overhead())
	blob = append(blob, salt...)
	blob = append(blob, nonce...)
	blob = gcm.Seal(blob, nonce, plaintext, nil)
	return blob, nil
}

// Open decrypts a blob produced by Seal. A wrong secret or tampered blob
// fails GCM authentication and returns an error.
func Open(secret string, blob []byte) ([]byte, error) {
	if len(blob) < saltLen+nonceLen {
		return nil, ErrMalformedBlob
	}

	salt := blob[:saltLen]
	nonce := blob[saltLen : saltLen+nonceLen]
	ciphertext := blob[saltLen+nonceLen:]

	gcm, err := newGCM(secret, salt)
	if err != nil {
		return nil, err
	}

	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("opening sealed blob: %w", err)
	}
	return plaintext, nil
}

func newGCM(secret string, salt []byte) (cipher.AEAD, error) {
	key := pbkdf2.Key([]byte(secret), salt, iterations, keyLen, sha256.New)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("creating cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("creating gcm: %w", err)
	}
	return gcm, nil
}
