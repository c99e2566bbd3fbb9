// Package keywrap encrypts private key material before it reaches the
// database and derives the GPG-level passphrases protecting those keys.
// Both operations key off a caller-supplied secret, so the server never
// needs a standing master key of its own.
package keywrap
