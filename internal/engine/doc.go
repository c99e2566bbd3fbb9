// Package engine adapts the external gpg binary for per-request OpenPGP
// operations.
//
// # Isolation discipline
//
// Every operation, from signing through keypair generation, runs inside a
// freshly created ephemeral keyring directory that is deleted
// on every exit path, including timeouts. Keyrings are never shared, reused
// or pooled, so key material from one request is unreachable from any other.
//
// Subprocess environments are scrubbed: GNUPGHOME is pinned to the
// ephemeral home, and agent/display/TTY variables are removed so an
// already-running gpg-agent cannot serve a cached passphrase or raise an
// interactive prompt. Before sign and decrypt, any background agent is
// additionally killed via gpgconf.
//
// Passphrases are delivered over the subprocess's stdin with loopback
// pinentry and never appear on a command line or in an environment
// variable, both of which are visible to other processes on the host.
//
// # Failure model
//
// Any non-zero exit, missing output, timeout, or malformed fingerprint is
// an *EngineError carrying the engine's stderr. Verification is the one
// soft path: a failed public key import or a bad signature yields
// (false, nil) rather than an error.
package engine
