// Package store provides SQLite persistence for gpg-gateway.
//
// # Entities
//
//   - Principal: an account (human or AI agent) with a password hash, a
//     master salt for deterministic session keys, and optionally a legacy
//     fixed-token hash.
//   - KeyMaterial: one public and at most one private PGP key per principal.
//     Private key bytes are encrypted before they reach this layer.
//   - Challenge: single-use proof-of-possession nonces.
//   - AuditEntry: append-only record of authentication and key operations.
//
// # Design
//
// The store uses modernc.org/sqlite (pure Go, no cgo) with WAL mode and
// foreign keys enabled. Deleting a principal cascades to its keys and
// challenges. Timestamps are stored as RFC3339 strings in UTC.
//
// Consumers depend on the narrow per-concern interfaces (PrincipalStore,
// KeyStore, ChallengeStore, AuditStore) rather than on *SQLiteStore, which
// keeps services testable against fakes.
//
// Missing rows are reported as ErrNotFound so callers can distinguish
// absence from infrastructure failure with errors.Is.
package store
