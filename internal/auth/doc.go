// Package auth provides authentication for gpg-gateway.
//
// # Authentication Methods
//
// The gateway accepts two credential formats, distinguished by prefix:
//
//   - Session keys (sk_...): deterministic, hourly-windowed keys verified
//     by re-derivation from the principal's password hash and master salt.
//     A username must accompany the key, since the key itself doesn't say
//     whose salt to use.
//
//   - Legacy fixed tokens: opaque API tokens from accounts that predate the
//     deterministic scheme, looked up by SHA-256 hash. No expiry, no window
//     logic; kept purely for backward compatibility.
//
// # Enumeration resistance
//
// All failures surface as ErrInvalidCredentials. The specific reason (no
// such principal, legacy account on the wrong path, key mismatch) is
// logged and audited but never returned. Session key verification derives
// both candidate window keys unconditionally and compares in constant time.
//
// # Admin tokens
//
// Operators authenticate to the admin surface with HS256 JWTs signed with
// the configured secret, a separate mechanism from principal credentials.
package auth
