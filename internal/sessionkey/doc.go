// Package sessionkey implements deterministic, time-windowed session key
// derivation.
//
// # Scheme
//
// A principal's session key for a given hour is
//
//	master = PBKDF2-HMAC-SHA256(passwordHash, masterSalt, 100000, 32)
//	key    = "sk_" + base64url(HMAC-SHA256(master, "session_key_v1:" + windowIndex))
//
// where windowIndex is floor(unixTime / 3600). Because the derivation is a
// pure function of stored state and the clock, the server never stores a
// session key: verification re-derives the expected key and compares. A
// caller can always reconstruct its current key by re-authenticating with
// its password.
//
// # Windows and grace
//
// Keys roll over hourly. For the first ten minutes of a new window the
// previous window's key is still accepted, so a caller holding a key issued
// just before the boundary is not cut off mid-operation.
//
// All functions in this package are pure; nothing here performs I/O or holds
// state.
package sessionkey
