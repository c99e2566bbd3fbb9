// Package challenge implements single-use proof-of-possession challenges.
//
// A challenge is a random nonce stored against an account. The holder of
// the account's private key signs the nonce and submits the detached
// signature; a successful or failed verification both consume the
// challenge, so each nonce is usable exactly once. Stale challenges are
// pruned opportunistically whenever a new one is created.
package challenge
