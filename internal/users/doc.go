// Package users implements the account lifecycle: registration with PGP
// keypair provisioning and login with deterministic session key issuance.
//
// Registration failures after input validation are deliberately opaque so
// responses never confirm whether a username exists. Private key material
// is sealed before it touches the store and unsealed only for the duration
// of an engine invocation.
package users
