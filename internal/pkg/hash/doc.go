// Package hash derives salted digests of short-lived secrets.
//
// Callers generate a fresh random salt per secret, store only Sum(salt,
// secret) next to the salt, and later compare a candidate with Equal. The
// plaintext secret is never persisted.
package hash
