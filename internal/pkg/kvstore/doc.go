// Package kvstore is an expiring key-value store.
//
// Every value carries a TTL and is invisible once the TTL has elapsed, whether
// or not a background sweep has removed it yet. Update gives callers an atomic
// read-modify-write on a single key, which is what OTP attempt counting needs.
//
// Two backends exist: Memory for single-process deployments and tests, and
// Redis for deployments where several instances share state.
package kvstore
