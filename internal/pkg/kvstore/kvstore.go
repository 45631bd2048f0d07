package kvstore

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when a key is absent or has expired.
	ErrNotFound = errors.New("kvstore: key not found")

	// ErrUnavailable wraps backend failures (network, timeouts, contention).
	ErrUnavailable = errors.New("kvstore: backend unavailable")

	// ErrInvalidTTL is returned by writes with a non-positive TTL.
	ErrInvalidTTL = errors.New("kvstore: ttl must be positive")
)

// Action tells Update what to do with the key after the callback ran.
type Action int

const (
	// Keep leaves the stored value untouched.
	Keep Action = iota
	// Replace overwrites the value and keeps the remaining TTL.
	Replace
	// Remove deletes the key.
	Remove
)

// Mutation is the result of an UpdateFunc.
type Mutation struct {
	Action Action
	Value  []byte
}

// UpdateFunc inspects the current value and decides its fate.
//
// It may be invoked more than once when the backend retries on contention, so
// it must not have side effects beyond the variables it captures. A non-nil
// error aborts the update without changing the key.
type UpdateFunc func(current []byte) (Mutation, error)

// Store is an expiring key-value store.
type Store interface {
	// Put stores value under key, replacing any previous value and TTL.
	Put(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Add stores value only when key is absent. It reports whether it wrote.
	Add(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)

	// Get returns the live value or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Exists reports whether key holds a live value.
	Exists(ctx context.Context, key string) (bool, error)

	// Update runs fn against the live value of key atomically with respect to
	// every other operation on the same key. It returns ErrNotFound, without
	// calling fn, when the key is absent.
	Update(ctx context.Context, key string, fn UpdateFunc) error
}

// KeepMutation leaves the key untouched.
func KeepMutation() Mutation { return Mutation{Action: Keep} }

// ReplaceMutation overwrites the value, preserving the TTL.
func ReplaceMutation(value []byte) Mutation { return Mutation{Action: Replace, Value: value} }

// RemoveMutation deletes the key.
func RemoveMutation() Mutation { return Mutation{Action: Remove} }
