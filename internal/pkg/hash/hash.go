package hash

import (
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownAlgorithm is returned by New for an unsupported algorithm name.
var ErrUnknownAlgorithm = errors.New("hash: unknown algorithm")

// Hasher computes a keyed digest of secret under salt.
type Hasher interface {
	Sum(salt, secret []byte) []byte
}

// New builds a Hasher from its configured name.
func New(algorithm, pepper string) (Hasher, error) {
	switch strings.ToLower(strings.TrimSpace(algorithm)) {
	case "", "hmac-sha256", "hmac_sha256":
		return NewHMACSHA256(pepper), nil
	case "argon2id":
		return NewArgon2id(pepper), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownAlgorithm, algorithm)
	}
}

// Salt returns n bytes from crypto/rand.
func Salt(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}
	return b, nil
}

// Equal reports whether two digests match, in constant time.
func Equal(a, b []byte) bool {
	if len(a) == 0 || len(b) == 0 {
		return false
	}
	return subtle.ConstantTimeCompare(a, b) == 1
}
