package hash

import (
	"golang.org/x/crypto/argon2"
)

// Argon2id derives the digest with Argon2id.
type Argon2id struct {
	memory      uint32
	iterations  uint32
	parallelism uint8
	keyLength   uint32
	pepper      []byte
}

// NewArgon2id returns an Argon2id hasher sized for per-request use.
func NewArgon2id(pepper string) *Argon2id {
	return &Argon2id{
		memory:      16 * 1024,
		iterations:  2,
		parallelism: 2,
		keyLength:   32,
		pepper:      []byte(pepper),
	}
}

// Sum returns the derived key.
func (a *Argon2id) Sum(salt, secret []byte) []byte {
	pw := make([]byte, 0, len(secret)+len(a.pepper))
	pw = append(pw, secret...)
	pw = append(pw, a.pepper...)

	return argon2.IDKey(pw, salt, a.iterations, a.memory, a.parallelism, a.keyLength)
}
