package hash

import (
	"crypto/hmac"
	"crypto/sha256"
)

// HMACSHA256 keys an HMAC-SHA256 with the salt (and optional pepper) and
// feeds it the secret.
type HMACSHA256 struct {
	pepper []byte
}

// NewHMACSHA256 creates a new hasher. pepper may be empty.
func NewHMACSHA256(pepper string) *HMACSHA256 {
	return &HMACSHA256{pepper: []byte(pepper)}
}

// Sum returns the raw 32-byte digest.
func (s *HMACSHA256) Sum(salt, secret []byte) []byte {
	key := make([]byte, 0, len(salt)+len(s.pepper))
	key = append(key, salt...)
	key = append(key, s.pepper...)

	h := hmac.New(sha256.New, key)
	h.Write(secret)
	return h.Sum(nil)
}
