package otp

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"

	"github.com/pquerna/otp"
)

const (
	// MinLength is the shortest code NewNumeric accepts.
	MinLength = 4
	// MaxLength is the longest code NewNumeric accepts.
	MaxLength = 9
)

// ErrLength is returned for a code length outside [MinLength, MaxLength].
var ErrLength = errors.New("otp: code length out of range")

// Generator produces one-time passcodes.
type Generator interface {
	Generate() (string, error)
	Length() int
}

// Numeric generates zero-padded decimal codes.
type Numeric struct {
	digits otp.Digits
	max    *big.Int
}

// NewNumeric returns a generator for codes of the given length.
func NewNumeric(length int) (*Numeric, error) {
	if length < MinLength || length > MaxLength {
		return nil, fmt.Errorf("%w: %d", ErrLength, length)
	}

	mx := big.NewInt(1)
	for range length {
		mx.Mul(mx, big.NewInt(10))
	}

	return &Numeric{digits: otp.Digits(length), max: mx}, nil
}

// Generate returns a uniformly random code.
func (n *Numeric) Generate() (string, error) {
	v, err := rand.Int(rand.Reader, n.max)
	if err != nil {
		return "", fmt.Errorf("otp: read random: %w", err)
	}
	return n.digits.Format(int32(v.Int64())), nil
}

// Length returns the number of digits per code.
func (n *Numeric) Length() int {
	return n.digits.Length()
}
