package jwt

import (
	"context"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrSigningKeyTooShort is returned when the HS512 signing key is less than 64 bytes.
	ErrSigningKeyTooShort = errors.New("HS512 signing key must be at least 64 bytes (512 bits)")

	// ErrMalformed is returned when the token cannot be decoded or uses another algorithm.
	ErrMalformed = errors.New("malformed token")

	// ErrSignatureInvalid is returned when the signature does not verify.
	ErrSignatureInvalid = errors.New("token signature is invalid")

	// ErrTokenExpired is returned when the token has expired.
	ErrTokenExpired = errors.New("token has expired")

	// ErrInvalidClaims is returned when a correctly signed token carries
	// claims this service does not accept (issuer, audience, nbf).
	ErrInvalidClaims = errors.New("token claims are invalid")
)

// Signer issues and parses tokens.
type Signer interface {
	// Sign creates a signed token for subject that expires after ttl.
	Sign(subject string, ttl time.Duration) (string, Claims, error)
	// Parse verifies the signature first, then the claims.
	Parse(token string) (Claims, error)
}

type clocker interface {
	Now() time.Time
}

type generator interface {
	Generate() string
}

type authContextKey struct{}

// Config defines the inputs for building a Signer.
type Config struct {
	// Secret is the HMAC signing key.
	Secret []byte
	// Issuer is the token issuer value.
	Issuer string
	// Audiences are the accepted token audiences.
	Audiences []string
	// Clock provides the current time source.
	Clock clocker
	// UUID generates token IDs.
	UUID generator
}

// Claims is the decoded content of a session token.
type Claims struct {
	jwt.RegisteredClaims
}

// TokenID returns the jti.
func (c Claims) TokenID() string {
	return c.ID
}

// Expiry returns exp as a time, or the zero time when absent.
func (c Claims) Expiry() time.Time {
	if c.ExpiresAt == nil {
		return time.Time{}
	}
	return c.ExpiresAt.Time
}

// Issued returns iat as a time, or the zero time when absent.
func (c Claims) Issued() time.Time {
	if c.IssuedAt == nil {
		return time.Time{}
	}
	return c.IssuedAt.Time
}

// GetAuth returns the claims stored in the context, if any.
func GetAuth(ctx context.Context) *Claims {
	clm, ok := ctx.Value(authContextKey{}).(Claims)
	if !ok {
		return nil
	}

	return &clm
}

// SetAuth stores claims in the context.
func SetAuth(ctx context.Context, clm Claims) context.Context {
	return context.WithValue(ctx, authContextKey{}, clm)
}
