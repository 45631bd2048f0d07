package entity

import (
	"time"

	"github.com/shandysiswandi/carepass/internal/pkg/jwt"
)

// Session is the verified view of a session token.
type Session struct {
	Subject   string
	TokenID   string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// SessionFromClaims converts parsed token claims.
func SessionFromClaims(c jwt.Claims) Session {
	return Session{
		Subject:   c.Subject,
		TokenID:   c.TokenID(),
		IssuedAt:  c.Issued(),
		ExpiresAt: c.Expiry(),
	}
}

// BlacklistEntry marks a revoked token until its natural expiry.
type BlacklistEntry struct {
	TokenID   string    `cbor:"1,keyasint"`
	ExpiresAt time.Time `cbor:"2,keyasint"`
}
