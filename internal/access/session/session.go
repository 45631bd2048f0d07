// Package session issues signed session tokens and keeps the revocation list.
package session

import (
	"context"
	"errors"
	"time"

	"github.com/shandysiswandi/carepass/internal/access/entity"
	"github.com/shandysiswandi/carepass/internal/pkg/clock"
	"github.com/shandysiswandi/carepass/internal/pkg/jwt"
	"github.com/shandysiswandi/carepass/internal/pkg/kvstore"
)

// Issued is a freshly minted token with the metadata needed to revoke it.
type Issued struct {
	Token     string
	TokenID   string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Service issues, validates and revokes session tokens.
type Service struct {
	signer    jwt.Signer
	blacklist kvstore.Store
	clock     clock.Clocker
}

// NewService builds a Service. Revoked token ids live in store under "blacklist:".
func NewService(signer jwt.Signer, store kvstore.Store, clk clock.Clocker) *Service {
	return &Service{
		signer:    signer,
		blacklist: kvstore.Namespace(store, "blacklist:"),
		clock:     clk,
	}
}

// Issue signs a token for subject valid for ttl.
func (s *Service) Issue(_ context.Context, subject string, ttl time.Duration) (Issued, error) {
	token, claims, err := s.signer.Sign(subject, ttl)
	if err != nil {
		return Issued{}, err
	}

	return Issued{
		Token:     token,
		TokenID:   claims.TokenID(),
		IssuedAt:  claims.Issued(),
		ExpiresAt: claims.Expiry(),
	}, nil
}

// Validate checks the signature, then expiry, then the blacklist.
func (s *Service) Validate(ctx context.Context, token string) (jwt.Claims, error) {
	claims, err := s.signer.Parse(token)
	switch {
	case err == nil:
	case errors.Is(err, jwt.ErrSignatureInvalid):
		return jwt.Claims{}, entity.ErrTokenSignatureInvalid
	case errors.Is(err, jwt.ErrTokenExpired):
		return jwt.Claims{}, entity.ErrTokenExpired
	default:
		return jwt.Claims{}, entity.ErrTokenMalformed
	}

	revoked, err := s.blacklist.Exists(ctx, claims.TokenID())
	if err != nil {
		return jwt.Claims{}, err
	}
	if revoked {
		return jwt.Claims{}, entity.ErrTokenRevoked
	}

	return claims, nil
}

// Revoke blacklists tokenID until expiresAt. Tokens already past their
// expiry need no entry.
func (s *Service) Revoke(ctx context.Context, tokenID string, expiresAt time.Time) error {
	if tokenID == "" {
		return entity.ErrTokenMalformed
	}

	remaining := expiresAt.Sub(s.clock.Now())
	if remaining <= 0 {
		return nil
	}

	value, err := kvstore.Encode(entity.BlacklistEntry{TokenID: tokenID, ExpiresAt: expiresAt})
	if err != nil {
		return err
	}

	return s.blacklist.Put(ctx, tokenID, value, remaining)
}
