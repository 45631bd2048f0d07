package jwt

import (
	"errors"
	"time"

	libJWT "github.com/golang-jwt/jwt/v5"
)

// Symmetric implements Signer using an HMAC secret.
type Symmetric struct {
	secret    []byte
	issuer    string
	audiences []string
	clock     clocker
	uuid      generator
	parser    *libJWT.Parser
}

// NewHS512 constructs a Symmetric signer using HS512.
func NewHS512(cfg Config) (*Symmetric, error) {
	if len(cfg.Secret) < 64 {
		return nil, ErrSigningKeyTooShort
	}

	opts := []libJWT.ParserOption{
		libJWT.WithValidMethods([]string{libJWT.SigningMethodHS512.Alg()}),
		libJWT.WithTimeFunc(cfg.Clock.Now),
		libJWT.WithIssuedAt(),
		libJWT.WithExpirationRequired(),
	}
	if cfg.Issuer != "" {
		opts = append(opts, libJWT.WithIssuer(cfg.Issuer))
	}
	if len(cfg.Audiences) > 0 {
		opts = append(opts, libJWT.WithAudience(cfg.Audiences...))
	}

	return &Symmetric{
		secret:    cfg.Secret,
		issuer:    cfg.Issuer,
		audiences: cfg.Audiences,
		clock:     cfg.Clock,
		uuid:      cfg.UUID,
		parser:    libJWT.NewParser(opts...),
	}, nil
}

// Sign creates a signed token for subject.
//
// Timestamps are truncated to whole seconds, the precision of NumericDate, so
// the returned claims match what Parse will later report.
func (s *Symmetric) Sign(subject string, ttl time.Duration) (string, Claims, error) {
	now := s.clock.Now().Truncate(time.Second)

	claims := Claims{
		RegisteredClaims: libJWT.RegisteredClaims{
			ID:        s.uuid.Generate(),
			Subject:   subject,
			Issuer:    s.issuer,
			Audience:  s.audiences,
			IssuedAt:  libJWT.NewNumericDate(now),
			NotBefore: libJWT.NewNumericDate(now),
			ExpiresAt: libJWT.NewNumericDate(now.Add(ttl)),
		},
	}

	token, err := libJWT.NewWithClaims(libJWT.SigningMethodHS512, claims).SignedString(s.secret)
	if err != nil {
		return "", Claims{}, err
	}

	return token, claims, nil
}

// Parse verifies and decodes a token.
func (s *Symmetric) Parse(tokenStr string) (Claims, error) {
	var claims Claims

	token, err := s.parser.ParseWithClaims(tokenStr, &claims, func(*libJWT.Token) (any, error) {
		return s.secret, nil
	})
	if err != nil {
		switch {
		case errors.Is(err, libJWT.ErrTokenMalformed), errors.Is(err, libJWT.ErrTokenUnverifiable):
			return Claims{}, ErrMalformed
		case errors.Is(err, libJWT.ErrTokenSignatureInvalid):
			return Claims{}, ErrSignatureInvalid
		case errors.Is(err, libJWT.ErrTokenExpired):
			return Claims{}, ErrTokenExpired
		default:
			return Claims{}, ErrInvalidClaims
		}
	}

	if !token.Valid || claims.ID == "" || claims.Subject == "" {
		return Claims{}, ErrInvalidClaims
	}

	return claims, nil
}
