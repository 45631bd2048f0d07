package jwt

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	libJWT "github.com/golang-jwt/jwt/v5"

	"github.com/shandysiswandi/carepass/internal/pkg/clock"
)

type seqID struct{ n int }

func (s *seqID) Generate() string {
	s.n++
	return "jti-" + string(rune('a'+s.n))
}

func newSigner(t *testing.T, clk *clock.Manual) *Symmetric {
	t.Helper()

	s, err := NewHS512(Config{
		Secret:    bytes.Repeat([]byte("k"), 64),
		Issuer:    "carepass",
		Audiences: []string{"carepass-api"},
		Clock:     clk,
		UUID:      &seqID{},
	})
	if err != nil {
		t.Fatalf("NewHS512() error = %v", err)
	}
	return s
}

func TestNewHS512ShortKey(t *testing.T) {
	// Act
	_, err := NewHS512(Config{Secret: []byte("short"), Clock: clock.New()})

	// Assert
	if !errors.Is(err, ErrSigningKeyTooShort) {
		t.Fatalf("expected ErrSigningKeyTooShort, got %v", err)
	}
}

func TestSignParseRoundTrip(t *testing.T) {
	// Arrange
	clk := clock.NewManual(time.Date(2026, 3, 1, 8, 0, 0, 500, time.UTC))
	s := newSigner(t, clk)

	// Act
	token, issued, err := s.Sign("EMP001", 2*time.Minute)
	if err != nil {
		t.Fatalf("Sign() error = %v", err)
	}
	got, err := s.Parse(token)

	// Assert
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if got.Subject != "EMP001" || got.TokenID() != issued.TokenID() {
		t.Fatalf("claims = %+v", got)
	}
	if !got.Expiry().Equal(issued.Expiry()) {
		t.Fatalf("expiry = %v, want %v", got.Expiry(), issued.Expiry())
	}
	if want := time.Date(2026, 3, 1, 8, 2, 0, 0, time.UTC); !got.Expiry().Equal(want) {
		t.Fatalf("expiry = %v, want %v", got.Expiry(), want)
	}
}

func TestParseExpired(t *testing.T) {
	// Arrange
	clk := clock.NewManual(time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC))
	s := newSigner(t, clk)
	token, _, _ := s.Sign("EMP001", time.Minute)

	// Act
	clk.Advance(time.Minute)
	_, err := s.Parse(token)

	// Assert
	if !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}
}

func TestParseSignatureCheckedBeforeExpiry(t *testing.T) {
	// Arrange
	clk := clock.NewManual(time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC))
	s := newSigner(t, clk)
	token, _, _ := s.Sign("EMP001", time.Minute)
	parts := strings.Split(token, ".")
	tampered := parts[0] + "." + parts[1] + "." + strings.Repeat("A", len(parts[2]))

	// Act
	clk.Advance(time.Hour)
	_, err := s.Parse(tampered)

	// Assert
	if !errors.Is(err, ErrSignatureInvalid) {
		t.Fatalf("expected ErrSignatureInvalid, got %v", err)
	}
}

func TestParseMalformed(t *testing.T) {
	// Arrange
	s := newSigner(t, clock.NewManual(time.Now()))

	// Act
	_, err := s.Parse("not-a-token")

	// Assert
	if !errors.Is(err, ErrMalformed) {
		t.Fatalf("expected ErrMalformed, got %v", err)
	}
}

func TestParseRejectsOtherAlgorithm(t *testing.T) {
	// Arrange
	clk := clock.NewManual(time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC))
	s := newSigner(t, clk)
	now := clk.Now()
	token, err := libJWT.NewWithClaims(libJWT.SigningMethodHS256, Claims{
		RegisteredClaims: libJWT.RegisteredClaims{
			ID:        "x",
			Subject:   "EMP001",
			Issuer:    "carepass",
			Audience:  []string{"carepass-api"},
			IssuedAt:  libJWT.NewNumericDate(now),
			ExpiresAt: libJWT.NewNumericDate(now.Add(time.Minute)),
		},
	}).SignedString(bytes.Repeat([]byte("k"), 64))
	if err != nil {
		t.Fatalf("SignedString() error = %v", err)
	}

	// Act
	_, err = s.Parse(token)

	// Assert
	if !errors.Is(err, ErrSignatureInvalid) {
		t.Fatalf("expected ErrSignatureInvalid, got %v", err)
	}
}

func TestAuthContext(t *testing.T) {
	// Arrange
	ctx := t.Context()
	clm := Claims{RegisteredClaims: libJWT.RegisteredClaims{Subject: "PAT0007"}}

	// Act
	before := GetAuth(ctx)
	after := GetAuth(SetAuth(ctx, clm))

	// Assert
	if before != nil {
		t.Fatal("expected no claims on a bare context")
	}
	if after == nil || after.Subject != "PAT0007" {
		t.Fatalf("GetAuth() = %+v", after)
	}
}
