package usecase

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/shandysiswandi/carepass/internal/access/consent"
	"github.com/shandysiswandi/carepass/internal/access/entity"
	"github.com/shandysiswandi/carepass/internal/access/guard"
	"github.com/shandysiswandi/carepass/internal/access/otp"
	"github.com/shandysiswandi/carepass/internal/access/outbound/directory"
	"github.com/shandysiswandi/carepass/internal/access/session"
	"github.com/shandysiswandi/carepass/internal/pkg/authz"
	"github.com/shandysiswandi/carepass/internal/pkg/clock"
	"github.com/shandysiswandi/carepass/internal/pkg/config"
	"github.com/shandysiswandi/carepass/internal/pkg/goerror"
	"github.com/shandysiswandi/carepass/internal/pkg/hash"
	"github.com/shandysiswandi/carepass/internal/pkg/instrument"
	"github.com/shandysiswandi/carepass/internal/pkg/jwt"
	"github.com/shandysiswandi/carepass/internal/pkg/kvstore"
	"github.com/shandysiswandi/carepass/internal/pkg/uid"
	"github.com/shandysiswandi/carepass/internal/pkg/validator"
)

type inbox struct {
	mu    sync.Mutex
	codes map[string]string
	sent  int
}

func (b *inbox) Deliver(_ context.Context, d entity.Delivery) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.codes == nil {
		b.codes = map[string]string{}
	}
	b.codes[d.Channel] = d.Code
	b.sent++
	return nil
}

func (b *inbox) code(channel string) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.codes[channel]
}

type fixture struct {
	uc       *Usecase
	clk      *clock.Manual
	box      *inbox
	sessions *session.Service
}

const testConfig = `
session:
  ttl_seconds: 120
`

func newFixture(t *testing.T) fixture {
	t.Helper()

	clk := clock.NewManual(time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC))
	store := kvstore.NewMemory(clk)
	box := &inbox{}
	hasher := hash.NewHMACSHA256("pepper")

	cfg, err := config.NewViperFromBytes("yaml", []byte(testConfig))
	if err != nil {
		t.Fatalf("NewViperFromBytes() error = %v", err)
	}
	v, err := validator.NewV10Validator()
	if err != nil {
		t.Fatalf("NewV10Validator() error = %v", err)
	}

	loginOTP, err := otp.NewEngine(otp.Config{Purpose: entity.PurposeLogin, Length: 6, TTL: 120 * time.Second, MaxAttempts: 3},
		otp.Dependency{Store: store, Hasher: hasher, Clock: clk, Deliverer: box})
	if err != nil {
		t.Fatalf("NewEngine(login) error = %v", err)
	}
	consentOTP, err := otp.NewEngine(otp.Config{Purpose: entity.PurposeConsent, Length: 6, TTL: 5 * time.Minute, MaxAttempts: 3},
		otp.Dependency{Store: store, Hasher: hasher, Clock: clk, Deliverer: box})
	if err != nil {
		t.Fatalf("NewEngine(consent) error = %v", err)
	}

	signer, err := jwt.NewHS512(jwt.Config{Secret: bytes.Repeat([]byte("s"), 64), Issuer: "carepass", Clock: clk, UUID: uid.NewUUID()})
	if err != nil {
		t.Fatalf("NewHS512() error = %v", err)
	}
	sessions := session.NewService(signer, store, clk)

	dir, err := directory.NewMemory([]entity.Principal{
		{ID: "EMP001", Kind: entity.PrincipalKindOperator, Name: "Alice", Identifiers: []string{"alice"}, Contacts: []string{"alice@clinic.test"}},
		{ID: "PAT0007", Kind: entity.PrincipalKindSubject, Name: "Bob", Identifiers: []string{"+1-555-0100"}, Contacts: []string{"+1-555-0100"}},
		{ID: "PAT0099", Kind: entity.PrincipalKindSubject, Name: "Carol", Contacts: []string{"+1-555-0199"}},
	})
	if err != nil {
		t.Fatalf("directory.NewMemory() error = %v", err)
	}

	ids, _ := uid.NewSnowflake(3)
	grants, err := consent.NewManager(consent.Config{GrantTTL: 15 * time.Minute, RequireRegisteredChannel: true}, consent.Dependency{
		Engine: consentOTP, Store: store, Directory: dir, Clock: clk, IDs: ids,
	})
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}

	policy, err := authz.NewFromStrings([]string{"operator:record:read", "operator:consent:*", "subject:record:read"})
	if err != nil {
		t.Fatalf("authz.NewFromStrings() error = %v", err)
	}

	uc := New(Dependency{
		LoginOTP:   loginOTP,
		ConsentTTL: consentOTP.TTL(),
		Sessions:   sessions,
		Consent:    grants,
		Guard:      guard.New(sessions, dir, policy, grants),
		Directory:  dir,
		Validator:  v,
		Config:     cfg,
		Clock:      clk,
		Instrument: instrument.NewNoop(),
	})

	return fixture{uc: uc, clk: clk, box: box, sessions: sessions}
}

// login runs the OTP login for identifier and returns a context carrying
// the authenticated claims, as the router would.
func (f fixture) login(t *testing.T, identifier, channel string) (context.Context, *VerifyOTPOutput) {
	t.Helper()
	ctx := context.Background()

	if _, err := f.uc.RequestOTP(ctx, RequestOTPInput{Identifier: identifier}); err != nil {
		t.Fatalf("RequestOTP() error = %v", err)
	}
	out, err := f.uc.VerifyOTP(ctx, VerifyOTPInput{Identifier: identifier, OTP: f.box.code(channel)})
	if err != nil {
		t.Fatalf("VerifyOTP() error = %v", err)
	}
	claims, err := f.uc.Authenticate(ctx, "Bearer "+out.AccessToken)
	if err != nil {
		t.Fatalf("Authenticate() error = %v", err)
	}
	return jwt.SetAuth(ctx, claims), out
}

func reasonOf(t *testing.T, err error) (string, int) {
	t.Helper()
	var ge *goerror.Error
	if !errors.As(err, &ge) {
		t.Fatalf("expected *goerror.Error, got %T (%v)", err, err)
	}
	return ge.Reason(), ge.StatusCode()
}

func TestLoginLogoutScenario(t *testing.T) {
	// Arrange
	f := newFixture(t)
	ctx := context.Background()

	// Act
	req, err := f.uc.RequestOTP(ctx, RequestOTPInput{Identifier: "alice"})
	if err != nil {
		t.Fatalf("RequestOTP() error = %v", err)
	}
	authCtx, out := f.login(t, "alice", "alice@clinic.test")
	logoutErr := f.uc.Logout(authCtx)
	_, validateErr := f.sessions.Validate(ctx, out.AccessToken)
	_, authErr := f.uc.Authenticate(ctx, "Bearer "+out.AccessToken)

	// Assert
	if req.ExpiresIn != 120 {
		t.Fatalf("ExpiresIn = %d, want 120", req.ExpiresIn)
	}
	if out.ExpiresIn != 120 || out.TokenType != "Bearer" || out.Subject != "EMP001" || out.Kind != entity.PrincipalKindOperator {
		t.Fatalf("VerifyOTP() = %+v", out)
	}
	if logoutErr != nil {
		t.Fatalf("Logout() error = %v", logoutErr)
	}
	if !errors.Is(validateErr, entity.ErrTokenRevoked) {
		t.Fatalf("Validate() after logout error = %v, want revoked", validateErr)
	}
	if reason, code := reasonOf(t, authErr); reason != "unauthorized" || code != http.StatusUnauthorized {
		t.Fatalf("Authenticate() after logout = %s/%d", reason, code)
	}
}

func TestRequestOTPDoesNotEnumerate(t *testing.T) {
	// Arrange
	f := newFixture(t)
	ctx := context.Background()

	// Act
	known, knownErr := f.uc.RequestOTP(ctx, RequestOTPInput{Identifier: "alice"})
	unknown, unknownErr := f.uc.RequestOTP(ctx, RequestOTPInput{Identifier: "mallory"})

	// Assert
	if knownErr != nil || unknownErr != nil {
		t.Fatalf("RequestOTP() errors = %v, %v", knownErr, unknownErr)
	}
	if *known != *unknown {
		t.Fatalf("responses differ: %+v vs %+v", known, unknown)
	}
	if f.box.sent != 1 {
		t.Fatalf("deliveries = %d, want 1", f.box.sent)
	}
}

func TestVerifyOTPFailures(t *testing.T) {
	ctx := context.Background()

	t.Run("unknown identifier is invalid", func(t *testing.T) {
		// Arrange
		f := newFixture(t)

		// Act
		_, err := f.uc.VerifyOTP(ctx, VerifyOTPInput{Identifier: "mallory", OTP: "123456"})

		// Assert
		if reason, code := reasonOf(t, err); reason != "invalid" || code != http.StatusUnauthorized {
			t.Fatalf("got %s/%d", reason, code)
		}
	})

	t.Run("expired", func(t *testing.T) {
		// Arrange
		f := newFixture(t)
		_, _ = f.uc.RequestOTP(ctx, RequestOTPInput{Identifier: "alice"})
		f.clk.Advance(121 * time.Second)

		// Act
		_, err := f.uc.VerifyOTP(ctx, VerifyOTPInput{Identifier: "alice", OTP: f.box.code("alice@clinic.test")})

		// Assert
		if reason, _ := reasonOf(t, err); reason != "expired" {
			t.Fatalf("reason = %s, want expired", reason)
		}
	})

	t.Run("too many attempts", func(t *testing.T) {
		// Arrange
		f := newFixture(t)
		_, _ = f.uc.RequestOTP(ctx, RequestOTPInput{Identifier: "alice"})
		wrong := "000000"
		if f.box.code("alice@clinic.test") == wrong {
			wrong = "999999"
		}

		// Act
		_, first := f.uc.VerifyOTP(ctx, VerifyOTPInput{Identifier: "alice", OTP: wrong})
		_, _ = f.uc.VerifyOTP(ctx, VerifyOTPInput{Identifier: "alice", OTP: wrong})
		_, third := f.uc.VerifyOTP(ctx, VerifyOTPInput{Identifier: "alice", OTP: wrong})

		// Assert
		if reason, _ := reasonOf(t, first); reason != "invalid" {
			t.Fatalf("first reason = %s", reason)
		}
		if reason, code := reasonOf(t, third); reason != "too_many_attempts" || code != http.StatusTooManyRequests {
			t.Fatalf("third = %s/%d", reason, code)
		}
	})

	t.Run("validation", func(t *testing.T) {
		// Arrange
		f := newFixture(t)

		// Act
		_, err := f.uc.VerifyOTP(ctx, VerifyOTPInput{Identifier: "alice", OTP: "12ab"})

		// Assert
		if _, code := reasonOf(t, err); code != http.StatusUnprocessableEntity {
			t.Fatalf("code = %d, want 422", code)
		}
	})
}

func TestConsentScenario(t *testing.T) {
	// Arrange
	f := newFixture(t)
	opCtx, _ := f.login(t, "alice", "alice@clinic.test")

	// Act
	_, beforeErr := f.uc.ReadRecord(opCtx, ReadRecordInput{SubjectID: "PAT0007"})
	req, reqErr := f.uc.RequestConsentOTP(opCtx, RequestConsentOTPInput{SubjectID: "PAT0007", Channel: "+1-555-0100"})
	granted, verifyErr := f.uc.VerifyConsentOTP(opCtx, VerifyConsentOTPInput{Channel: "+1-555-0100", OTP: f.box.code("+1-555-0100")})
	rec, readErr := f.uc.ReadRecord(opCtx, ReadRecordInput{SubjectID: "PAT0007"})
	_, otherErr := f.uc.ReadRecord(opCtx, ReadRecordInput{SubjectID: "PAT0099"})
	status, statusErr := f.uc.ConsentStatus(opCtx)

	// Assert
	if reason, code := reasonOf(t, beforeErr); reason != "access_required" || code != http.StatusForbidden {
		t.Fatalf("read before consent = %s/%d", reason, code)
	}
	if reqErr != nil || req.ExpiresIn != 300 {
		t.Fatalf("RequestConsentOTP() = %+v, %v", req, reqErr)
	}
	if verifyErr != nil || granted.SubjectID != "PAT0007" {
		t.Fatalf("VerifyConsentOTP() = %+v, %v", granted, verifyErr)
	}
	if readErr != nil || rec.Access != "consent" || rec.Name != "Bob" {
		t.Fatalf("ReadRecord(PAT0007) = %+v, %v", rec, readErr)
	}
	if reason, code := reasonOf(t, otherErr); reason != "subject_mismatch" || code != http.StatusForbidden {
		t.Fatalf("ReadRecord(PAT0099) = %s/%d", reason, code)
	}
	if statusErr != nil || status.Status != ConsentStatusActive || status.SubjectID != "PAT0007" {
		t.Fatalf("ConsentStatus() = %+v, %v", status, statusErr)
	}
}

func TestConsentExpiresAndRevokes(t *testing.T) {
	// Arrange
	f := newFixture(t)
	opCtx, _ := f.login(t, "alice", "alice@clinic.test")
	_, _ = f.uc.RequestConsentOTP(opCtx, RequestConsentOTPInput{SubjectID: "PAT0007", Channel: "+1-555-0100"})
	_, _ = f.uc.VerifyConsentOTP(opCtx, VerifyConsentOTPInput{Channel: "+1-555-0100", OTP: f.box.code("+1-555-0100")})

	// Act
	revokeErr := f.uc.RevokeConsent(opCtx)
	_, afterRevoke := f.uc.ReadRecord(opCtx, ReadRecordInput{SubjectID: "PAT0007"})
	status, _ := f.uc.ConsentStatus(opCtx)

	// Assert
	if revokeErr != nil {
		t.Fatalf("RevokeConsent() error = %v", revokeErr)
	}
	if reason, _ := reasonOf(t, afterRevoke); reason != "access_required" {
		t.Fatalf("read after revoke reason = %s", reason)
	}
	if status.Status != ConsentStatusNone {
		t.Fatalf("status = %s, want none", status.Status)
	}
}

func TestGrantCappedBySessionLifetime(t *testing.T) {
	// Arrange
	f := newFixture(t)
	opCtx, out := f.login(t, "alice", "alice@clinic.test")
	_, _ = f.uc.RequestConsentOTP(opCtx, RequestConsentOTPInput{SubjectID: "PAT0007", Channel: "+1-555-0100"})

	// Act
	granted, err := f.uc.VerifyConsentOTP(opCtx, VerifyConsentOTPInput{Channel: "+1-555-0100", OTP: f.box.code("+1-555-0100")})

	// Assert
	if err != nil {
		t.Fatalf("VerifyConsentOTP() error = %v", err)
	}
	if !granted.ExpiresAt.Equal(out.ExpiresAt) {
		t.Fatalf("grant expires %v, session %v", granted.ExpiresAt, out.ExpiresAt)
	}
}

func TestSubjectAccess(t *testing.T) {
	// Arrange
	f := newFixture(t)
	subjCtx, _ := f.login(t, "+1-555-0100", "+1-555-0100")

	// Act
	own, ownErr := f.uc.ReadRecord(subjCtx, ReadRecordInput{SubjectID: "PAT0007"})
	_, otherErr := f.uc.ReadRecord(subjCtx, ReadRecordInput{SubjectID: "PAT0099"})
	_, consentErr := f.uc.RequestConsentOTP(subjCtx, RequestConsentOTPInput{SubjectID: "PAT0099", Channel: "+1-555-0199"})

	// Assert
	if ownErr != nil || own.Access != "self" {
		t.Fatalf("own record = %+v, %v", own, ownErr)
	}
	if reason, code := reasonOf(t, otherErr); reason != "unauthorized" || code != http.StatusForbidden {
		t.Fatalf("other record = %s/%d", reason, code)
	}
	if _, code := reasonOf(t, consentErr); code != http.StatusForbidden {
		t.Fatalf("subject consent request code = %d", code)
	}
}

func TestConsentRequestDoesNotEnumerateSubjects(t *testing.T) {
	// Arrange
	f := newFixture(t)
	opCtx, _ := f.login(t, "alice", "alice@clinic.test")
	sentBefore := f.box.sent

	// Act
	unknown, unknownErr := f.uc.RequestConsentOTP(opCtx, RequestConsentOTPInput{SubjectID: "PAT4040", Channel: "+1-555-0100"})
	foreign, foreignErr := f.uc.RequestConsentOTP(opCtx, RequestConsentOTPInput{SubjectID: "PAT0007", Channel: "+1-555-0199"})

	// Assert
	if unknownErr != nil || foreignErr != nil {
		t.Fatalf("errors = %v, %v", unknownErr, foreignErr)
	}
	if unknown.ExpiresIn != 300 || foreign.ExpiresIn != 300 {
		t.Fatalf("ExpiresIn = %d, %d", unknown.ExpiresIn, foreign.ExpiresIn)
	}
	if f.box.sent != sentBefore {
		t.Fatalf("codes were delivered for rejected requests")
	}
}

func TestUnauthenticatedCalls(t *testing.T) {
	// Arrange
	f := newFixture(t)
	ctx := context.Background()

	// Act
	logoutErr := f.uc.Logout(ctx)
	_, readErr := f.uc.ReadRecord(ctx, ReadRecordInput{SubjectID: "PAT0007"})
	_, authErr := f.uc.Authenticate(ctx, "Bearer not-a-token")

	// Assert
	for _, err := range []error{logoutErr, readErr, authErr} {
		if reason, code := reasonOf(t, err); reason != "unauthorized" || code != http.StatusUnauthorized {
			t.Fatalf("got %s/%d", reason, code)
		}
	}
}

func TestMapError(t *testing.T) {
	tests := []struct {
		err    error
		reason string
		code   int
	}{
		{err: entity.ErrOTPNotFound, reason: "invalid", code: http.StatusUnauthorized},
		{err: entity.ErrOTPExpired, reason: "expired", code: http.StatusUnauthorized},
		{err: entity.ErrGrantExpired, reason: "access_expired", code: http.StatusForbidden},
		{err: entity.ErrTokenRevoked, reason: "unauthorized", code: http.StatusUnauthorized},
		{err: kvstore.ErrUnavailable, reason: "unavailable", code: http.StatusServiceUnavailable},
		{err: errors.New("boom"), reason: "", code: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			// Act
			reason, code := reasonOf(t, mapError(tt.err))

			// Assert
			if reason != tt.reason || code != tt.code {
				t.Fatalf("mapError(%v) = %s/%d, want %s/%d", tt.err, reason, code, tt.reason, tt.code)
			}
		})
	}
}
