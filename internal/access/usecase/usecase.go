package usecase

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/shandysiswandi/carepass/internal/access/entity"
	"github.com/shandysiswandi/carepass/internal/access/guard"
	"github.com/shandysiswandi/carepass/internal/access/otp"
	"github.com/shandysiswandi/carepass/internal/access/session"
	"github.com/shandysiswandi/carepass/internal/pkg/clock"
	"github.com/shandysiswandi/carepass/internal/pkg/config"
	"github.com/shandysiswandi/carepass/internal/pkg/goerror"
	"github.com/shandysiswandi/carepass/internal/pkg/instrument"
	"github.com/shandysiswandi/carepass/internal/pkg/jwt"
	"github.com/shandysiswandi/carepass/internal/pkg/kvstore"
	"github.com/shandysiswandi/carepass/internal/pkg/validator"
	"go.opentelemetry.io/otel/trace"
)

const defaultSessionTTL = 30 * time.Minute

type otpEngine interface {
	Request(ctx context.Context, in otp.RequestInput) (time.Duration, error)
	Verify(ctx context.Context, in otp.VerifyInput) (otp.Result, error)
	TTL() time.Duration
}

type sessionService interface {
	Issue(ctx context.Context, subject string, ttl time.Duration) (session.Issued, error)
	Revoke(ctx context.Context, tokenID string, expiresAt time.Time) error
}

type consentManager interface {
	RequestOTP(ctx context.Context, op entity.Session, subjectID, channel string) (time.Duration, error)
	VerifyOTP(ctx context.Context, op entity.Session, channel, candidate string) (entity.ConsentGrant, error)
	Current(ctx context.Context, op entity.Session) (entity.ConsentGrant, error)
	RevokeGrant(ctx context.Context, op entity.Session) error
}

type accessGuard interface {
	Authenticate(ctx context.Context, header string) (guard.Decision, error)
	Authorize(ctx context.Context, in guard.AuthorizeInput) (guard.Decision, error)
}

type principalDirectory interface {
	Principal(ctx context.Context, id string) (entity.Principal, error)
	Lookup(ctx context.Context, identifier string) (entity.Principal, error)
}

type Usecase struct {
	loginOTP   otpEngine
	consentTTL time.Duration
	sessions   sessionService
	consent    consentManager
	guard      accessGuard
	directory  principalDirectory
	validator  validator.Validator
	cfg        config.Config
	clock      clock.Clocker
	ins        instrument.Instrumentation
}

type Dependency struct {
	LoginOTP   otpEngine
	ConsentTTL time.Duration
	Sessions   sessionService
	Consent    consentManager
	Guard      accessGuard
	Directory  principalDirectory
	Validator  validator.Validator
	Config     config.Config
	Clock      clock.Clocker
	Instrument instrument.Instrumentation
}

func New(dep Dependency) *Usecase {
	return &Usecase{
		loginOTP:   dep.LoginOTP,
		consentTTL: dep.ConsentTTL,
		sessions:   dep.Sessions,
		consent:    dep.Consent,
		guard:      dep.Guard,
		directory:  dep.Directory,
		validator:  dep.Validator,
		cfg:        dep.Config,
		clock:      dep.Clock,
		ins:        dep.Instrument,
	}
}

func (s *Usecase) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	return s.ins.Tracer("access.usecase").Start(ctx, name)
}

func (s *Usecase) sessionTTL() time.Duration {
	if ttl := s.cfg.GetSecond("session.ttl_seconds"); ttl > 0 {
		return ttl
	}
	return defaultSessionTTL
}

// currentSession reads the session placed in ctx by the authentication
// middleware.
func currentSession(ctx context.Context) (entity.Session, error) {
	clm := jwt.GetAuth(ctx)
	if clm == nil {
		return entity.Session{}, errUnauthenticated
	}
	return entity.SessionFromClaims(*clm), nil
}

// authorize runs the guard for an action on an object owned by ownerID.
func (s *Usecase) authorize(ctx context.Context, sess entity.Session, ownerID, obj, act string) (guard.Decision, error) {
	d, err := s.guard.Authorize(ctx, guard.AuthorizeInput{
		Session: sess,
		OwnerID: ownerID,
		Object:  obj,
		Action:  act,
	})
	if err != nil {
		slog.ErrorContext(ctx, "failed to authorize", "subject", sess.Subject, "object", obj, "action", act, "error", err)
		return guard.Decision{}, mapError(err)
	}

	switch d.Outcome {
	case guard.Authorized:
		return d, nil
	case guard.Unauthenticated:
		slog.WarnContext(ctx, "principal no longer in directory", "subject", sess.Subject)
		return d, errUnauthenticated
	default:
		slog.WarnContext(ctx, "access denied", "subject", sess.Subject, "owner", ownerID, "object", obj, "action", act, "reason", d.Reason)
		if errors.Is(d.Reason, entity.ErrUnauthorized) {
			return d, errForbidden
		}
		return d, mapError(d.Reason)
	}
}

var (
	errUnauthenticated = goerror.NewBusinessReason("Authentication required", goerror.CodeUnauthorized, "unauthorized")
	errForbidden       = goerror.NewBusinessReason("Account not allowed", goerror.CodeForbidden, "unauthorized")
)

// mapError turns domain errors into the typed failures returned to callers.
// Nothing here reveals which identifier or subject exists.
func mapError(err error) error {
	var ge *goerror.Error
	switch {
	case err == nil:
		return nil
	case errors.As(err, &ge):
		return err
	case errors.Is(err, entity.ErrOTPNotFound), errors.Is(err, entity.ErrOTPInvalid):
		return goerror.NewBusinessReason("Invalid code", goerror.CodeUnauthorized, "invalid")
	case errors.Is(err, entity.ErrOTPExpired):
		return goerror.NewBusinessReason("Code expired", goerror.CodeUnauthorized, "expired")
	case errors.Is(err, entity.ErrOTPTooManyAttempts):
		return goerror.NewBusinessReason("Too many attempts", goerror.CodeTooManyRequest, "too_many_attempts")
	case errors.Is(err, entity.ErrTokenMalformed),
		errors.Is(err, entity.ErrTokenSignatureInvalid),
		errors.Is(err, entity.ErrTokenExpired),
		errors.Is(err, entity.ErrTokenRevoked),
		errors.Is(err, entity.ErrUnauthorized):
		return errUnauthenticated
	case errors.Is(err, entity.ErrNoGrant):
		return goerror.NewBusinessReason("Consent required", goerror.CodeForbidden, "access_required")
	case errors.Is(err, entity.ErrGrantExpired):
		return goerror.NewBusinessReason("Consent expired", goerror.CodeForbidden, "access_expired")
	case errors.Is(err, entity.ErrSubjectMismatch):
		return goerror.NewBusinessReason("Consent was granted for another subject", goerror.CodeForbidden, "subject_mismatch")
	case errors.Is(err, kvstore.ErrUnavailable):
		return goerror.NewUnavailable(err)
	default:
		return goerror.NewServer(err)
	}
}
