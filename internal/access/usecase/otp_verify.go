package usecase

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/shandysiswandi/carepass/internal/access/entity"
	"github.com/shandysiswandi/carepass/internal/access/otp"
	"github.com/shandysiswandi/carepass/internal/pkg/goerror"
)

type VerifyOTPInput struct {
	Identifier string `json:"identifier" validate:"required,max=254"`
	OTP        string `json:"otp" validate:"required,numeric_code,max=12"`
}

type VerifyOTPOutput struct {
	AccessToken string
	TokenType   string
	ExpiresIn   int64
	ExpiresAt   time.Time
	Subject     string
	Kind        entity.PrincipalKind
}

func (s *Usecase) VerifyOTP(ctx context.Context, in VerifyOTPInput) (*VerifyOTPOutput, error) {
	ctx, span := s.startSpan(ctx, "VerifyOTP")
	defer span.End()

	in.Identifier = entity.NormalizeIdentifier(in.Identifier)

	if err := s.validator.Validate(in); err != nil {
		return nil, goerror.NewInvalidInput(err)
	}

	res, err := s.loginOTP.Verify(ctx, otp.VerifyInput{Identifier: in.Identifier, Candidate: in.OTP})
	if err != nil {
		slog.WarnContext(ctx, "login otp verification failed", "error", err)
		return nil, mapError(err)
	}

	principal, err := s.directory.Principal(ctx, res.Tags[entity.TagPrincipalID])
	if errors.Is(err, entity.ErrPrincipalNotFound) {
		slog.WarnContext(ctx, "principal removed after otp request", "principal_id", res.Tags[entity.TagPrincipalID])
		return nil, mapError(entity.ErrOTPNotFound)
	}
	if err != nil {
		slog.ErrorContext(ctx, "failed to get principal", "error", err)
		return nil, mapError(err)
	}

	issued, err := s.sessions.Issue(ctx, principal.ID, s.sessionTTL())
	if err != nil {
		slog.ErrorContext(ctx, "failed to issue session", "principal_id", principal.ID, "error", err)
		return nil, goerror.NewServer(err)
	}

	return &VerifyOTPOutput{
		AccessToken: issued.Token,
		TokenType:   "Bearer",
		ExpiresIn:   int64(issued.ExpiresAt.Sub(issued.IssuedAt).Seconds()),
		ExpiresAt:   issued.ExpiresAt,
		Subject:     principal.ID,
		Kind:        principal.Kind,
	}, nil
}
