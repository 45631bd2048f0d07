package usecase

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/shandysiswandi/carepass/internal/pkg/goerror"
)

type VerifyConsentOTPInput struct {
	Channel string `json:"channel" validate:"required,channel"`
	OTP     string `json:"otp" validate:"required,numeric_code,max=12"`
}

type VerifyConsentOTPOutput struct {
	SubjectID string
	ExpiresAt time.Time
	ExpiresIn int64
}

func (s *Usecase) VerifyConsentOTP(ctx context.Context, in VerifyConsentOTPInput) (*VerifyConsentOTPOutput, error) {
	ctx, span := s.startSpan(ctx, "VerifyConsentOTP")
	defer span.End()

	sess, err := currentSession(ctx)
	if err != nil {
		return nil, err
	}

	in.Channel = strings.TrimSpace(in.Channel)

	if err := s.validator.Validate(in); err != nil {
		return nil, goerror.NewInvalidInput(err)
	}

	if _, err := s.authorize(ctx, sess, "", "consent", "verify"); err != nil {
		return nil, err
	}

	grant, err := s.consent.VerifyOTP(ctx, sess, in.Channel, in.OTP)
	if err != nil {
		slog.WarnContext(ctx, "consent otp verification failed", "operator", sess.Subject, "error", err)
		return nil, mapError(err)
	}

	slog.InfoContext(ctx, "consent granted", "operator", sess.Subject, "subject_id", grant.SubjectID, "grant_id", grant.ID, "expires_at", grant.ExpiresAt)

	return &VerifyConsentOTPOutput{
		SubjectID: grant.SubjectID,
		ExpiresAt: grant.ExpiresAt,
		ExpiresIn: int64(grant.ExpiresAt.Sub(s.clock.Now()).Seconds()),
	}, nil
}
