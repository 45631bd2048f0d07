package usecase

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/shandysiswandi/carepass/internal/access/entity"
	"github.com/shandysiswandi/carepass/internal/pkg/goerror"
)

type RequestConsentOTPInput struct {
	SubjectID string `json:"subject_id" validate:"required,max=64"`
	Channel   string `json:"channel" validate:"required,channel"`
}

type RequestConsentOTPOutput struct {
	ExpiresIn int64
}

// RequestConsentOTP sends a consent code to the subject's channel. Unknown
// subjects and unregistered channels get the same answer as a real request.
func (s *Usecase) RequestConsentOTP(ctx context.Context, in RequestConsentOTPInput) (*RequestConsentOTPOutput, error) {
	ctx, span := s.startSpan(ctx, "RequestConsentOTP")
	defer span.End()

	sess, err := currentSession(ctx)
	if err != nil {
		return nil, err
	}

	in.SubjectID = strings.TrimSpace(in.SubjectID)
	in.Channel = strings.TrimSpace(in.Channel)

	if err := s.validator.Validate(in); err != nil {
		return nil, goerror.NewInvalidInput(err)
	}

	if _, err := s.authorize(ctx, sess, "", "consent", "request"); err != nil {
		return nil, err
	}

	out := &RequestConsentOTPOutput{ExpiresIn: int64(s.consentTTL.Seconds())}

	validity, err := s.consent.RequestOTP(ctx, sess, in.SubjectID, in.Channel)
	if errors.Is(err, entity.ErrPrincipalNotFound) || errors.Is(err, entity.ErrChannelNotRegistered) {
		slog.WarnContext(ctx, "consent otp not issued", "operator", sess.Subject, "subject_id", in.SubjectID, "reason", err)
		return out, nil
	}
	if err != nil {
		slog.ErrorContext(ctx, "failed to request consent otp", "operator", sess.Subject, "subject_id", in.SubjectID, "error", err)
		return nil, mapError(err)
	}

	out.ExpiresIn = int64(validity.Seconds())
	return out, nil
}
