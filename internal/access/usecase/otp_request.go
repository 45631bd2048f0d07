package usecase

import (
	"context"
	"errors"
	"log/slog"

	"github.com/shandysiswandi/carepass/internal/access/entity"
	"github.com/shandysiswandi/carepass/internal/access/otp"
	"github.com/shandysiswandi/carepass/internal/pkg/goerror"
	"github.com/shandysiswandi/carepass/internal/pkg/validator"
)

type RequestOTPInput struct {
	Identifier string `json:"identifier" validate:"required,max=254"`
}

type RequestOTPOutput struct {
	ExpiresIn int64
}

// RequestOTP starts a login. The answer is the same whether or not the
// identifier belongs to a principal.
func (s *Usecase) RequestOTP(ctx context.Context, in RequestOTPInput) (*RequestOTPOutput, error) {
	ctx, span := s.startSpan(ctx, "RequestOTP")
	defer span.End()

	in.Identifier = entity.NormalizeIdentifier(in.Identifier)

	if err := s.validator.Validate(in); err != nil {
		return nil, goerror.NewInvalidInput(err)
	}

	out := &RequestOTPOutput{ExpiresIn: int64(s.loginOTP.TTL().Seconds())}

	principal, err := s.directory.Lookup(ctx, in.Identifier)
	if errors.Is(err, entity.ErrPrincipalNotFound) {
		slog.WarnContext(ctx, "otp requested for unknown identifier")
		return out, nil
	}
	if err != nil {
		slog.ErrorContext(ctx, "failed to lookup principal", "error", err)
		return nil, mapError(err)
	}

	validity, err := s.loginOTP.Request(ctx, otp.RequestInput{
		Identifier: in.Identifier,
		Channel:    loginChannel(in.Identifier, principal),
		Tags:       map[string]string{entity.TagPrincipalID: principal.ID},
	})
	if err != nil {
		slog.ErrorContext(ctx, "failed to request login otp", "principal_id", principal.ID, "error", err)
		return nil, mapError(err)
	}

	out.ExpiresIn = int64(validity.Seconds())
	return out, nil
}

// loginChannel sends the code to the identifier itself when it is a contact
// channel, else to the principal's first registered contact.
func loginChannel(identifier string, p entity.Principal) string {
	if validator.IsChannel(identifier) {
		return identifier
	}
	if len(p.Contacts) > 0 {
		return p.Contacts[0]
	}
	return identifier
}
