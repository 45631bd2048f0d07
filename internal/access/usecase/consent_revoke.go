package usecase

import (
	"context"
	"log/slog"
)

func (s *Usecase) RevokeConsent(ctx context.Context) error {
	ctx, span := s.startSpan(ctx, "RevokeConsent")
	defer span.End()

	sess, err := currentSession(ctx)
	if err != nil {
		return err
	}

	if _, err := s.authorize(ctx, sess, "", "consent", "revoke"); err != nil {
		return err
	}

	if err := s.consent.RevokeGrant(ctx, sess); err != nil {
		slog.ErrorContext(ctx, "failed to revoke consent grant", "operator", sess.Subject, "error", err)
		return mapError(err)
	}

	return nil
}
