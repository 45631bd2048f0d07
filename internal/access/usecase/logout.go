package usecase

import (
	"context"
	"log/slog"
)

// Logout revokes the current session token and drops its consent grant.
func (s *Usecase) Logout(ctx context.Context) error {
	ctx, span := s.startSpan(ctx, "Logout")
	defer span.End()

	sess, err := currentSession(ctx)
	if err != nil {
		return err
	}

	if err := s.sessions.Revoke(ctx, sess.TokenID, sess.ExpiresAt); err != nil {
		slog.ErrorContext(ctx, "failed to revoke session", "subject", sess.Subject, "error", err)
		return mapError(err)
	}

	if err := s.consent.RevokeGrant(ctx, sess); err != nil {
		slog.ErrorContext(ctx, "failed to revoke consent grant on logout", "subject", sess.Subject, "error", err)
	}

	return nil
}
