package usecase

import (
	"context"
	"log/slog"

	"github.com/shandysiswandi/carepass/internal/access/guard"
	"github.com/shandysiswandi/carepass/internal/pkg/jwt"
)

// Authenticate validates an Authorization header for the HTTP router.
func (s *Usecase) Authenticate(ctx context.Context, authorization string) (jwt.Claims, error) {
	ctx, span := s.startSpan(ctx, "Authenticate")
	defer span.End()

	d, err := s.guard.Authenticate(ctx, authorization)
	if err != nil {
		slog.ErrorContext(ctx, "failed to authenticate", "error", err)
		return jwt.Claims{}, mapError(err)
	}
	if d.Outcome != guard.Authorized {
		slog.WarnContext(ctx, "request not authenticated", "reason", d.Reason)
		return jwt.Claims{}, errUnauthenticated
	}

	return d.Claims, nil
}
