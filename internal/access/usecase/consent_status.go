package usecase

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/shandysiswandi/carepass/internal/access/entity"
)

const (
	ConsentStatusNone    = "none"
	ConsentStatusActive  = "active"
	ConsentStatusExpired = "expired"
)

type ConsentStatusOutput struct {
	Status    string
	SubjectID string
	ExpiresAt time.Time
}

// ConsentStatus reports the grant attached to the caller's session.
func (s *Usecase) ConsentStatus(ctx context.Context) (*ConsentStatusOutput, error) {
	ctx, span := s.startSpan(ctx, "ConsentStatus")
	defer span.End()

	sess, err := currentSession(ctx)
	if err != nil {
		return nil, err
	}

	if _, err := s.authorize(ctx, sess, "", "consent", "read"); err != nil {
		return nil, err
	}

	grant, err := s.consent.Current(ctx, sess)
	switch {
	case err == nil:
		return &ConsentStatusOutput{Status: ConsentStatusActive, SubjectID: grant.SubjectID, ExpiresAt: grant.ExpiresAt}, nil
	case errors.Is(err, entity.ErrNoGrant):
		return &ConsentStatusOutput{Status: ConsentStatusNone}, nil
	case errors.Is(err, entity.ErrGrantExpired):
		return &ConsentStatusOutput{Status: ConsentStatusExpired, SubjectID: grant.SubjectID, ExpiresAt: grant.ExpiresAt}, nil
	default:
		slog.ErrorContext(ctx, "failed to get consent grant", "operator", sess.Subject, "error", err)
		return nil, mapError(err)
	}
}
