package usecase

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/shandysiswandi/carepass/internal/access/entity"
	"github.com/shandysiswandi/carepass/internal/pkg/goerror"
)

type ReadRecordInput struct {
	SubjectID string `json:"subject_id" validate:"required,max=64"`
}

// ReadRecord returns a subject's record to the subject itself or to an
// operator holding consent for exactly that subject.
func (s *Usecase) ReadRecord(ctx context.Context, in ReadRecordInput) (*entity.Record, error) {
	ctx, span := s.startSpan(ctx, "ReadRecord")
	defer span.End()

	sess, err := currentSession(ctx)
	if err != nil {
		return nil, err
	}

	in.SubjectID = strings.TrimSpace(in.SubjectID)

	if err := s.validator.Validate(in); err != nil {
		return nil, goerror.NewInvalidInput(err)
	}

	d, err := s.authorize(ctx, sess, in.SubjectID, "record", "read")
	if err != nil {
		return nil, err
	}

	subject, err := s.directory.Principal(ctx, in.SubjectID)
	if errors.Is(err, entity.ErrPrincipalNotFound) {
		slog.WarnContext(ctx, "record owner not found", "subject_id", in.SubjectID)
		return nil, goerror.NewBusiness("Record not found", goerror.CodeNotFound)
	}
	if err != nil {
		slog.ErrorContext(ctx, "failed to get record owner", "subject_id", in.SubjectID, "error", err)
		return nil, mapError(err)
	}

	rec := &entity.Record{
		SubjectID: subject.ID,
		Name:      subject.Name,
		Contacts:  subject.Contacts,
		Access:    "self",
	}
	if d.Grant != nil {
		rec.Access = "consent"
		rec.GrantExpiresAt = d.Grant.ExpiresAt
	}

	return rec, nil
}
