package usecase

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/shandysiswandi/carepass/internal/notification/entity"
	"github.com/shandysiswandi/carepass/internal/pkg/goerror"
	"github.com/shandysiswandi/carepass/internal/pkg/idempotency"
)

type DeliverOTPInput struct {
	DeliveryID string
	Purpose    string        `json:"purpose" validate:"required,max=32"`
	Channel    string        `json:"channel" validate:"required,max=254"`
	Code       string        `json:"code" validate:"required,numeric,min=4,max=12"`
	ValidFor   time.Duration `json:"valid_for" validate:"gt=0"`
}

// DeliverOTP renders the notice and sends it on the channel's provider.
func (s *Usecase) DeliverOTP(ctx context.Context, in DeliverOTPInput) error {
	ctx, span := s.startSpan(ctx, "DeliverOTP")
	defer span.End()

	if err := s.validator.Validate(in); err != nil {
		return goerror.NewInvalidInput(err)
	}

	data := noticeData{
		Product: s.product(),
		Purpose: in.Purpose,
		Code:    in.Code,
		Minutes: minutes(in.ValidFor),
		SentAt:  s.clock.Now().UTC().Format(time.RFC1123),
	}

	subject, err := s.render(s.subject, data)
	if err != nil {
		slog.ErrorContext(ctx, "failed to render otp subject", "purpose", in.Purpose, "error", err)
		return goerror.NewServer(err)
	}
	text, err := s.render(s.body, data)
	if err != nil {
		slog.ErrorContext(ctx, "failed to render otp body", "purpose", in.Purpose, "error", err)
		return goerror.NewServer(err)
	}

	ch := entity.ParseChannel(in.Channel)

	switch {
	case ch.Kind == entity.ChannelEmail && s.repoMail != nil:
		err = s.repoMail.SendOTP(ctx, ch.Address, in.Purpose, subject, text)
	case ch.Kind == entity.ChannelPhone && s.repoSMS != nil:
		err = s.repoSMS.Send(ctx, ch.Address, text)
	case ch.Kind == entity.ChannelTelegram && s.repoTelegram != nil:
		err = s.repoTelegram.Send(ctx, ch.ChatID, text)
	default:
		if ch.Kind != entity.ChannelUnknown {
			slog.WarnContext(ctx, "no sender configured for channel, using dev log", "kind", ch.Kind.String())
		}
		err = s.repoDevLog.Send(ctx, ch.Address, subject, text)
	}
	if err != nil {
		slog.ErrorContext(ctx, "failed to send otp notice", "delivery_id", in.DeliveryID, "kind", ch.Kind.String(), "error", err)
		return err
	}

	slog.InfoContext(ctx, "otp notice sent", "delivery_id", in.DeliveryID, "purpose", in.Purpose, "kind", ch.Kind.String())
	return nil
}

// ConsumeOTPDelivery handles a brokered delivery event. A delivery id that was
// already handled is acknowledged without sending again. Events that can never
// be delivered are recorded as failed and acknowledged.
func (s *Usecase) ConsumeOTPDelivery(ctx context.Context, in DeliverOTPInput) error {
	ctx, span := s.startSpan(ctx, "ConsumeOTPDelivery")
	defer span.End()

	var err error
	if in.DeliveryID == "" {
		err = s.DeliverOTP(ctx, in)
	} else {
		err = s.idem.Exec(ctx, "otp_delivery:"+in.DeliveryID, func(ctx context.Context) error {
			if err := s.DeliverOTP(ctx, in); err != nil {
				if isInvalid(err) {
					return idempotency.Permanent(err)
				}
				return err
			}
			return nil
		}, idempotency.WithStateTTL(s.cfg.GetSecond("notification.dedup_ttl_seconds")))
	}

	switch {
	case errors.Is(err, idempotency.ErrAlreadyCompleted):
		slog.InfoContext(ctx, "otp delivery already handled", "delivery_id", in.DeliveryID)
		return nil
	case errors.Is(err, idempotency.ErrAlreadyFailed):
		slog.InfoContext(ctx, "otp delivery already dropped", "delivery_id", in.DeliveryID)
		return nil
	case errors.Is(err, idempotency.ErrAlreadyInProgress):
		slog.WarnContext(ctx, "otp delivery in progress elsewhere", "delivery_id", in.DeliveryID)
		return nil
	case isInvalid(err):
		slog.ErrorContext(ctx, "dropping invalid otp delivery", "delivery_id", in.DeliveryID, "error", err)
		return nil
	}
	return err
}

func isInvalid(err error) bool {
	var gerr *goerror.Error
	return errors.As(err, &gerr) && gerr.Type() == goerror.TypeValidation
}
