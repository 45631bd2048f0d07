package inbound

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/shandysiswandi/carepass/internal/notification/usecase"
	"github.com/shandysiswandi/carepass/internal/pkg/instrument"
	"github.com/shandysiswandi/carepass/internal/pkg/messaging"
	"github.com/shandysiswandi/carepass/internal/pkg/uid"
	"github.com/shandysiswandi/carepass/internal/shared/event"
)

const keyOfCorrelationID string = "cID"

type MQHandler struct {
	uc   uc
	uuid uid.StringID
	ins  instrument.Instrumentation
}

func (h *MQHandler) ensureCorrelationID(ctx context.Context, msg messaging.Message) context.Context {
	if cID := msg.Header(keyOfCorrelationID); cID != "" {
		return instrument.SetCorrelationID(ctx, cID)
	}
	return instrument.SetCorrelationID(ctx, h.uuid.Generate())
}

func (h *MQHandler) OTPDeliveryNotification(ctx context.Context, msg messaging.Message) error {
	ctx = h.ensureCorrelationID(ctx, msg)

	ctx, span := h.ins.Tracer("notification.inbound.mq").Start(ctx, "OTPDeliveryNotification")
	defer span.End()

	// the body carries a live code, so only its size is logged
	slog.InfoContext(ctx, "consume: otp delivery notification", "msg_size", len(msg.Body))

	var payload event.OTPDeliveryMessage
	if err := json.Unmarshal(msg.Body, &payload); err != nil {
		slog.ErrorContext(ctx, "failed to parse message body of otp delivery notification", "msg_size", len(msg.Body), "error", err)
		return nil
	}

	if err := h.uc.ConsumeOTPDelivery(ctx, usecase.DeliverOTPInput{
		DeliveryID: payload.DeliveryID,
		Purpose:    payload.Purpose,
		Channel:    payload.Channel,
		Code:       payload.Code,
		ValidFor:   time.Duration(payload.ValidFor) * time.Second,
	}); err != nil {
		slog.ErrorContext(ctx, "failed to consume otp delivery", "delivery_id", payload.DeliveryID, "error", err)
		return err
	}

	return nil
}
