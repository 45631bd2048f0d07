// Package delivery hands issued codes to the notification side.
//
// Broker publishes them as events for a consumer in this or another
// process. Async wraps any deliverer so that the request path never waits on
// a mail server or an SMS gateway.
package delivery

import (
	"context"
	"encoding/json"

	"github.com/shandysiswandi/carepass/internal/access/entity"
	"github.com/shandysiswandi/carepass/internal/pkg/instrument"
	"github.com/shandysiswandi/carepass/internal/pkg/messaging"
	"github.com/shandysiswandi/carepass/internal/pkg/uid"
	"github.com/shandysiswandi/carepass/internal/shared/event"
	"go.opentelemetry.io/otel/codes"
)

const keyOfCorrelationID string = "cID"

type Broker struct {
	client messaging.Publisher
	uuid   uid.StringID
	ins    instrument.Instrumentation
}

func NewBroker(client messaging.Publisher, uuid uid.StringID, ins instrument.Instrumentation) *Broker {
	return &Broker{client: client, uuid: uuid, ins: ins}
}

func (b *Broker) Deliver(ctx context.Context, d entity.Delivery) error {
	ctx, span := b.ins.Tracer("access.outbound.delivery").Start(ctx, "Deliver")
	defer span.End()

	deliveryID := b.uuid.Generate()
	body, err := json.Marshal(event.OTPDeliveryMessage{
		DeliveryID: deliveryID,
		Purpose:    d.Purpose.String(),
		Channel:    d.Channel,
		Code:       d.Code,
		ValidFor:   int64(d.Validity.Seconds()),
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	if err := b.client.Publish(ctx, event.OTPDeliveryDestination, messaging.Message{
		Key:     []byte(d.Channel),
		Body:    body,
		Headers: map[string]string{keyOfCorrelationID: instrument.GetCorrelationID(ctx)},
	}); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	return nil
}
