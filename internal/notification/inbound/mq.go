package inbound

import (
	"context"
	"log/slog"
	"slices"

	"github.com/shandysiswandi/carepass/internal/notification/usecase"
	"github.com/shandysiswandi/carepass/internal/pkg/config"
	"github.com/shandysiswandi/carepass/internal/pkg/goroutine"
	"github.com/shandysiswandi/carepass/internal/pkg/instrument"
	"github.com/shandysiswandi/carepass/internal/pkg/messaging"
	"github.com/shandysiswandi/carepass/internal/pkg/uid"
	"github.com/shandysiswandi/carepass/internal/shared/event"
)

type uc interface {
	ConsumeOTPDelivery(ctx context.Context, in usecase.DeliverOTPInput) error
}

// RegisterMQConsumer starts one worker per enabled consumer. A consumer is
// enabled when modules.notification.consumer_names lists it.
func RegisterMQConsumer(
	ctx context.Context,
	cfg config.Config,
	routine *goroutine.Manager,
	messenger messaging.Consumer,
	uuid uid.StringID,
	uc uc,
	ins instrument.Instrumentation,
) {
	mqHandler := &MQHandler{uc: uc, uuid: uuid, ins: ins}

	enableConsumerNames := cfg.GetArray("modules.notification.consumer_names")
	concurrency := cfg.GetInt("modules.notification.consumer_concurrency")

	var consumers = []struct {
		name    string
		topic   string // destination where publisher sent message
		group   string // queue group, consumer group or nsq channel
		handler messaging.Handler
	}{
		{
			name:    event.OTPDeliveryDestinationConsumerNotification,
			topic:   event.OTPDeliveryDestination,
			group:   event.OTPDeliveryDestinationConsumerNotification,
			handler: mqHandler.OTPDeliveryNotification,
		},
	}

	for _, consumer := range consumers {
		if !slices.Contains(enableConsumerNames, consumer.name) {
			continue
		}
		routine.Run(ctx, consumer.name, func(pCtx context.Context) error {
			slog.InfoContext(pCtx, "Running job for handling consumer", "consumer", consumer.name)
			return messenger.Consume(pCtx,
				consumer.topic,
				consumer.group,
				consumer.handler,
				messaging.WithConcurrency(concurrency),
			)
		})
	}
}
