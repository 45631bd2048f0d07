package notification

import (
	"context"
	"time"

	"github.com/shandysiswandi/carepass/internal/notification/inbound"
	"github.com/shandysiswandi/carepass/internal/notification/outbound/devlog"
	"github.com/shandysiswandi/carepass/internal/notification/outbound/email"
	"github.com/shandysiswandi/carepass/internal/notification/outbound/sms"
	"github.com/shandysiswandi/carepass/internal/notification/outbound/telegram"
	"github.com/shandysiswandi/carepass/internal/notification/usecase"
	"github.com/shandysiswandi/carepass/internal/pkg/clock"
	"github.com/shandysiswandi/carepass/internal/pkg/config"
	"github.com/shandysiswandi/carepass/internal/pkg/goroutine"
	"github.com/shandysiswandi/carepass/internal/pkg/idempotency"
	"github.com/shandysiswandi/carepass/internal/pkg/instrument"
	"github.com/shandysiswandi/carepass/internal/pkg/kvstore"
	"github.com/shandysiswandi/carepass/internal/pkg/mail"
	"github.com/shandysiswandi/carepass/internal/pkg/messaging"
	pkgsms "github.com/shandysiswandi/carepass/internal/pkg/sms"
	"github.com/shandysiswandi/carepass/internal/pkg/uid"
	"github.com/shandysiswandi/carepass/internal/pkg/validator"
)

type Dependency struct {
	Ctx        context.Context            `validate:"required"`
	Config     config.Config              `validate:"required"`
	Instrument instrument.Instrumentation `validate:"required"`
	Validator  validator.Validator        `validate:"required"`
	Clock      clock.Clocker              `validate:"required"`
	Store      kvstore.Store              `validate:"required"`
	UUID       uid.StringID               `validate:"required"`
	Goroutine  *goroutine.Manager         `validate:"required"`

	// Optional providers. A channel without one goes to the dev log.
	Mail mail.Mail
	SMS  pkgsms.Sender
	// Consumer receives brokered deliveries. Nil disables the consumers.
	Consumer messaging.Consumer
}

// Module is the wired notification subsystem.
type Module struct {
	uc *usecase.Usecase
}

func New(dep Dependency) (*Module, error) {
	if err := dep.Validator.Validate(dep); err != nil {
		return nil, err
	}

	ucDep := usecase.Dependency{
		RepoDevLog:  devlog.New(dep.Config.GetBool("notification.devlog.reveal")),
		Idempotency: idempotency.New(dep.Store),
		Config:      dep.Config,
		Clock:       dep.Clock,
		Validator:   dep.Validator,
		Instrument:  dep.Instrument,
	}
	if dep.Mail != nil {
		ucDep.RepoMail = email.New(dep.Mail, dep.Instrument)
	}
	if dep.SMS != nil {
		ucDep.RepoSMS = sms.New(dep.SMS, dep.Instrument)
	}
	if token := dep.Config.GetString("telegram.token"); token != "" {
		bot, err := telegram.New(telegram.Config{
			Token:    token,
			Endpoint: dep.Config.GetString("telegram.endpoint"),
			Timeout:  dep.Config.GetSecond("telegram.timeout_seconds"),
		}, dep.Instrument)
		if err != nil {
			return nil, err
		}
		ucDep.RepoTelegram = bot
	}

	uc, err := usecase.New(ucDep)
	if err != nil {
		return nil, err
	}

	if dep.Consumer != nil {
		inbound.RegisterMQConsumer(dep.Ctx, dep.Config, dep.Goroutine, dep.Consumer, dep.UUID, uc, dep.Instrument)
	}

	return &Module{uc: uc}, nil
}

// DeliverOTP sends a code in process. Its signature matches
// access.DeliverFunc.
func (m *Module) DeliverOTP(ctx context.Context, purpose, channel, code string, validFor time.Duration) error {
	return m.uc.DeliverOTP(ctx, usecase.DeliverOTPInput{
		Purpose:  purpose,
		Channel:  channel,
		Code:     code,
		ValidFor: validFor,
	})
}
