package usecase

import (
	"bytes"
	"context"
	"fmt"
	"text/template"
	"time"

	"github.com/shandysiswandi/carepass/internal/pkg/clock"
	"github.com/shandysiswandi/carepass/internal/pkg/config"
	"github.com/shandysiswandi/carepass/internal/pkg/idempotency"
	"github.com/shandysiswandi/carepass/internal/pkg/instrument"
	"github.com/shandysiswandi/carepass/internal/pkg/validator"
	"go.opentelemetry.io/otel/trace"
)

type repoMail interface {
	SendOTP(ctx context.Context, to, purpose, subject, text string) error
}

type repoSMS interface {
	Send(ctx context.Context, to, text string) error
}

type repoTelegram interface {
	Send(ctx context.Context, chatID int64, text string) error
}

type repoDevLog interface {
	Send(ctx context.Context, channel, subject, text string) error
}

type idempotent interface {
	Exec(ctx context.Context, key string, fn func(context.Context) error, opts ...idempotency.Option) error
}

const (
	defaultSubject = "Your {{.Product}} {{.Purpose}} code"
	defaultBody    = `Your {{.Product}} {{.Purpose}} code is {{.Code}}.
It expires in {{.Minutes}} minute(s). If you did not ask for it, ignore this message.`
)

type Usecase struct {
	repoMail     repoMail
	repoSMS      repoSMS
	repoTelegram repoTelegram
	repoDevLog   repoDevLog
	idem         idempotent
	cfg          config.Config
	clock        clock.Clocker
	validator    validator.Validator
	ins          instrument.Instrumentation

	subject *template.Template
	body    *template.Template
}

type Dependency struct {
	// RepoMail, RepoSMS and RepoTelegram are optional. A channel whose
	// sender is missing is written to RepoDevLog instead.
	RepoMail     repoMail
	RepoSMS      repoSMS
	RepoTelegram repoTelegram
	RepoDevLog   repoDevLog                 `validate:"required"`
	Idempotency  idempotent                 `validate:"required"`
	Config       config.Config              `validate:"required"`
	Clock        clock.Clocker              `validate:"required"`
	Validator    validator.Validator        `validate:"required"`
	Instrument   instrument.Instrumentation `validate:"required"`
}

func New(dep Dependency) (*Usecase, error) {
	if err := dep.Validator.Validate(dep); err != nil {
		return nil, err
	}

	subject, err := parseTemplate("subject", dep.Config.GetString("notification.otp.subject"), defaultSubject)
	if err != nil {
		return nil, err
	}
	body, err := parseTemplate("body", dep.Config.GetString("notification.otp.body"), defaultBody)
	if err != nil {
		return nil, err
	}

	return &Usecase{
		repoMail:     dep.RepoMail,
		repoSMS:      dep.RepoSMS,
		repoTelegram: dep.RepoTelegram,
		repoDevLog:   dep.RepoDevLog,
		idem:         dep.Idempotency,
		cfg:          dep.Config,
		clock:        dep.Clock,
		validator:    dep.Validator,
		ins:          dep.Instrument,
		subject:      subject,
		body:         body,
	}, nil
}

func (s *Usecase) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	return s.ins.Tracer("notification.usecase").Start(ctx, name)
}

func parseTemplate(name, tpl, fallback string) (*template.Template, error) {
	if tpl == "" {
		tpl = fallback
	}
	t, err := template.New(name).Option("missingkey=zero").Parse(tpl)
	if err != nil {
		return nil, fmt.Errorf("notification: parse %s template: %w", name, err)
	}
	return t, nil
}

type noticeData struct {
	Product string
	Purpose string
	Code    string
	Minutes int64
	SentAt  string
}

func (s *Usecase) render(t *template.Template, data noticeData) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func (s *Usecase) product() string {
	if name := s.cfg.GetString("app.name"); name != "" {
		return name
	}
	return "carepass"
}

// minutes rounds up so a 90 second code reads "2 minute(s)".
func minutes(d time.Duration) int64 {
	if d <= 0 {
		return 0
	}
	return int64((d + time.Minute - 1) / time.Minute)
}
