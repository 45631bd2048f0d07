package email

import (
	"context"
	"errors"
	"html"
	"strings"

	"github.com/shandysiswandi/carepass/internal/pkg/instrument"
	"github.com/shandysiswandi/carepass/internal/pkg/mail"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var ErrRecipientRequired = errors.New("email: recipient is required")

// Mail sends OTP notices over the configured mail provider.
type Mail struct {
	client mail.Mail
	ins    instrument.Instrumentation
}

func New(client mail.Mail, ins instrument.Instrumentation) *Mail {
	return &Mail{client: client, ins: ins}
}

// SendOTP mails text to a single recipient. The HTML part carries the same
// text, escaped and preformatted, so clients that prefer HTML keep the layout.
func (m *Mail) SendOTP(ctx context.Context, to, purpose, subject, text string) error {
	ctx, span := m.ins.Tracer("notification.outbound.email").Start(ctx, "SendOTP")
	defer span.End()

	span.SetAttributes(
		attribute.String("otp.purpose", purpose),
		attribute.String("mail.domain", domain(to)),
	)

	if strings.TrimSpace(to) == "" {
		span.SetStatus(codes.Error, ErrRecipientRequired.Error())
		return ErrRecipientRequired
	}

	msg := mail.Message{
		To:       []string{to},
		Subject:  subject,
		TextBody: text,
		HTMLBody: "<pre>" + html.EscapeString(text) + "</pre>",
	}
	if err := m.client.Send(ctx, msg); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	return nil
}

// domain keeps the mailbox name out of traces.
func domain(addr string) string {
	if i := strings.LastIndexByte(addr, '@'); i >= 0 {
		return addr[i+1:]
	}
	return ""
}
