// Package telegram sends notices through a Telegram bot.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/shandysiswandi/carepass/internal/pkg/instrument"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var ErrTokenRequired = errors.New("telegram: bot token is required")

type Config struct {
	Token string
	// Endpoint overrides tgbotapi.APIEndpoint. It keeps the two %s verbs for
	// the token and the method.
	Endpoint string
	Timeout  time.Duration
}

type Telegram struct {
	bot *tgbotapi.BotAPI
	ins instrument.Instrumentation
}

// New connects the bot. The token is checked against getMe before returning.
func New(cfg Config, ins instrument.Instrumentation) (*Telegram, error) {
	if cfg.Token == "" {
		return nil, ErrTokenRequired
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = tgbotapi.APIEndpoint
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	bot, err := tgbotapi.NewBotAPIWithClient(cfg.Token, cfg.Endpoint, &http.Client{Timeout: cfg.Timeout})
	if err != nil {
		return nil, fmt.Errorf("telegram: connect bot: %w", err)
	}

	return &Telegram{bot: bot, ins: ins}, nil
}

// Username is the bot account name reported by getMe.
func (t *Telegram) Username() string {
	return t.bot.Self.UserName
}

func (t *Telegram) Send(ctx context.Context, chatID int64, text string) error {
	ctx, span := t.ins.Tracer("notification.outbound.telegram").Start(ctx, "Send")
	defer span.End()

	if err := ctx.Err(); err != nil {
		return err
	}

	span.SetAttributes(attribute.Int64("telegram.chat_id", chatID))

	msg := tgbotapi.NewMessage(chatID, text)
	msg.DisableWebPagePreview = true

	if _, err := t.bot.Send(msg); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("telegram: send message: %w", err)
	}

	return nil
}
