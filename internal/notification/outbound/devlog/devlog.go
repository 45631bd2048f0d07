// Package devlog writes notices to the application log. It stands in for
// providers that are not configured, which makes local runs usable without a
// mail server or a bot token.
package devlog

import (
	"context"
	"log/slog"
)

type DevLog struct {
	reveal bool
}

// New returns a DevLog. With reveal false the notice text is left out of the
// log line.
func New(reveal bool) *DevLog {
	return &DevLog{reveal: reveal}
}

func (d *DevLog) Send(ctx context.Context, channel, subject, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if !d.reveal {
		slog.InfoContext(ctx, "notice written to dev log", "channel", channel, "subject", subject)
		return nil
	}

	slog.InfoContext(ctx, "notice written to dev log", "channel", channel, "subject", subject, "text", text)
	return nil
}
