package entity

import (
	"net/mail"
	"strconv"
	"strings"

	"github.com/shandysiswandi/carepass/internal/pkg/validator"
)

type ChannelKind int16

const (
	ChannelUnknown  ChannelKind = 0
	ChannelEmail    ChannelKind = 1
	ChannelPhone    ChannelKind = 2
	ChannelTelegram ChannelKind = 3
)

const telegramPrefix = "telegram:"

func (c ChannelKind) String() string {
	switch c {
	case ChannelEmail:
		return "email"
	case ChannelPhone:
		return "phone"
	case ChannelTelegram:
		return "telegram"
	default:
		return "unknown"
	}
}

// Channel is a parsed delivery address.
type Channel struct {
	Kind    ChannelKind
	Address string
	// ChatID is set for telegram channels.
	ChatID int64
}

// ParseChannel classifies a raw contact. Anything it cannot classify is
// returned as ChannelUnknown with the trimmed input as the address.
func ParseChannel(raw string) Channel {
	s := strings.TrimSpace(raw)

	if rest, ok := strings.CutPrefix(strings.ToLower(s), telegramPrefix); ok {
		id, err := strconv.ParseInt(rest, 10, 64)
		if err != nil {
			return Channel{Kind: ChannelUnknown, Address: s}
		}
		return Channel{Kind: ChannelTelegram, Address: s, ChatID: id}
	}

	if strings.Contains(s, "@") {
		addr, err := mail.ParseAddress(s)
		if err != nil || addr.Address != s {
			return Channel{Kind: ChannelUnknown, Address: s}
		}
		return Channel{Kind: ChannelEmail, Address: strings.ToLower(s)}
	}

	if validator.IsChannel(s) {
		return Channel{Kind: ChannelPhone, Address: normalizePhone(s)}
	}

	return Channel{Kind: ChannelUnknown, Address: s}
}

func normalizePhone(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i, r := range s {
		if r == '+' && i == 0 || r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
