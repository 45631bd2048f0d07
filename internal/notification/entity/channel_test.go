package entity

import "testing"

func TestParseChannel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		raw  string
		want Channel
	}{
		{name: "email", raw: " Nurse@Clinic.Example ", want: Channel{Kind: ChannelEmail, Address: "nurse@clinic.example"}},
		{name: "email with display name", raw: "Nurse <nurse@clinic.example>", want: Channel{Kind: ChannelUnknown, Address: "Nurse <nurse@clinic.example>"}},
		{name: "phone", raw: "+1 (555) 010-0100", want: Channel{Kind: ChannelPhone, Address: "+15550100100"}},
		{name: "telegram", raw: "telegram:424242", want: Channel{Kind: ChannelTelegram, Address: "telegram:424242", ChatID: 424242}},
		{name: "telegram group", raw: "Telegram:-100123", want: Channel{Kind: ChannelTelegram, Address: "Telegram:-100123", ChatID: -100123}},
		{name: "telegram without id", raw: "telegram:bob", want: Channel{Kind: ChannelUnknown, Address: "telegram:bob"}},
		{name: "garbage", raw: "pager 12", want: Channel{Kind: ChannelUnknown, Address: "pager 12"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got := ParseChannel(tt.raw)

			if got != tt.want {
				t.Fatalf("ParseChannel(%q) = %+v, want %+v", tt.raw, got, tt.want)
			}
		})
	}
}

func TestChannelKindString(t *testing.T) {
	t.Parallel()

	if got := ChannelTelegram.String(); got != "telegram" {
		t.Fatalf("String() = %q", got)
	}
	if got := ChannelKind(42).String(); got != "unknown" {
		t.Fatalf("String() = %q", got)
	}
}
