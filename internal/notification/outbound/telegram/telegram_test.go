package telegram

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/shandysiswandi/carepass/internal/pkg/instrument"
)

type fakeBotServer struct {
	mu   sync.Mutex
	sent []map[string]string
	fail bool
}

func (f *fakeBotServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	switch {
	case strings.HasSuffix(r.URL.Path, "/getMe"):
		_, _ = w.Write([]byte(`{"ok":true,"result":{"id":7,"is_bot":true,"first_name":"Care","username":"carepass_bot"}}`))

	case strings.HasSuffix(r.URL.Path, "/sendMessage"):
		if err := r.ParseForm(); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if f.fail {
			_, _ = w.Write([]byte(`{"ok":false,"error_code":400,"description":"Bad Request: chat not found"}`))
			return
		}
		f.mu.Lock()
		f.sent = append(f.sent, map[string]string{
			"chat_id": r.PostForm.Get("chat_id"),
			"text":    r.PostForm.Get("text"),
		})
		f.mu.Unlock()
		_, _ = w.Write([]byte(`{"ok":true,"result":{"message_id":1,"date":1777852800,"chat":{"id":42,"type":"private"},"text":"ok"}}`))

	default:
		http.NotFound(w, r)
	}
}

func newTestBot(t *testing.T, srv *fakeBotServer, token string) *Telegram {
	t.Helper()

	hs := httptest.NewServer(srv)
	t.Cleanup(hs.Close)

	tg, err := New(Config{Token: token, Endpoint: hs.URL + "/bot%s/%s"}, instrument.NewNoop())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return tg
}

func TestNewRequiresToken(t *testing.T) {
	t.Parallel()

	_, err := New(Config{}, instrument.NewNoop())

	if err != ErrTokenRequired {
		t.Fatalf("New() error = %v, want %v", err, ErrTokenRequired)
	}
}

func TestSend(t *testing.T) {
	t.Parallel()

	// Arrange
	srv := &fakeBotServer{}
	tg := newTestBot(t, srv, "123:abc")

	// Act
	err := tg.Send(context.Background(), 42, "Your code is 123456")

	// Assert
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if tg.Username() != "carepass_bot" {
		t.Fatalf("Username() = %q", tg.Username())
	}
	srv.mu.Lock()
	defer srv.mu.Unlock()
	if len(srv.sent) != 1 {
		t.Fatalf("sent %d messages, want 1", len(srv.sent))
	}
	if srv.sent[0]["chat_id"] != "42" || srv.sent[0]["text"] != "Your code is 123456" {
		t.Fatalf("sent = %+v", srv.sent[0])
	}
}

func TestSendFailure(t *testing.T) {
	t.Parallel()

	srv := &fakeBotServer{fail: true}
	tg := newTestBot(t, srv, "123:abc")

	err := tg.Send(context.Background(), 42, "hello")

	if err == nil || !strings.Contains(err.Error(), "chat not found") {
		t.Fatalf("Send() error = %v, want chat not found", err)
	}
}

func TestSendCanceled(t *testing.T) {
	t.Parallel()

	srv := &fakeBotServer{}
	tg := newTestBot(t, srv, "123:abc")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := tg.Send(ctx, 42, "hello")

	if err != context.Canceled {
		t.Fatalf("Send() error = %v, want context.Canceled", err)
	}
}
