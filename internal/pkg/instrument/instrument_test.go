package instrument

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

func TestCorrelationID(t *testing.T) {
	// Arrange
	ctx := SetCorrelationID(context.Background(), "cid-1")

	// Act
	got := GetCorrelationID(ctx)

	// Assert
	if got != "cid-1" {
		t.Fatalf("GetCorrelationID() = %q", got)
	}
	if GetCorrelationID(context.Background()) != "" {
		t.Fatal("expected empty correlation id")
	}
}

func TestLoggerMasksAndTagsRecords(t *testing.T) {
	// Arrange
	var buf bytes.Buffer
	logger := NewLogger(&buf, &Config{ServiceName: "carepass", MaskFields: []string{"otp", "Authorization"}}, nil)
	ctx := SetCorrelationID(context.Background(), "abc")

	// Act
	logger.InfoContext(ctx, "request received",
		"otp", "123456",
		"body", map[string]any{"identifier": "a@b.c", "otp": "654321"},
		"raw", `{"authorization":"Bearer x"}`,
	)

	// Assert
	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("decode log line: %v", err)
	}
	if rec["otp"] != Masked {
		t.Fatalf("otp = %v", rec["otp"])
	}
	body, _ := rec["body"].(map[string]any)
	if body["otp"] != Masked || body["identifier"] != "a@b.c" {
		t.Fatalf("body = %v", body)
	}
	if strings.Contains(rec["raw"].(string), "Bearer") {
		t.Fatalf("raw not masked: %v", rec["raw"])
	}
	if rec["_cID"] != "abc" || rec["service"] != "carepass" {
		t.Fatalf("missing context attrs: %v", rec)
	}
	if _, ok := rec["severity"]; !ok {
		t.Fatal("expected severity key")
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug": slog.LevelDebug,
		"WARN":  slog.LevelWarn,
		"error": slog.LevelError,
		"":      slog.LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Fatalf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestPrometheusReaderServesMetrics(t *testing.T) {
	// Arrange
	reader, handler, err := NewPrometheusReader()
	if err != nil {
		t.Fatalf("NewPrometheusReader() error = %v", err)
	}
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer func() { _ = mp.Shutdown(context.Background()) }()

	counter, err := mp.Meter("test").Int64Counter("otp.requests")
	if err != nil {
		t.Fatalf("Int64Counter() error = %v", err)
	}
	counter.Add(context.Background(), 2)

	// Act
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	// Assert
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "otp_requests") {
		t.Fatalf("metric not exposed:\n%s", rr.Body.String())
	}
}

func TestNewDisabledReturnsNoop(t *testing.T) {
	// Arrange
	prev := slog.Default()
	defer slog.SetDefault(prev)

	// Act
	ins, err := New(context.Background(), &Config{Enabled: false})

	// Assert
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if ins.MetricsHandler() != nil {
		t.Fatal("noop should not expose metrics")
	}
	if err := ins.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
}
