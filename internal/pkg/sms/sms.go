// Package sms sends text messages through an HTTP SMS gateway.
package sms

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ErrGateway is returned when the gateway answers with a failure.
var ErrGateway = errors.New("sms: gateway rejected message")

// Sender sends a text message to a phone number.
type Sender interface {
	Send(ctx context.Context, to, text string) error
}

// Config configures the gateway client.
type Config struct {
	// Endpoint is the gateway URL that accepts form posts.
	Endpoint string
	// APIKey authenticates with the gateway.
	APIKey string
	// From is an optional sender id.
	From string
	// DryRun logs messages instead of sending them.
	DryRun bool
	// Timeout bounds each request. Zero means 10 seconds.
	Timeout time.Duration
}

type gatewayResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Gateway posts form-encoded messages and expects {"code":0} on success.
type Gateway struct {
	cfg    Config
	client *http.Client
}

// NewGateway builds a Gateway. An empty APIKey or endpoint forces dry-run.
func NewGateway(cfg Config) *Gateway {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.APIKey == "" || cfg.Endpoint == "" {
		cfg.DryRun = true
	}
	return &Gateway{cfg: cfg, client: &http.Client{Timeout: cfg.Timeout}}
}

// Send implements Sender.
func (g *Gateway) Send(ctx context.Context, to, text string) error {
	if g.cfg.DryRun {
		slog.InfoContext(ctx, "sms dry-run", "to", to, "from", g.cfg.From, "length", len(text))
		return nil
	}

	form := url.Values{
		"apiKey":    {g.cfg.APIKey},
		"recipient": {strings.TrimPrefix(to, "+")},
		"text":      {text},
	}
	if g.cfg.From != "" {
		form.Set("from", g.cfg.From)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.cfg.Endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("sms: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("sms: send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err != nil {
		return fmt.Errorf("sms: read response: %w", err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("%w: status %d", ErrGateway, resp.StatusCode)
	}

	var out gatewayResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return fmt.Errorf("sms: parse response: %w", err)
	}
	if out.Code != 0 {
		return fmt.Errorf("%w: code %d %s", ErrGateway, out.Code, out.Message)
	}

	return nil
}
