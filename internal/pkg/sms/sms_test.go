package sms

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestGatewaySend(t *testing.T) {
	// Arrange
	var gotRecipient, gotKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		gotRecipient = r.PostForm.Get("recipient")
		gotKey = r.PostForm.Get("apiKey")
		_, _ = w.Write([]byte(`{"code":0}`))
	}))
	defer srv.Close()
	g := NewGateway(Config{Endpoint: srv.URL, APIKey: "k"})

	// Act
	err := g.Send(context.Background(), "+6281234567890", "code 123456")

	// Assert
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if gotRecipient != "6281234567890" || gotKey != "k" {
		t.Fatalf("recipient=%q key=%q", gotRecipient, gotKey)
	}
}

func TestGatewayRejects(t *testing.T) {
	// Arrange
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"code":3,"message":"no balance"}`))
	}))
	defer srv.Close()
	g := NewGateway(Config{Endpoint: srv.URL, APIKey: "k"})

	// Act
	err := g.Send(context.Background(), "+6281234567890", "code")

	// Assert
	if !errors.Is(err, ErrGateway) {
		t.Fatalf("Send() error = %v", err)
	}
}

func TestGatewayDryRun(t *testing.T) {
	// Arrange
	g := NewGateway(Config{})

	// Act
	err := g.Send(context.Background(), "+6281234567890", "code")

	// Assert
	if err != nil {
		t.Fatalf("dry-run Send() error = %v", err)
	}
}
