package router

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/shandysiswandi/carepass/internal/pkg/goerror"
	"github.com/shandysiswandi/carepass/internal/pkg/jwt"
)

type fixedID string

func (f fixedID) Generate() string { return string(f) }

func newTestRouter(auth Authenticator) *Router {
	return NewRouter(Config{UUID: fixedID("cid-test"), Authenticate: auth})
}

func decode(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode body %q: %v", rr.Body.String(), err)
	}
	return out
}

type greeting struct {
	Hello string `json:"hello"`
}

func TestPublicEndpointSkipsAuth(t *testing.T) {
	// Arrange
	ro := newTestRouter(func(context.Context, string) (jwt.Claims, error) {
		t.Fatal("authenticator must not run on public endpoints")
		return jwt.Claims{}, nil
	})
	ro.POST("/api/v1/auth/otp/request", func(*Request) (any, error) {
		return greeting{Hello: "world"}, nil
	})

	// Act
	rr := httptest.NewRecorder()
	ro.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/v1/auth/otp/request", nil))

	// Assert
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	if rr.Header().Get(HeaderCorrelationID) != "cid-test" {
		t.Fatalf("correlation id = %q", rr.Header().Get(HeaderCorrelationID))
	}
	data, _ := decode(t, rr)["data"].(map[string]any)
	if data["hello"] != "world" {
		t.Fatalf("data = %v", data)
	}
}

func TestProtectedEndpointRejectsWithReason(t *testing.T) {
	// Arrange
	ro := newTestRouter(func(context.Context, string) (jwt.Claims, error) {
		return jwt.Claims{}, goerror.NewBusinessReason("Session expired", goerror.CodeUnauthorized, "expired")
	})
	ro.GET("/api/v1/records/:subject_id", func(*Request) (any, error) {
		t.Fatal("handler must not run")
		return nil, nil
	})

	// Act
	rr := httptest.NewRecorder()
	ro.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/records/PAT1", nil))

	// Assert
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d", rr.Code)
	}
	body := decode(t, rr)
	if body["code"] != "expired" || body["message"] != "Session expired" {
		t.Fatalf("body = %v", body)
	}
}

func TestProtectedEndpointPassesClaims(t *testing.T) {
	// Arrange
	ro := newTestRouter(func(_ context.Context, header string) (jwt.Claims, error) {
		if header != "Bearer tok" {
			t.Fatalf("header = %q", header)
		}
		var c jwt.Claims
		c.Subject = "EMP001"
		return c, nil
	})
	ro.GET("/api/v1/records/:subject_id", func(r *Request) (any, error) {
		claims := jwt.GetAuth(r.Context())
		return greeting{Hello: claims.Subject + ":" + r.GetParam("subject_id")}, nil
	})

	// Act
	req := httptest.NewRequest(http.MethodGet, "/api/v1/records/PAT1", nil)
	req.Header.Set("Authorization", "Bearer tok")
	rr := httptest.NewRecorder()
	ro.ServeHTTP(rr, req)

	// Assert
	data, _ := decode(t, rr)["data"].(map[string]any)
	if data["hello"] != "EMP001:PAT1" {
		t.Fatalf("data = %v", data)
	}
}

func TestRecovererAndUnknownErrors(t *testing.T) {
	// Arrange
	ro := newTestRouter(nil)
	ro.GET("/health", func(*Request) (any, error) { panic("boom") })

	// Act
	rr := httptest.NewRecorder()
	ro.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))

	// Assert
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", rr.Code)
	}
}

func TestDecodeBodyRejectsUnknownFields(t *testing.T) {
	// Arrange
	req := &Request{Request: httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"hello":"x","extra":1}`))}
	var dst greeting

	// Act
	err := req.DecodeBody(&dst)

	// Assert
	if err == nil {
		t.Fatal("expected invalid format error")
	}
}

func TestNotFound(t *testing.T) {
	rr := httptest.NewRecorder()
	newTestRouter(nil).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/nope", nil))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("status = %d", rr.Code)
	}
}

func TestRealIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Forwarded-For", "10.0.0.1, 10.0.0.2")
	if got := realIP(req); got != "10.0.0.1" {
		t.Fatalf("realIP() = %q", got)
	}
}
