package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func TestSecurityHeaders_AddsHeaders(t *testing.T) {
	tests := []struct {
		name      string
		path      string
		wantFrame string
	}{
		{"gateway endpoint", "/_gateway/status", "DENY"},
		{"proxied path", "/collections", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := echo.New()
			e.Use(SecurityHeaders())
			e.GET(tt.path, func(c echo.Context) error {
				return c.String(http.StatusOK, "ok")
			})

			req := httptest.NewRequest(http.MethodGet, tt.path, http.NoBody)
			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, req)

			if v := rec.Header().Get("X-Content-Type-Options"); v != "nosniff" {
				t.Errorf("X-Content-Type-Options = %q, want %q", v, "nosniff")
			}
			if v := rec.Header().Get("X-Frame-Options"); v != tt.wantFrame {
				t.Errorf("X-Frame-Options = %q, want %q", v, tt.wantFrame)
			}
		})
	}
}

func TestSecurityHeaders_StripsHopByHop(t *testing.T) {
	e := echo.New()
	e.Use(SecurityHeaders())

	var gotProxyAuth, gotAPIKey string
	e.GET("/test", func(c echo.Context) error {
		gotProxyAuth = c.Request().Header.Get("Proxy-Authorization")
		gotAPIKey = c.Request().Header.Get("Api-Key")
		return c.String(http.StatusOK, "ok")
	})

	req := httptest.NewRequest(http.MethodGet, "/test", http.NoBody)
	req.Header.Set("Proxy-Authorization", "Basic abc")
	req.Header.Set("Api-Key", "secret")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if gotProxyAuth != "" {
		t.Errorf("Proxy-Authorization header should be stripped, got %q", gotProxyAuth)
	}
	if gotAPIKey != "secret" {
		t.Errorf("Api-Key should reach the handler, got %q", gotAPIKey)
	}
}
