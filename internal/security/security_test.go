package security_test

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/scs-studio/backend-atelier/internal/security"
)

func echoHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		_, _ = w.Write(body)
	})
}

func TestBodyLimitRejectsOversizedPayload(t *testing.T) {
	handler := security.BodyLimit{Max: 16}.Middleware(echoHandler())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/products", strings.NewReader(strings.Repeat("x", 32)))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	require.Contains(t, rec.Body.String(), "PAYLOAD_TOO_LARGE")
}

func TestBodyLimitPassesSmallPayload(t *testing.T) {
	handler := security.BodyLimit{Max: 64}.Middleware(echoHandler())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/products", strings.NewReader(`{"name":"Polo"}`))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, `{"name":"Polo"}`, rec.Body.String())
}

func TestBodyLimitDisabledWhenZero(t *testing.T) {
	handler := security.BodyLimit{}.Middleware(echoHandler())

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(strings.Repeat("x", 1024)))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
}

func TestHeadersMiddleware(t *testing.T) {
	handler := security.Headers{Enable: true}.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/products", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	require.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	require.Equal(t, "no-referrer", rec.Header().Get("Referrer-Policy"))
	require.Empty(t, rec.Header().Get("Strict-Transport-Security"), "HSTS requires TLS")
}

func TestHeadersDisabled(t *testing.T) {
	handler := security.Headers{}.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Empty(t, rec.Header().Get("X-Content-Type-Options"))
}
