package handlers

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// do runs handler behind a chi router registered at pattern so URL params
// resolve as they do in production.
func do(t *testing.T, method, pattern, target, body string, handler http.HandlerFunc) *httptest.ResponseRecorder {
	t.Helper()
	r := chi.NewRouter()
	r.MethodFunc(method, pattern, handler)

	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, rd).WithContext(context.Background())
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}
