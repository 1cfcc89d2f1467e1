package handlers

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phishguard/gateway/internal/db"
	"github.com/phishguard/gateway/internal/sse"
)

type threatLog struct {
	principal string
}

func (l threatLog) LatestThreat(_ context.Context, principalID string, afterSeq int64) (*db.ActivityEvent, error) {
	if principalID != l.principal || afterSeq > 0 {
		return nil, nil
	}
	return &db.ActivityEvent{Seq: 1, ActivityID: "a-1", URLRef: "ref", IsPhishing: true,
		ThreatType: "phishing", ThreatLevel: "HIGH", Confidence: 0.9, Timestamp: time.Now().UTC()}, nil
}

func TestHandleSSE(t *testing.T) {
	pub := sse.NewPublisher(threatLog{principal: "p-1"}, 5*time.Millisecond, discardLogger())
	h := NewStreamHandler(pub, discardLogger())

	r := chi.NewRouter()
	r.Get("/stream/{principal_id}", h.HandleSSE)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/stream/p-1", nil).WithContext(ctx)
	rec := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		defer close(done)
		r.ServeHTTP(rec, req)
	}()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("stream did not end after the client went away")
	}

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	assert.Equal(t, "no", rec.Header().Get("X-Accel-Buffering"))

	body := rec.Body.String()
	assert.True(t, strings.HasPrefix(body, `data: {"type":"new_threat","activity_id":"a-1"`), body)
	assert.Equal(t, 1, strings.Count(body, "data: "), "the same event is never sent twice")
	assert.Contains(t, body, ": keepalive\n\n")
}

// brokenStream accepts headers but fails every body write.
type brokenStream struct {
	header http.Header
	code   int
}

func (b *brokenStream) Header() http.Header { return b.header }
func (b *brokenStream) WriteHeader(code int) { b.code = code }
func (b *brokenStream) Write([]byte) (int, error) { return 0, errors.New("broken pipe") }
func (b *brokenStream) Flush() {}

func TestHandleSSE_WriteFailureLogged(t *testing.T) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
	pub := sse.NewPublisher(threatLog{principal: "p-1"}, 5*time.Millisecond, discardLogger())
	h := NewStreamHandler(pub, logger)

	r := chi.NewRouter()
	r.Get("/stream/{principal_id}", h.HandleSSE)
	w := &brokenStream{header: http.Header{}}

	done := make(chan struct{})
	go func() {
		defer close(done)
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/stream/p-1", nil))
	}()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("stream kept running after a failed write")
	}

	assert.Equal(t, http.StatusOK, w.code)
	assert.Contains(t, logs.String(), "stream write failed")
	assert.Contains(t, logs.String(), "broken pipe")
}

func TestHandleSSE_ClientGoneNotLoggedAsFailure(t *testing.T) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
	pub := sse.NewPublisher(threatLog{principal: "p-1"}, 5*time.Millisecond, discardLogger())
	h := NewStreamHandler(pub, logger)

	r := chi.NewRouter()
	r.Get("/stream/{principal_id}", h.HandleSSE)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/stream/p-1", nil).WithContext(ctx))

	assert.Contains(t, logs.String(), "stream subscriber disconnected")
	assert.NotContains(t, logs.String(), "stream write failed")
}
