package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/phishguard/gateway/internal/classify"
	"github.com/phishguard/gateway/internal/ratelimit"
)

// maxBodyBytes caps JSON request bodies.
const maxBodyBytes = 64 << 10

// Error codes carried in the "error" field of the envelope.
const (
	codeInvalidRequest        = "invalid_request"
	codeClassifierUnavailable = "classifier_unavailable"
	codeClassifierTimeout     = "classifier_timeout"
	codeExplainerUnavailable  = "explainer_unavailable"
	codeRateLimited           = "rate_limited"
	codeInternal              = "internal_error"
)

type errorBody struct {
	Error     string    `json:"error"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, errorBody{Error: code, Message: msg, Timestamp: time.Now().UTC()})
}

// writeClassifyError maps the classification error taxonomy onto HTTP.
func writeClassifyError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, classify.ErrInvalidRequest):
		writeError(w, http.StatusBadRequest, codeInvalidRequest, err.Error())
	case errors.Is(err, classify.ErrClassifierTimeout):
		writeError(w, http.StatusGatewayTimeout, codeClassifierTimeout, "classification backend did not respond in time")
	case errors.Is(err, classify.ErrClassifierUnavailable):
		writeError(w, http.StatusBadGateway, codeClassifierUnavailable, "classification backend unavailable")
	default:
		writeError(w, http.StatusInternalServerError, codeInternal, "internal error")
	}
}

// decodeJSON reads a size-limited JSON body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	return json.NewDecoder(r.Body).Decode(v)
}

// RateLimited writes the 429 envelope. It is the limiter's reject hook.
func RateLimited(w http.ResponseWriter, _ *http.Request, retryAfter time.Duration) {
	w.Header().Set("Retry-After", ratelimit.RetryAfterHeader(retryAfter))
	writeError(w, http.StatusTooManyRequests, codeRateLimited, "too many requests, slow down")
}
