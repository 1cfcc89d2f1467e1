package handlers

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/phishguard/gateway/internal/sse"
)

// StreamHandler serves the per-principal live threat feed as SSE.
type StreamHandler struct {
	publisher *sse.Publisher
	logger    *slog.Logger
}

// NewStreamHandler creates a new StreamHandler.
func NewStreamHandler(publisher *sse.Publisher, logger *slog.Logger) *StreamHandler {
	return &StreamHandler{publisher: publisher, logger: logger}
}

// HandleSSE handles GET /stream/{principal_id}. The poll loop ends when the
// client goes away and the request context is cancelled.
func (sh *StreamHandler) HandleSSE(w http.ResponseWriter, r *http.Request) {
	principalID := chi.URLParam(r, "principal_id")

	sw, err := sse.NewWriter(w)
	if err != nil {
		writeError(w, http.StatusInternalServerError, codeInternal, "streaming not supported")
		return
	}

	sh.logger.Debug("stream subscriber connected", "principal_id", principalID)
	if err := sh.publisher.Run(r.Context(), principalID, sw); err != nil && r.Context().Err() == nil {
		sh.logger.Debug("stream write failed", "principal_id", principalID, "err", err)
	}
	sh.logger.Debug("stream subscriber disconnected", "principal_id", principalID)
}
