package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/phishguard/gateway/internal/sse"
)

const writeWait = 5 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Handler serves the live threat feed over WebSocket. Each connection runs
// its own publisher loop; alerts are JSON text frames and heartbeats are pings.
type Handler struct {
	publisher *sse.Publisher
	logger    *slog.Logger
}

// NewHandler creates a new WebSocket handler.
func NewHandler(publisher *sse.Publisher, logger *slog.Logger) *Handler {
	return &Handler{publisher: publisher, logger: logger}
}

// HandleWS handles GET /ws/{principal_id}.
func (h *Handler) HandleWS(w http.ResponseWriter, r *http.Request) {
	principalID := chi.URLParam(r, "principal_id")

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed", "err", err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// Client frames are ignored; a read error means the peer is gone.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	h.logger.Debug("websocket subscriber connected", "principal_id", principalID)
	if err := h.publisher.Run(ctx, principalID, connSink{conn: conn}); err != nil && ctx.Err() == nil {
		h.logger.Debug("websocket write failed", "principal_id", principalID, "err", err)
	}
	h.logger.Debug("websocket subscriber disconnected", "principal_id", principalID)
}

type connSink struct {
	conn *websocket.Conn
}

func (s connSink) Send(m sse.Message) error {
	deadline := time.Now().Add(writeWait)
	if m.Heartbeat() {
		return s.conn.WriteControl(websocket.PingMessage, nil, deadline)
	}

	msg, err := json.Marshal(m.Alert)
	if err != nil {
		return err
	}
	if err := s.conn.SetWriteDeadline(deadline); err != nil {
		return err
	}
	return s.conn.WriteMessage(websocket.TextMessage, msg)
}
