package sse

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// ErrStreamingUnsupported is returned when the ResponseWriter cannot flush.
var ErrStreamingUnsupported = errors.New("streaming not supported")

// Writer encodes messages in the event-stream wire format and flushes each one.
type Writer struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

// NewWriter sets the event-stream headers, including the one that disables
// proxy buffering, and flushes them so the client sees the stream open.
func NewWriter(w http.ResponseWriter) (*Writer, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, ErrStreamingUnsupported
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	return &Writer{w: w, flusher: flusher}, nil
}

// Send writes one message: `data: <json>` for alerts, `: keepalive` otherwise.
func (sw *Writer) Send(m Message) error {
	if m.Heartbeat() {
		if _, err := fmt.Fprint(sw.w, ": keepalive\n\n"); err != nil {
			return err
		}
	} else {
		data, err := json.Marshal(m.Alert)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(sw.w, "data: %s\n\n", data); err != nil {
			return err
		}
	}
	sw.flusher.Flush()
	return nil
}
