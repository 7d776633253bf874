package httpadapter

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/kirillkom/document-intake/internal/core/domain"
)

const (
	sseSubscriberBuffer = 64
	sseHeartbeat        = 15 * time.Second
)

// streamUploadEvents replays current snapshots, then forwards every tracker
// transition until the client goes away.
func (rt *Router) streamUploadEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "streaming is not supported by response writer"})
		return
	}

	updates, cancel := rt.uploads.Subscribe(sseSubscriberBuffer)
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	for _, status := range rt.uploads.Statuses() {
		if err := writeStatusEvent(w, status); err != nil {
			return
		}
	}
	flusher.Flush()

	heartbeat := time.NewTicker(sseHeartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			if _, err := io.WriteString(w, ": ping\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case status, ok := <-updates:
			if !ok {
				return
			}
			if err := writeStatusEvent(w, status); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func writeStatusEvent(w io.Writer, status domain.FileStatus) error {
	payload, err := json.Marshal(status)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: status\ndata: %s\n\n", payload)
	return err
}
