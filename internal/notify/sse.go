package notify

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"raseed/internal/log"
)

// UserFunc resolves the signed-in user of a request; ok is false when
// nobody is signed in.
type UserFunc func(r *http.Request) (userID string, ok bool)

// StreamHandler serves the user's notifications as server-sent events.
type StreamHandler struct {
	hub       *Hub
	user      UserFunc
	heartbeat time.Duration
}

func NewStreamHandler(hub *Hub, user UserFunc) *StreamHandler {
	return &StreamHandler{hub: hub, user: user, heartbeat: 25 * time.Second}
}

func (s *StreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.user(r)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, ": connected\n\n")
	flusher.Flush()

	events, cancel := s.hub.Subscribe(userID)
	defer cancel()

	ticker := time.NewTicker(s.heartbeat)
	defer ticker.Stop()

	logger := log.FromContext(r.Context())
	for {
		select {
		case <-r.Context().Done():
			return
		case <-s.hub.Done():
			return
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case n, ok := <-events:
			if !ok {
				return
			}
			data, err := json.Marshal(map[string]any{"notification": n})
			if err != nil {
				logger.Error("Encoding notification failed", log.FieldError, err)
				continue
			}
			if _, err := fmt.Fprintf(w, "event: notification\ndata: %s\n\n", data); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
