package api

import (
	"fmt"
	"net/http"
	"time"
)

// sseKeepAlive is how often a comment line is written to idle streams so
// proxies do not close them.
const sseKeepAlive = 30 * time.Second

// handleSSE streams the user's notifications as Server-Sent Events.
func (s *Server) handleSSE(w http.ResponseWriter, r *http.Request) {
	userID, err := s.getUserIDFromContext(r)
	if err != nil {
		s.errorJSON(w, err, http.StatusUnauthorized)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		s.errorJSON(w, fmt.Errorf("streaming unsupported"), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	clientChan := s.broker.AddClient(userID)
	defer s.broker.RemoveClient(userID, clientChan)

	// Send the headers now so the client sees the stream open.
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ticker := time.NewTicker(sseKeepAlive)
	defer ticker.Stop()

	for {
		select {
		case message, open := <-clientChan:
			if !open {
				// Replaced by a newer connection, or the server is shutting down.
				return
			}
			fmt.Fprintf(w, "data: %s\n\n", message)
			flusher.Flush()
		case <-ticker.C:
			fmt.Fprint(w, ": keep-alive\n\n")
			flusher.Flush()
		case <-r.Context().Done():
			return
		}
	}
}
