package transport

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/filesentry/filesentry/pkg/logger"
	"github.com/filesentry/filesentry/pkg/types"
)

// handleStream serves one subscriber as a server-sent event stream. The
// optional `watchers` query parameter is a comma-separated identifier list
// restricting delivery; absent means all watchers, including future ones.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	clientID := r.URL.Query().Get("client_id")
	var watcherIDs []string
	if raw := r.URL.Query().Get("watchers"); raw != "" {
		for _, id := range strings.Split(raw, ",") {
			if id = strings.TrimSpace(id); id != "" {
				watcherIDs = append(watcherIDs, id)
			}
		}
	}

	sub := s.core.Broadcaster().Subscribe(clientID, watcherIDs)
	defer s.core.Broadcaster().Unsubscribe(sub.ID())

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(http.StatusOK)

	if err := writeSSE(w, types.NewConnectedMessage(sub.ID())); err != nil {
		return
	}
	flusher.Flush()

	s.logger.Info("Stream opened",
		logger.WithField("client_id", sub.ID()),
		logger.WithField("watchers", watcherIDs))

	for {
		select {
		case <-r.Context().Done():
			// Mark the subscription abandoned so the next heartbeat
			// reaps it even if Unsubscribe lost a race.
			sub.Close()
			s.logger.Info("Stream closed", logger.WithField("client_id", sub.ID()))
			return

		case msg, ok := <-sub.Messages():
			if !ok {
				return
			}
			if err := writeSSE(w, msg); err != nil {
				sub.Close()
				return
			}
			flusher.Flush()
		}
	}
}

// writeSSE writes one message in the text/event-stream framing
func writeSSE(w http.ResponseWriter, msg types.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "data: %s\n\n", data)
	return err
}
