package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/aegisai/aegis/pkg/events"
	"github.com/aegisai/aegis/pkg/types"
)

const heartbeatInterval = 15 * time.Second

// streamEvents serves one mission channel (or the global channel) as
// Server-Sent Events. The stream ends when the client disconnects, the
// mission's group is cleaned up, or the bus shuts down. There is no
// replay: subscribers see only events published after they attach.
func (s *Server) streamEvents(w http.ResponseWriter, r *http.Request) {
	channel := r.URL.Query().Get("mission")
	if channel == "" {
		channel = events.GlobalChannel
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		s.writeError(w, types.E(types.KindInvalidParameter, "streaming unsupported by connection"))
		return
	}

	sub := s.bus.Subscribe(channel)
	defer s.bus.Unsubscribe(sub)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, ": stream attached channel=%s\n\n", channel)
	flusher.Flush()

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case event, open := <-sub.C():
			if !open {
				// Channel drained and closed: mission finished or bus stopped.
				return
			}
			data, err := json.Marshal(event)
			if err != nil {
				s.logger.Error().Err(err).Str("type", string(event.Type)).Msg("failed to encode event")
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Type, data)
			flusher.Flush()
		case <-heartbeat.C:
			fmt.Fprint(w, ": heartbeat\n\n")
			flusher.Flush()
		case <-r.Context().Done():
			return
		}
	}
}
