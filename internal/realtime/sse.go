package realtime

import (
	"fmt"
	"net/http"
	"time"
)

const heartbeatInterval = 25 * time.Second

// Handler отдаёт события комнат по Server-Sent Events.
//
//	GET /events?organization_id=...&agent_id=...
//
// organization_id обязателен; agent_id добавляет приватную комнату агента.
func (h *Hub) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		orgID := r.URL.Query().Get("organization_id")
		if orgID == "" {
			http.Error(w, "organization_id is required", http.StatusBadRequest)
			return
		}

		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "streaming not supported", http.StatusInternalServerError)
			return
		}

		rooms := []Room{OrgRoom(orgID)}
		if agentID := r.URL.Query().Get("agent_id"); agentID != "" {
			rooms = append(rooms, AgentRoom(agentID))
		}

		client := h.Join(rooms...)
		defer h.Leave(client)

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.WriteHeader(http.StatusOK)
		flusher.Flush()

		h.logger.Debug("realtime client joined", "organization_id", orgID, "rooms", len(rooms))

		heartbeat := time.NewTicker(heartbeatInterval)
		defer heartbeat.Stop()

		for {
			select {
			case <-r.Context().Done():
				return

			case <-heartbeat.C:
				if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
					return
				}
				flusher.Flush()

			case frame, ok := <-client.Frames():
				if !ok {
					return
				}
				if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", frame.Event, frame.Data); err != nil {
					return
				}
				flusher.Flush()
			}
		}
	})
}
