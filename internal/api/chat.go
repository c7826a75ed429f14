package api

import (
	"encoding/json"
	"fmt"
	"net/http"
)

type chatRequest struct {
	UserID  string `json:"user_id"`
	ChatID  string `json:"chat_id"`
	Message string `json:"message"`
	Urgency string `json:"urgency"`
}

// handleChat streams one turn as server-sent events: a "token" event per
// chunk, followed by a single "done" event carrying the persisted
// assistant message. A client disconnect cancels the request context,
// which the orchestrator treats as a cooperative cancellation, per §4.6
// step 4.
func (s *ControlServer) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	events, err := s.chat.Send(r.Context(), req.UserID, req.ChatID, req.Message, req.Urgency)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	for ev := range events {
		if ev.Err != nil && !ev.Done {
			fmt.Fprintf(w, "event: error\ndata: %s\n\n", ev.Err.Error())
			flusher.Flush()
			continue
		}
		if ev.Token != "" {
			payload, _ := json.Marshal(map[string]string{"token": ev.Token})
			fmt.Fprintf(w, "event: token\ndata: %s\n\n", payload)
			flusher.Flush()
		}
		if ev.Done {
			payload, _ := json.Marshal(ev.Message)
			fmt.Fprintf(w, "event: done\ndata: %s\n\n", payload)
			flusher.Flush()
		}
	}
}
