package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/avatargate/avatargate/internal/job"
)

// StreamSSE handles GET /api/v1/jobs/{id}/events.
// It streams status snapshots for the job until it is terminal or the client disconnects.
func (h *Handler) StreamSSE(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	id := r.PathValue("id")

	// Subscribe before reading the snapshot so a transition in between is not lost.
	ch := h.queue.Subscribe(id)
	defer h.queue.Unsubscribe(id, ch)

	snap := h.registry.Get(id)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	writeSSEEvent(w, flusher, "status", snap)
	if snap.Status != job.StatusPending {
		return
	}

	for {
		select {
		case snap, open := <-ch:
			if !open {
				return
			}
			writeSSEEvent(w, flusher, "status", snap)
		case <-r.Context().Done():
			return
		}
	}
}

// writeSSEEvent serialises data as JSON and writes a single SSE event frame.
func writeSSEEvent(w http.ResponseWriter, flusher http.Flusher, event string, data any) {
	payload, err := json.Marshal(data)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, payload)
	flusher.Flush()
}
