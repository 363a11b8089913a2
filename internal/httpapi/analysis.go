package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/freeeve/evaltrainer/internal/analysis"
)

type analyzeRequest struct {
	SessionID  string   `json:"sessionId"`
	FEN        string   `json:"fen"`
	Moves      []string `json:"moves,omitempty"`
	Depth      int      `json:"depth,omitempty"`
	MultiPV    int      `json:"multipv,omitempty"`
	MovetimeMs int      `json:"movetimeMs,omitempty"`
	Infinite   bool     `json:"infinite,omitempty"`
	DebounceMs int      `json:"debounceMs,omitempty"`
}

func (h *Handler) analyze(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req analyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.SessionID == "" {
		http.Error(w, "missing sessionId", http.StatusBadRequest)
		return
	}
	if req.FEN == "" {
		http.Error(w, "missing fen", http.StatusBadRequest)
		return
	}
	if req.DebounceMs < 0 || req.Depth < 0 || req.MovetimeMs < 0 {
		http.Error(w, "negative durations not allowed", http.StatusBadRequest)
		return
	}

	areq := analysis.Request{
		FEN:        req.FEN,
		Moves:      req.Moves,
		Depth:      req.Depth,
		MultiPV:    req.MultiPV,
		MovetimeMs: req.MovetimeMs,
		Infinite:   req.Infinite,
	}
	delay := time.Duration(req.DebounceMs) * time.Millisecond

	if err := h.reg.Schedule(req.SessionID, areq, delay); err != nil {
		switch {
		case analysis.IsNotFound(err):
			http.Error(w, "session not found", http.StatusNotFound)
		case errors.Is(err, analysis.ErrNotReady):
			http.Error(w, "session not ready", http.StatusConflict)
		case errors.Is(err, analysis.ErrEngineFailed):
			http.Error(w, err.Error(), http.StatusBadGateway)
		default:
			http.Error(w, "internal error", http.StatusInternalServerError)
		}
		return
	}

	writeJSONStatus(w, http.StatusAccepted, map[string]any{"scheduled": true})
}

// events streams analysis events for a session as SSE. The stream
// carries every request's events; clients correlate by requestId.
func (h *Handler) events(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	id := r.URL.Query().Get("sessionId")
	if id == "" {
		http.Error(w, "missing sessionId parameter", http.StatusBadRequest)
		return
	}

	sess, err := h.reg.Get(id)
	if err != nil {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	subID, events := sess.Subscribe()
	defer sess.Unsubscribe(subID)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	// Comment line so clients know the subscription is live.
	fmt.Fprint(w, ": stream open\n\n")
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev, ok := <-events:
			if !ok {
				// Session closed.
				return
			}
			payload, err := json.Marshal(toEventResponse(ev))
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "data: %s\n\n", payload)
			flusher.Flush()
		}
	}
}
