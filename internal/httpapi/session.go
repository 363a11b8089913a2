package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/freeeve/evaltrainer/internal/analysis"
)

type sessionResponse struct {
	SessionID string `json:"sessionId"`
	State     string `json:"state"`
}

type statusResponse struct {
	State            string `json:"state"`
	Ready            bool   `json:"ready"`
	CurrentRequestID uint64 `json:"currentRequestId,omitempty"`
	FailReason       string `json:"failReason,omitempty"`
}

func (h *Handler) createSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	id, sess, err := h.reg.Create()
	if err != nil {
		h.log.Error().Err(err).Msg("session create failed")
		http.Error(w, "engine unavailable: "+err.Error(), http.StatusServiceUnavailable)
		return
	}

	writeJSONStatus(w, http.StatusCreated, sessionResponse{
		SessionID: id,
		State:     sess.Status().State.String(),
	})
}

func (h *Handler) sessionStatus(w http.ResponseWriter, r *http.Request) {
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

	st := sess.Status()
	writeJSON(w, statusResponse{
		State:            st.State.String(),
		Ready:            st.Ready,
		CurrentRequestID: st.CurrentRequestID,
		FailReason:       st.FailReason,
	})
}

type stopRequest struct {
	SessionID string `json:"sessionId"`
}

func (h *Handler) stopSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req stopRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.SessionID == "" {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if err := h.reg.Stop(req.SessionID); err != nil {
		switch {
		case analysis.IsNotFound(err):
			http.Error(w, err.Error(), http.StatusNotFound)
		case errors.Is(err, analysis.ErrEngineFailed):
			http.Error(w, err.Error(), http.StatusBadGateway)
		default:
			http.Error(w, "internal error", http.StatusInternalServerError)
		}
		return
	}

	writeJSON(w, map[string]any{"state": analysis.StateStopped.String()})
}
