package httpapi

import (
	"net/http"
	"strings"
)

func (h *Handler) randomPuzzle(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if h.puzzles == nil {
		http.Error(w, "no puzzles loaded", http.StatusNotFound)
		return
	}
	p, ok := h.puzzles.Random()
	if !ok {
		http.Error(w, "no puzzles loaded", http.StatusNotFound)
		return
	}
	writeJSON(w, p)
}

func (h *Handler) puzzleByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/v1/puzzle/")
	if id == "" || strings.Contains(id, "/") {
		http.Error(w, "invalid puzzle id", http.StatusBadRequest)
		return
	}
	if h.puzzles == nil {
		http.Error(w, "puzzle not found", http.StatusNotFound)
		return
	}
	p, ok := h.puzzles.ByID(id)
	if !ok {
		http.Error(w, "puzzle not found", http.StatusNotFound)
		return
	}
	writeJSON(w, p)
}
