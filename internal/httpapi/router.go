package httpapi

import (
	"encoding/json"
	"net/http"
	"net/http/pprof"

	"github.com/rs/zerolog"

	"github.com/freeeve/evaltrainer/internal/analysis"
	"github.com/freeeve/evaltrainer/internal/puzzle"
)

// Handler serves the trainer API: session lifecycle, analysis
// scheduling, the event stream, and puzzle lookups.
type Handler struct {
	reg     *analysis.Registry
	puzzles *puzzle.Store
	log     zerolog.Logger
}

// NewRouter creates the HTTP router. puzzles is optional; without it
// the puzzle endpoints report 404.
func NewRouter(log zerolog.Logger, reg *analysis.Registry, puzzles *puzzle.Store) http.Handler {
	h := &Handler{
		reg:     reg,
		puzzles: puzzles,
		log:     log,
	}

	mux := http.NewServeMux()
	mux.Handle("/healthz", http.HandlerFunc(h.health))
	mux.Handle("/readyz", http.HandlerFunc(h.health))
	mux.Handle("/v1/session", http.HandlerFunc(h.createSession))
	mux.Handle("/v1/session/status", http.HandlerFunc(h.sessionStatus))
	mux.Handle("/v1/session/stop", http.HandlerFunc(h.stopSession))
	mux.Handle("/v1/analysis", http.HandlerFunc(h.analyze))
	mux.Handle("/v1/analysis/events", http.HandlerFunc(h.events))
	mux.Handle("/v1/puzzle", http.HandlerFunc(h.randomPuzzle))
	mux.Handle("/v1/puzzle/", http.HandlerFunc(h.puzzleByID))

	// pprof endpoints
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)

	return CORS(RequestID(AccessLog(log, mux)))
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
	// Don't call http.Error after setting headers - it causes "superfluous WriteHeader"
}

func writeJSONStatus(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
