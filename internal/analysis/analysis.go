// Package analysis drives engine analysis sessions for the trainer.
// Each browser tab gets one Session wrapping one engine process; the
// session deduplicates repeated requests through an LRU result cache,
// coalesces bursts through a debouncer, and guarantees that output
// from superseded analyses never reaches a subscriber.
package analysis

import (
	"errors"

	"github.com/freeeve/evaltrainer/internal/uci"
)

var (
	// ErrNotReady is returned when analysis is requested before the
	// engine handshake has completed.
	ErrNotReady = errors.New("engine not ready")
	// ErrEngineFailed is returned while a session is in the Failed
	// state; only Reinitialize clears it.
	ErrEngineFailed = errors.New("engine failed")
	// ErrSessionNotFound is returned for unknown session ids.
	ErrSessionNotFound = errors.New("session not found")
	// ErrAlreadyStopped is returned when stopping a stopped session.
	ErrAlreadyStopped = errors.New("session already stopped")
)

// Request describes one analysis of a position. Immutable once
// issued; ID is assigned by the session and increases monotonically.
type Request struct {
	ID         uint64
	FEN        string   // board state, empty means the start position
	Moves      []string // UCI move tokens applied on top of FEN
	Depth      int      // search depth bound, ignored when Infinite
	MultiPV    int      // ranked lines requested, clamped by session config
	MovetimeMs int      // optional time budget, 0 means none
	Infinite   bool     // search until stopped
}

// Result accumulates the engine output for one request. Lines holds
// the latest update per MultiPV rank; earlier depth updates for a rank
// are superseded, not kept.
type Result struct {
	RequestID uint64
	Lines     map[int]uci.Info
	BestMove  string
	Ponder    string
	Complete  bool
}

// Clone returns a copy safe to hand to another goroutine.
func (r *Result) Clone() *Result {
	cp := *r
	cp.Lines = make(map[int]uci.Info, len(r.Lines))
	for rank, line := range r.Lines {
		cp.Lines[rank] = line
	}
	return &cp
}

// Event is delivered to session subscribers. Exactly one of Info and
// Result is set: Info for streaming depth updates, Result once the
// analysis completes (engine bestmove or cache hit).
type Event struct {
	RequestID uint64
	Info      *uci.Info
	Result    *Result
}
