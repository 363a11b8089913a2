// Package uci translates between structured analysis calls and the
// line-oriented UCI text protocol spoken by chess engine processes.
// Encoding produces exactly one command line per call; decoding is a
// pure function with no state retained between lines.
package uci

import (
	"fmt"
	"strconv"
	"strings"
)

// StartposFEN is the FEN of the standard starting position.
const StartposFEN = "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"

// Score is an engine evaluation, positive for the side to move.
// When Mate is true, Value is the number of moves to mate.
type Score struct {
	Value int
	Mate  bool
}

func (s Score) String() string {
	if s.Mate {
		return fmt.Sprintf("mate %d", s.Value)
	}
	return fmt.Sprintf("cp %d", s.Value)
}

// Info is one parsed "info" line: a depth update for one ranked line.
type Info struct {
	Rank   int // 1-based MultiPV rank
	Depth  int
	Score  Score
	PV     []string // UCI move tokens
	Nodes  int64
	NPS    int64
	TimeMs int64
}

// EventKind discriminates decoded engine output lines.
type EventKind int

const (
	// EventUnrecognized marks lines that carry nothing we consume.
	// They are dropped, never treated as errors.
	EventUnrecognized EventKind = iota
	// EventReady marks UCI handshake completion ("uciok").
	EventReady
	// EventInfo marks an evaluation update with depth, score and pv.
	EventInfo
	// EventBestMove marks the final line of a search.
	EventBestMove
)

// Event is one decoded engine output line.
type Event struct {
	Kind   EventKind
	Info   Info   // set when Kind == EventInfo
	Move   string // set when Kind == EventBestMove
	Ponder string // set when the bestmove line carried a ponder move
}

// Handshake returns the command that starts the UCI handshake.
func Handshake() string { return "uci" }

// SetOption returns a setoption command line.
func SetOption(name string, value any) string {
	return fmt.Sprintf("setoption name %s value %v", name, value)
}

// Position returns a position command for the given FEN with moves
// applied on top. An empty or "startpos" FEN uses the start position.
func Position(fen string, moves []string) string {
	var b strings.Builder
	if fen == "" || fen == "startpos" {
		b.WriteString("position startpos")
	} else {
		b.WriteString("position fen ")
		b.WriteString(fen)
	}
	if len(moves) > 0 {
		b.WriteString(" moves ")
		b.WriteString(strings.Join(moves, " "))
	}
	return b.String()
}

// GoDepth returns a fixed-depth search command.
func GoDepth(depth int) string { return "go depth " + strconv.Itoa(depth) }

// GoMovetime returns a time-budgeted search command.
func GoMovetime(ms int) string { return "go movetime " + strconv.Itoa(ms) }

// GoInfinite returns an unbounded search command.
func GoInfinite() string { return "go infinite" }

// Stop returns the search cancellation command.
func Stop() string { return "stop" }

// Quit returns the engine shutdown command.
func Quit() string { return "quit" }

// Decode parses one raw engine output line into an Event.
//
// Only three line shapes produce events: "uciok", "bestmove ..." and
// "info ..." lines carrying depth, score and a non-empty pv. Engines
// emit plenty of diagnostic text outside that schema, so anything
// else, including recognized keywords followed by malformed integers,
// decodes to EventUnrecognized rather than an error.
func Decode(line string) Event {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return Event{}
	}

	switch fields[0] {
	case "uciok":
		return Event{Kind: EventReady}
	case "bestmove":
		return decodeBestMove(fields)
	case "info":
		return decodeInfo(fields)
	}
	return Event{}
}

func decodeBestMove(fields []string) Event {
	if len(fields) < 2 {
		return Event{}
	}
	ev := Event{Kind: EventBestMove, Move: fields[1]}
	if len(fields) >= 4 && fields[2] == "ponder" {
		ev.Ponder = fields[3]
	}
	return ev
}

func decodeInfo(fields []string) Event {
	info := Info{Rank: 1}
	var hasDepth, hasScore bool

	for i := 1; i < len(fields); i++ {
		switch fields[i] {
		case "depth":
			n, ok := intAt(fields, i+1)
			if !ok {
				return Event{}
			}
			info.Depth = n
			hasDepth = true
			i++
		case "multipv":
			n, ok := intAt(fields, i+1)
			if !ok || n < 1 {
				return Event{}
			}
			info.Rank = n
			i++
		case "score":
			if i+2 >= len(fields) {
				return Event{}
			}
			n, ok := intAt(fields, i+2)
			if !ok {
				return Event{}
			}
			switch fields[i+1] {
			case "cp":
				info.Score = Score{Value: n}
			case "mate":
				info.Score = Score{Value: n, Mate: true}
			default:
				return Event{}
			}
			hasScore = true
			i += 2
		case "nodes":
			n, ok := int64At(fields, i+1)
			if !ok {
				return Event{}
			}
			info.Nodes = n
			i++
		case "nps":
			n, ok := int64At(fields, i+1)
			if !ok {
				return Event{}
			}
			info.NPS = n
			i++
		case "time":
			n, ok := int64At(fields, i+1)
			if !ok {
				return Event{}
			}
			info.TimeMs = n
			i++
		case "pv":
			info.PV = fields[i+1:]
			i = len(fields)
		}
	}

	if !hasDepth || !hasScore || len(info.PV) == 0 {
		return Event{}
	}
	return Event{Kind: EventInfo, Info: info}
}

func intAt(fields []string, i int) (int, bool) {
	if i >= len(fields) {
		return 0, false
	}
	n, err := strconv.Atoi(fields[i])
	if err != nil {
		return 0, false
	}
	return n, true
}

func int64At(fields []string, i int) (int64, bool) {
	if i >= len(fields) {
		return 0, false
	}
	n, err := strconv.ParseInt(fields[i], 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}
