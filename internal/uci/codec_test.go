package uci

import (
	"reflect"
	"testing"
)

func TestDecodeInfo(t *testing.T) {
	tests := []struct {
		name string
		line string
		want Event
	}{
		{
			"full info line",
			"info depth 12 seldepth 18 multipv 1 score cp 34 nodes 500000 nps 1000000 time 500 pv e2e4 e7e5",
			Event{Kind: EventInfo, Info: Info{
				Rank:  1,
				Depth: 12,
				Score: Score{Value: 34},
				PV:    []string{"e2e4", "e7e5"},
				Nodes: 500000, NPS: 1000000, TimeMs: 500,
			}},
		},
		{
			"mate score",
			"info depth 20 multipv 2 score mate -3 pv h7h8 g8g7",
			Event{Kind: EventInfo, Info: Info{
				Rank:  2,
				Depth: 20,
				Score: Score{Value: -3, Mate: true},
				PV:    []string{"h7h8", "g8g7"},
			}},
		},
		{
			"missing pv is discarded",
			"info depth 5 score cp 10 nodes 100",
			Event{},
		},
		{
			"missing score is discarded",
			"info depth 5 pv e2e4",
			Event{},
		},
		{
			"missing depth is discarded",
			"info score cp 10 pv e2e4",
			Event{},
		},
		{
			"malformed depth is discarded",
			"info depth twelve score cp 10 pv e2e4",
			Event{},
		},
		{
			"malformed score is discarded",
			"info depth 12 score cp banana pv e2e4",
			Event{},
		},
		{
			"unknown score kind is discarded",
			"info depth 12 score lowerbound 10 pv e2e4",
			Event{},
		},
		{
			"diagnostic text",
			"info string NNUE evaluation using nn-ad9b42354671.nnue",
			Event{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Decode(tt.line)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Decode(%q) = %+v, want %+v", tt.line, got, tt.want)
			}
		})
	}
}

func TestDecodeBestMove(t *testing.T) {
	tests := []struct {
		name string
		line string
		want Event
	}{
		{"with ponder", "bestmove e2e4 ponder e7e5",
			Event{Kind: EventBestMove, Move: "e2e4", Ponder: "e7e5"}},
		{"without ponder", "bestmove e2e4",
			Event{Kind: EventBestMove, Move: "e2e4"}},
		{"bare bestmove", "bestmove", Event{}},
		{"trailing token is not a ponder", "bestmove e2e4 junk e7e5",
			Event{Kind: EventBestMove, Move: "e2e4"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Decode(tt.line)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Decode(%q) = %+v, want %+v", tt.line, got, tt.want)
			}
		})
	}
}

func TestDecodeReady(t *testing.T) {
	if got := Decode("uciok"); got.Kind != EventReady {
		t.Errorf("Decode(uciok) = %+v, want ready", got)
	}
	// readyok is not the handshake completion line
	if got := Decode("readyok"); got.Kind != EventUnrecognized {
		t.Errorf("Decode(readyok) = %+v, want unrecognized", got)
	}
	if got := Decode(""); got.Kind != EventUnrecognized {
		t.Errorf("Decode(empty) = %+v, want unrecognized", got)
	}
}

func TestEncode(t *testing.T) {
	tests := []struct {
		name string
		got  string
		want string
	}{
		{"handshake", Handshake(), "uci"},
		{"setoption", SetOption("MultiPV", 3), "setoption name MultiPV value 3"},
		{"setoption bool", SetOption("Ponder", false), "setoption name Ponder value false"},
		{"position startpos", Position("", nil), "position startpos"},
		{"position with moves",
			Position("8/8/8/8/8/4k3/8/4K2R w K - 0 1", []string{"h1h8", "e3f4"}),
			"position fen 8/8/8/8/8/4k3/8/4K2R w K - 0 1 moves h1h8 e3f4"},
		{"go depth", GoDepth(18), "go depth 18"},
		{"go movetime", GoMovetime(1500), "go movetime 1500"},
		{"go infinite", GoInfinite(), "go infinite"},
		{"stop", Stop(), "stop"},
		{"quit", Quit(), "quit"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %q, want %q", tt.got, tt.want)
			}
		})
	}
}

func TestScoreString(t *testing.T) {
	if s := (Score{Value: 34}).String(); s != "cp 34" {
		t.Errorf("got %q", s)
	}
	if s := (Score{Value: -3, Mate: true}).String(); s != "mate -3" {
		t.Errorf("got %q", s)
	}
}
