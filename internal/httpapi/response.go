package httpapi

import (
	"sort"

	"github.com/freeeve/evaltrainer/internal/analysis"
	"github.com/freeeve/evaltrainer/internal/uci"
)

// ScoreResponse carries exactly one of cp or mate.
type ScoreResponse struct {
	CP   *int `json:"cp,omitempty"`
	Mate *int `json:"mate,omitempty"`
}

func toScoreResponse(s uci.Score) ScoreResponse {
	v := s.Value
	if s.Mate {
		return ScoreResponse{Mate: &v}
	}
	return ScoreResponse{CP: &v}
}

// InfoResponse is one ranked line of an ongoing analysis.
type InfoResponse struct {
	MultiPV int           `json:"multipv"`
	Depth   int           `json:"depth"`
	Score   ScoreResponse `json:"score"`
	Nodes   int64         `json:"nodes,omitempty"`
	NPS     int64         `json:"nps,omitempty"`
	TimeMs  int64         `json:"timeMs,omitempty"`
	PV      []string      `json:"pv"`
}

func toInfoResponse(info uci.Info) InfoResponse {
	return InfoResponse{
		MultiPV: info.Rank,
		Depth:   info.Depth,
		Score:   toScoreResponse(info.Score),
		Nodes:   info.Nodes,
		NPS:     info.NPS,
		TimeMs:  info.TimeMs,
		PV:      info.PV,
	}
}

// ResultResponse is a finished analysis: the final ranked lines plus
// the engine's move choice.
type ResultResponse struct {
	RequestID uint64         `json:"requestId"`
	BestMove  string         `json:"bestMove"`
	Ponder    string         `json:"ponder,omitempty"`
	Lines     []InfoResponse `json:"lines"`
	Complete  bool           `json:"complete"`
}

func toResultResponse(res *analysis.Result) *ResultResponse {
	out := &ResultResponse{
		RequestID: res.RequestID,
		BestMove:  res.BestMove,
		Ponder:    res.Ponder,
		Lines:     make([]InfoResponse, 0, len(res.Lines)),
		Complete:  res.Complete,
	}
	for _, info := range res.Lines {
		out.Lines = append(out.Lines, toInfoResponse(info))
	}
	sort.Slice(out.Lines, func(i, j int) bool { return out.Lines[i].MultiPV < out.Lines[j].MultiPV })
	return out
}

// EventResponse is one SSE payload: either a live info update or the
// final result, never both.
type EventResponse struct {
	RequestID uint64          `json:"requestId"`
	Type      string          `json:"type"` // info | result
	Info      *InfoResponse   `json:"info,omitempty"`
	Result    *ResultResponse `json:"result,omitempty"`
}

func toEventResponse(ev analysis.Event) EventResponse {
	out := EventResponse{RequestID: ev.RequestID}
	switch {
	case ev.Info != nil:
		out.Type = "info"
		info := toInfoResponse(*ev.Info)
		out.Info = &info
	case ev.Result != nil:
		out.Type = "result"
		out.Result = toResultResponse(ev.Result)
	}
	return out
}
