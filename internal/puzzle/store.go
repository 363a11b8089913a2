// Package puzzle holds the trainer's puzzle inventory in memory.
// Puzzles come from two sources: lichess-style puzzle CSV exports and
// raw PGN game packs, from which tactical endings are extracted.
package puzzle

import (
	"compress/gzip"
	"encoding/csv"
	"fmt"
	"io"
	"math/rand"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/freeeve/pgn/v3"
	"github.com/klauspost/compress/zstd"
	"github.com/rs/zerolog"
)

// Puzzle is one training position: a FEN to show the user and the
// solution line in UCI notation.
type Puzzle struct {
	ID     string   `json:"id"`
	FEN    string   `json:"fen"`
	Moves  []string `json:"moves"`
	Rating int      `json:"rating,omitempty"`
	Themes []string `json:"themes,omitempty"`
}

// Store is an in-memory puzzle collection. Loads happen at startup;
// reads are concurrent.
type Store struct {
	log zerolog.Logger

	mu      sync.RWMutex
	puzzles []Puzzle
	byID    map[string]int
}

// NewStore creates an empty store.
func NewStore(log zerolog.Logger) *Store {
	return &Store{
		log:  log,
		byID: make(map[string]int),
	}
}

// LoadDir loads every puzzle CSV and PGN pack in dir. Unknown file
// types are skipped.
func (s *Store) LoadDir(dir string, ratingMin int) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, err
	}

	total := 0
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		path := filepath.Join(dir, e.Name())
		var n int
		var err error
		switch {
		case isCSVFile(e.Name()):
			n, err = s.LoadCSV(path)
		case isPGNFile(e.Name()):
			n, err = s.LoadPGN(path, ratingMin)
		default:
			continue
		}
		if err != nil {
			s.log.Warn().Err(err).Str("file", e.Name()).Msg("puzzle load failed")
			continue
		}
		s.log.Info().Str("file", e.Name()).Int("puzzles", n).Msg("puzzles loaded")
		total += n
	}
	return total, nil
}

// LoadCSV loads puzzles from a lichess-style CSV export. Supports .zst
// and .gz compression. Columns: PuzzleId, FEN, Moves, Rating,
// RatingDeviation, Popularity, NbPlays, Themes, GameUrl, OpeningTags.
func (s *Store) LoadCSV(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	var reader io.Reader = f
	if strings.HasSuffix(path, ".zst") {
		zr, err := zstd.NewReader(f, zstd.WithDecoderConcurrency(1))
		if err != nil {
			return 0, err
		}
		defer zr.Close()
		reader = zr
	} else if strings.HasSuffix(path, ".gz") {
		gr, err := gzip.NewReader(f)
		if err != nil {
			return 0, err
		}
		defer gr.Close()
		reader = gr
	}

	csvReader := csv.NewReader(reader)
	csvReader.FieldsPerRecord = -1

	// Skip header.
	if _, err := csvReader.Read(); err != nil {
		if err == io.EOF {
			return 0, nil
		}
		return 0, err
	}

	count := 0
	for {
		row, err := csvReader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			// Incomplete compressed frames end the file early.
			if strings.Contains(err.Error(), "EOF") || strings.Contains(err.Error(), "unexpected") {
				break
			}
			continue
		}
		if len(row) < 3 || row[0] == "" || row[1] == "" || row[2] == "" {
			continue
		}

		p := Puzzle{
			ID:    row[0],
			FEN:   row[1],
			Moves: strings.Fields(row[2]),
		}
		if len(row) > 3 {
			p.Rating, _ = strconv.Atoi(row[3])
		}
		if len(row) > 7 && row[7] != "" {
			p.Themes = strings.Fields(row[7])
		}

		s.add(p)
		count++
	}
	return count, nil
}

// tailPlies is how much of a game's ending becomes the solution line
// when extracting a puzzle from a raw game.
const tailPlies = 6

// LoadPGN extracts one puzzle per decisive game in a PGN pack: the
// position a few plies before the end, with the remaining moves as the
// solution line. Games where either player is below ratingMin are
// skipped. Supports .pgn and .pgn.zst packs.
func (s *Store) LoadPGN(path string, ratingMin int) (int, error) {
	parser := pgn.Games(path)

	count := 0
	skipped := 0
	for game := range parser.Games {
		whiteRating := parseRating(game.Tags["WhiteElo"])
		blackRating := parseRating(game.Tags["BlackElo"])
		if whiteRating < ratingMin || blackRating < ratingMin {
			skipped++
			continue
		}
		result := game.Tags["Result"]
		if result != "1-0" && result != "0-1" {
			skipped++
			continue
		}

		p, ok := extractPuzzle(game)
		if !ok {
			skipped++
			continue
		}
		p.ID = fmt.Sprintf("%s-%d", strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)), count)
		p.Rating = whiteRating
		if blackRating < whiteRating {
			p.Rating = blackRating
		}

		s.add(p)
		count++
	}
	if err := parser.Err(); err != nil {
		return count, err
	}

	s.log.Debug().
		Str("file", filepath.Base(path)).
		Int("puzzles", count).
		Int("skipped", skipped).
		Msg("pgn pack processed")
	return count, nil
}

// extractPuzzle replays the game up to tailPlies before its end and
// returns that position with the remaining moves in UCI notation.
func extractPuzzle(game *pgn.Game) (Puzzle, bool) {
	if len(game.Moves) < 2 {
		return Puzzle{}, false
	}
	cut := len(game.Moves) - tailPlies
	if cut < 0 {
		cut = 0
	}

	pos := pgn.NewStartingPosition()
	for _, mv := range game.Moves[:cut] {
		if err := pgn.ApplyMove(pos, mv); err != nil {
			return Puzzle{}, false
		}
	}

	moves := make([]string, 0, len(game.Moves)-cut)
	for _, mv := range game.Moves[cut:] {
		moves = append(moves, moveToUCI(mv))
	}

	return Puzzle{FEN: pos.ToFEN(), Moves: moves}, true
}

func (s *Store) add(p Puzzle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i, ok := s.byID[p.ID]; ok {
		s.puzzles[i] = p
		return
	}
	s.byID[p.ID] = len(s.puzzles)
	s.puzzles = append(s.puzzles, p)
}

// ByID returns the puzzle with the given id.
func (s *Store) ByID(id string) (Puzzle, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i, ok := s.byID[id]
	if !ok {
		return Puzzle{}, false
	}
	return s.puzzles[i], true
}

// Random returns a uniformly random puzzle.
func (s *Store) Random() (Puzzle, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.puzzles) == 0 {
		return Puzzle{}, false
	}
	return s.puzzles[rand.Intn(len(s.puzzles))], true
}

// Count returns the number of loaded puzzles.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.puzzles)
}

func isCSVFile(name string) bool {
	for _, suffix := range []string{".csv", ".csv.zst", ".csv.gz"} {
		if strings.HasSuffix(name, suffix) {
			return true
		}
	}
	return false
}

func isPGNFile(name string) bool {
	ext := filepath.Ext(name)
	if ext == ".pgn" {
		return true
	}
	if ext == ".zst" {
		base := name[:len(name)-4]
		return filepath.Ext(base) == ".pgn"
	}
	return false
}

func parseRating(s string) int {
	if s == "" || s == "?" || s == "-" {
		return 0
	}
	r, _ := strconv.Atoi(s)
	return r
}

// moveToUCI converts a pgn.Mv to UCI notation (e.g., "e2e4", "e7e8q").
func moveToUCI(mv pgn.Mv) string {
	files := "abcdefgh"
	ranks := "12345678"

	from := string(files[mv.From%8]) + string(ranks[mv.From/8])
	to := string(files[mv.To%8]) + string(ranks[mv.To/8])

	uci := from + to

	switch mv.Promo {
	case pgn.PromoQueen:
		uci += "q"
	case pgn.PromoRook:
		uci += "r"
	case pgn.PromoBishop:
		uci += "b"
	case pgn.PromoKnight:
		uci += "n"
	}

	return uci
}
