package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/freeeve/evaltrainer/internal/analysis"
	"github.com/freeeve/evaltrainer/internal/engine"
	"github.com/freeeve/evaltrainer/internal/httpapi"
	"github.com/freeeve/evaltrainer/internal/logx"
	"github.com/freeeve/evaltrainer/internal/puzzle"
)

func main() {
	defaultStockfish := "stockfish"
	if envPath := os.Getenv("STOCKFISH_PATH"); envPath != "" {
		defaultStockfish = envPath
	}

	var (
		// Server
		addr = flag.String("addr", ":8008", "listen address")

		// Stockfish
		stockfishPath = flag.String("stockfish", defaultStockfish, "path to Stockfish executable")

		// Analysis settings
		depth       = flag.Int("depth", 18, "default analysis depth")
		multiPV     = flag.Int("multipv", 3, "ranked lines per analysis")
		settleMs    = flag.Int("settle-ms", 60, "pause after stop before the next search")
		cacheSize   = flag.Int("cache-size", 512, "analysis result cache entries")
		maxSessions = flag.Int("max-sessions", 32, "concurrent session cap")
		sessionTTL  = flag.Duration("session-ttl", 10*time.Minute, "reap sessions idle longer than this")

		// Puzzle settings
		puzzleDir    = flag.String("puzzle-dir", "", "directory of puzzle CSV and PGN files (empty = disabled)")
		puzzleRating = flag.Int("puzzle-rating", 2000, "minimum rating for puzzles extracted from PGN games")
	)
	flag.Parse()

	logger := logx.NewLogger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg := analysis.NewRegistry(analysis.RegistryConfig{
		Logger: logx.Component(logger, "registry"),
		Session: analysis.Config{
			DefaultDepth: *depth,
			MaxMultiPV:   *multiPV,
			SettleDelay:  time.Duration(*settleMs) * time.Millisecond,
		},
		MaxSessions: *maxSessions,
		IdleTTL:     *sessionTTL,
		CacheSize:   *cacheSize,
	}, func() (analysis.Channel, error) {
		p, err := engine.Start(*stockfishPath, logx.Component(logger, "engine"))
		if err != nil {
			return nil, err
		}
		return p, nil
	})
	defer reg.Close()

	// Load puzzles
	var puzzles *puzzle.Store
	if *puzzleDir != "" {
		puzzles = puzzle.NewStore(logx.Component(logger, "puzzle"))
		n, err := puzzles.LoadDir(*puzzleDir, *puzzleRating)
		if err != nil {
			logger.Warn().Err(err).Str("dir", *puzzleDir).Msg("failed to load puzzles")
			puzzles = nil
		} else {
			logger.Info().Int("puzzles", n).Msg("puzzle store loaded")
		}
	}

	// Start HTTP server
	srv := &http.Server{
		Addr:         *addr,
		Handler:      httpapi.NewRouter(logger, reg, puzzles),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // event streams stay open
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", srv.Addr).Str("stockfish", *stockfishPath).Msg("api listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("api server")
		}
	}()

	// Reap idle sessions
	go func() {
		if err := reg.Run(ctx); err != nil && err != context.Canceled {
			logger.Error().Err(err).Msg("session reaper stopped")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("http server shutdown error")
	}

	reg.Close()
	logger.Info().Msg("shutdown complete")
}
