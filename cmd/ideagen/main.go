// Command ideagen grows a CSV corpus of software project ideas by prompting
// Gemini in batches, filtering near-duplicates and appending the survivors.
//
// Configuration comes from the environment (and an optional .env file). The
// run stops after MAX_BATCHES batches, on the first fatal batch, or on
// SIGINT/SIGTERM; accepted ideas are flushed to the corpus in every case.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/tbourn/go-idea-generator/internal/config"
	"github.com/tbourn/go-idea-generator/internal/corpus"
	"github.com/tbourn/go-idea-generator/internal/dedupe"
	httpapi "github.com/tbourn/go-idea-generator/internal/http"
	"github.com/tbourn/go-idea-generator/internal/llm"
	"github.com/tbourn/go-idea-generator/internal/observability"
	"github.com/tbourn/go-idea-generator/internal/quota"
	"github.com/tbourn/go-idea-generator/internal/repo"
	"github.com/tbourn/go-idea-generator/internal/services"
	"github.com/tbourn/go-idea-generator/internal/sysutil"
)

// version is set with -ldflags "-X main.version=...".
var version = "dev"

const (
	exitOK       = 0
	exitFailure  = 1
	exitCanceled = 130
)

func main() {
	os.Exit(run())
}

func run() int {
	config.LoadDotEnv()
	cfg, err := config.Load()
	if err != nil {
		lg := sysutil.NewLogger("info", false, nil)
		if errors.Is(err, config.ErrMissingAPIKey) {
			lg.Error().Msg("GOOGLE_API_KEY is not set; add it to the environment or .env")
		} else {
			lg.Error().Err(err).Msg("invalid configuration")
		}
		return exitFailure
	}

	lg := sysutil.NewLogger(cfg.LogLevel, cfg.LogPretty, nil)
	lg.Info().Interface("config", cfg.Redacted()).Str("version", version).Msg("starting")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, version)
	if err != nil {
		lg.Error().Err(err).Msg("otel setup failed")
		return exitFailure
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownOTel(sctx); err != nil {
			lg.Warn().Err(err).Msg("otel shutdown failed")
		}
	}()

	db, err := repo.OpenSQLite(cfg.JournalPath)
	if err != nil {
		lg.Error().Err(err).Str("path", cfg.JournalPath).Msg("open journal failed")
		return exitFailure
	}
	if sqlDB, err := db.DB(); err == nil {
		defer sqlDB.Close()
	}
	if err := repo.AutoMigrate(db); err != nil {
		lg.Error().Err(err).Msg("migrate journal failed")
		return exitFailure
	}
	journal := repo.NewJournal(db)

	store := corpus.NewCSVStore(cfg.OutputPath)
	seed, lastID, err := store.Load()
	if err != nil {
		lg.Error().Err(err).Str("path", cfg.OutputPath).Msg("load corpus failed")
		return exitFailure
	}
	lg.Info().Int("ideas", len(seed)).Int64("last_id", lastID).Str("path", store.Path()).Msg("corpus loaded")

	index := dedupe.NewIndex(seed,
		dedupe.WithFuzzy(cfg.DedupeEnabled),
		dedupe.WithThreshold(cfg.DedupeThreshold),
	)

	client, err := llm.NewGeminiClient(cfg.Gemini.APIKey, cfg.Gemini.Model, cfg.Gemini.Timeout,
		llm.WithBaseURL(cfg.Gemini.BaseURL),
		llm.WithTemperature(cfg.Gemini.Temperature),
	)
	if err != nil {
		lg.Error().Err(err).Msg("gemini client setup failed")
		return exitFailure
	}

	gen := &services.GenerationService{
		Model:      client,
		Quota:      quota.New(cfg.Quota.DayLimit, cfg.Quota.MinuteLimit),
		Limiter:    services.NewMinuteLimiter(cfg.Quota.MinuteLimit),
		QuotaPause: cfg.Quota.Pause,
		Attempts:   cfg.Retry.Attempts,
		BaseDelay:  cfg.Retry.BaseDelay,
		Logger:     lg.With().Str("component", "generation").Logger(),
	}

	if cfg.OpsAddr != "" {
		srv := httpapi.NewServer(cfg.OpsAddr, journal, cfg, lg.With().Str("component", "ops").Logger())
		go serveOps(srv, lg)
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(sctx)
		}()
	}

	loop := &services.GenerationLoop{
		Generator:  gen,
		Index:      index,
		Store:      store,
		Recorder:   journal,
		BatchSize:  cfg.BatchSize,
		MaxBatches: cfg.MaxBatches,
		Threshold:  cfg.DedupeThreshold,
		BatchDelay: cfg.BatchDelay,
		LastID:     lastID,
		OutputPath: store.Path(),
		Logger:     lg.With().Str("component", "loop").Logger(),
	}
	sum, err := loop.Run(ctx)

	ev := lg.Info()
	if err != nil {
		ev = lg.Error().Err(err)
	}
	ev.Str("run_id", sum.RunID).
		Str("reason", string(sum.Reason)).
		Int("batches", sum.Batches).
		Int("accepted", sum.Accepted).
		Int64("first_id", sum.FirstID).
		Int64("last_id", sum.LastID).
		Msg("done")

	switch sum.Reason {
	case services.StopCompleted:
		if err != nil {
			return exitFailure
		}
		return exitOK
	case services.StopCanceled:
		return exitCanceled
	default:
		return exitFailure
	}
}

func serveOps(srv *http.Server, lg zerolog.Logger) {
	lg.Info().Str("addr", srv.Addr).Msg("ops server listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		lg.Error().Err(err).Msg("ops server failed")
	}
}
