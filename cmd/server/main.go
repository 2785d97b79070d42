package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/scribeworks/marathon-backend/internal/config"
	"github.com/scribeworks/marathon-backend/internal/database"
	"github.com/scribeworks/marathon-backend/internal/draft"
	"github.com/scribeworks/marathon-backend/internal/handler"
	"github.com/scribeworks/marathon-backend/internal/logger"
	"github.com/scribeworks/marathon-backend/internal/pipeline"
	"github.com/scribeworks/marathon-backend/internal/progress"
	"github.com/scribeworks/marathon-backend/internal/repository"
	"github.com/scribeworks/marathon-backend/internal/router"
	"github.com/scribeworks/marathon-backend/internal/service"
	"github.com/scribeworks/marathon-backend/internal/session"
	"github.com/scribeworks/marathon-backend/internal/validator"
	"github.com/scribeworks/marathon-backend/internal/worker"
)

func main() {
	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	log.Info().
		Str("port", cfg.ServerPort).
		Str("mode", cfg.GinMode).
		Str("log_level", cfg.LogLevel).
		Msg("Starting Marathon Backend")

	// ─── Initialize Validator ──────────────────────────────────────────
	validator.Setup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ─── Connect to PostgreSQL ─────────────────────────────────────────
	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	// ─── Connect to Redis ──────────────────────────────────────────────
	rdb, err := database.NewRedisClient(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer rdb.Close()

	// ─── Initialize Repositories ───────────────────────────────────────
	marathonRepo := repository.NewMarathonRepository(pool)
	attemptRepo := repository.NewAttemptRepository(pool)
	submissionRepo := repository.NewSubmissionRepository(pool)
	reportRepo := repository.NewReportRepository(pool)
	accountRepo := repository.NewParticipantRepository(pool)

	// ─── Initialize Core Session Layer ─────────────────────────────────
	draftStore := draft.NewStore(rdb, log)
	completionService := service.NewCompletionService(rdb, log)
	registry := session.NewRegistry(session.SystemClock(), cfg.TickInterval, draftStore, completionService, log)

	// ─── Initialize Progress Bus + Pipeline ────────────────────────────
	progressMirror := progress.NewRedisMirror(rdb, log)
	progressBus := progress.NewBus(progressMirror, log)
	runner := pipeline.NewRunner(progressBus, log)

	// ─── Initialize Services ──────────────────────────────────────────
	authService := service.NewAuthService(cfg, rdb)
	sessionService := service.NewSessionService(marathonRepo, attemptRepo, registry, draftStore, log)
	analyzer := service.NewAnalyzer(cfg, log)
	reportService := service.NewReportService(marathonRepo, submissionRepo, reportRepo, analyzer, runner, log)

	// ─── Initialize Handlers ──────────────────────────────────────────
	handlers := &router.Handlers{
		Auth:   handler.NewAuthHandler(authService, accountRepo, log),
		WS:     handler.NewWSHandler(sessionService, log, cfg.AllowedOrigins),
		Report: handler.NewReportHandler(reportService, progressBus, log),
	}

	// ─── Start Background Workers ─────────────────────────────────────
	workerCtx, workerCancel := context.WithCancel(context.Background())

	answerWorker := worker.NewAnswerWorker(pool, rdb, log)
	completionWorker := worker.NewCompletionWorker(pool, rdb, log)

	go answerWorker.Start(workerCtx)
	go completionWorker.Start(workerCtx)

	// ─── Setup Router ──────────────────────────────────────────────────
	r := router.SetupRouter(authService, handlers, cfg)

	// ─── Create HTTP Server ────────────────────────────────────────────
	srv := &http.Server{
		Addr:    ":" + cfg.ServerPort,
		Handler: r,
	}

	// ─── Start Server in Goroutine ─────────────────────────────────────
	go func() {
		log.Info().Str("addr", ":"+cfg.ServerPort).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server error")
		}
	}()

	// ─── Graceful Shutdown ─────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	log.Info().Str("signal", sig.String()).Msg("Shutting down gracefully...")

	// 1. Stop accepting new HTTP requests (5s timeout).
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}

	// 2. Stop background workers and wait for queues to drain.
	workerCancel()
	time.Sleep(2 * time.Second) // Allow workers to drain.

	log.Info().Msg("Shutdown complete")
}

// init sets zerolog global defaults before main runs.
func init() {
	zerolog.TimeFieldFormat = time.RFC3339
}
