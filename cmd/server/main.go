package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"classroom-grader/internal/api"
	"classroom-grader/internal/assessment"
	"classroom-grader/internal/buildtool"
	"classroom-grader/internal/config"
	"classroom-grader/internal/engine"
	"classroom-grader/internal/grading"
	"classroom-grader/internal/monitor"
	"classroom-grader/internal/sandbox"
	"classroom-grader/internal/storage"
)

func main() {
	// Structured logging
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMs
	if os.Getenv("ENV") != "production" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}

	// Load configuration
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	var cfg *config.Config
	var err error

	if _, statErr := os.Stat(configPath); statErr == nil {
		cfg, err = config.Load(configPath)
		if err != nil {
			log.Fatal().Err(err).Str("path", configPath).Msg("failed to load config")
		}
	} else {
		log.Info().Msg("no config file found, using defaults")
		cfg = config.DefaultConfig()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Sandbox pool: one long-lived container per build-tool kind, started
	// lazily on first use.
	pool := sandbox.NewPool(sandbox.Config{
		Images:      cfg.Sandbox.Images,
		ExecTimeout: cfg.Sandbox.ExecTimeout,
		StuckWindow: cfg.Sandbox.StuckWindow,
	})

	metrics := monitor.NewMetrics(func() float64 { return float64(pool.Size()) })

	tools := buildtool.NewRegistry(cfg.Grading.DefaultTool)
	eng := engine.New(pool, tools, engine.Options{
		ExecTimeout:   cfg.Sandbox.ExecTimeout,
		WorkspaceRoot: cfg.Sandbox.WorkspaceRoot,
	}, metrics)

	// Database (optional, runs without it for development)
	var db *storage.DB
	if cfg.Database.DSN != "" {
		db, err = storage.New(ctx, cfg.Database.DSN)
		if err != nil {
			log.Warn().Err(err).Msg("database unavailable, grading persistence disabled")
		} else {
			defer db.Close()
		}
	}

	// Buffered submission writer so grading never blocks on the database
	var writer *storage.SubmissionWriter
	var correlator *grading.Correlator
	if db != nil {
		writer = storage.NewSubmissionWriter(db, 10000)
		writer.Start()
		defer writer.Flush(10 * time.Second)
		correlator = grading.NewCorrelator(db, writer)
	}

	// Timed assessments need Redis; grading alone does not.
	var attempts *assessment.Manager
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Warn().Err(err).Str("addr", cfg.Redis.Addr).Msg("redis unavailable, timed assessments disabled")
	} else {
		var subs grading.SubmissionStore = discardStore{}
		if writer != nil {
			subs = writer
		}
		attempts = assessment.NewManager(redisClient, subs, cfg.Assessment.GraceWindow)
	}
	defer redisClient.Close()

	var reader api.SubmissionReader
	if db != nil {
		reader = db
	}
	handlers := api.NewHandlers(eng, correlator, attempts, reader, metrics)
	server := api.NewServer(cfg, handlers, db, metrics, pool.Size)

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh

		log.Info().Str("signal", sig.String()).Msg("shutting down")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("HTTP server shutdown error")
		}

		// Drain pending workspace cleanups, then stop the containers.
		eng.Close()
		pool.Shutdown(shutdownCtx)

		cancel()
	}()

	log.Info().
		Str("addr", cfg.Address()).
		Bool("db_enabled", db != nil).
		Bool("assessments_enabled", attempts != nil).
		Str("default_tool", cfg.Grading.DefaultTool).
		Msg("server starting")

	if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal().Err(err).Msg("server failed")
	}

	log.Info().Msg("server stopped")
}

// discardStore keeps timed assessments usable without a database: attempts
// still enforce the state machine, submissions just aren't persisted.
type discardStore struct{}

func (discardStore) SaveSubmission(_ context.Context, sub *grading.Submission) error {
	log.Warn().Str("submission_id", sub.ID).Msg("no database configured, submission discarded")
	return nil
}
