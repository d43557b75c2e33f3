// Package main is the entry point for FactorLab, the quantitative-factor
// research platform: users submit factor definitions, the platform
// evaluates them asynchronously against historical market data, and scores
// their predictive power.
package main

import (
	"context"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/aristath/factorlab/internal/config"
	"github.com/aristath/factorlab/internal/formula"
	"github.com/aristath/factorlab/internal/jobs"
	"github.com/aristath/factorlab/internal/logbuffer"
	"github.com/aristath/factorlab/internal/marketdata"
	"github.com/aristath/factorlab/internal/pipeline"
	"github.com/aristath/factorlab/internal/resultstore"
	"github.com/aristath/factorlab/internal/server"
	"github.com/aristath/factorlab/internal/store"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

func newLogger(level string, pretty bool) zerolog.Logger {
	l := zerolog.InfoLevel
	switch level {
	case "debug":
		l = zerolog.DebugLevel
	case "info":
		l = zerolog.InfoLevel
	case "warn":
		l = zerolog.WarnLevel
	case "error":
		l = zerolog.ErrorLevel
	}
	zerolog.SetGlobalLevel(l)
	zerolog.TimeFieldFormat = time.RFC3339

	var output io.Writer = os.Stdout
	if pretty {
		output = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: "15:04:05"}
	}
	return zerolog.New(output).With().Timestamp().Caller().Logger()
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		newLogger("info", true).Fatal().Err(err).Msg("failed to load configuration")
	}

	log := newLogger(cfg.LogLevel, cfg.DevMode)
	log.Info().Msg("starting factorlab")

	// Three databases, tuned per workload: market/factor data and result
	// bundles are write-once-read-many (durable), task/factor metadata is
	// the balanced default (standard), and the log buffer's backing store
	// is scratch the spill-to-disk path can always rebuild (cache).
	marketDB, err := store.Open(store.Config{
		Path: filepath.Join(cfg.DataDir, "market.db"), Profile: store.ProfileDurable, Name: "market",
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open market database")
	}
	defer marketDB.Close()

	appDB, err := store.Open(store.Config{
		Path: filepath.Join(cfg.DataDir, "app.db"), Profile: store.ProfileStandard, Name: "app",
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open application database")
	}
	defer appDB.Close()

	logDB, err := store.Open(store.Config{
		Path: filepath.Join(cfg.DataDir, "logs.db"), Profile: store.ProfileCache, Name: "logs",
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open log database")
	}
	defer logDB.Close()

	marketStore, err := marketdata.NewSQLiteStore(marketDB)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open market collections")
	}
	engine := formula.NewEngine()
	reader := marketdata.NewReader(marketStore, engine, cfg.MarketDataWorkers, log)

	factors, err := resultstore.NewFactorStore(appDB)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open factor store")
	}
	tasks, err := resultstore.NewTaskStore(appDB)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open task store")
	}
	bundles, err := resultstore.NewBundleStore(marketDB)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open result bundle store")
	}
	query := resultstore.NewQuerySurface(factors, tasks, bundles)

	logStore, err := logbuffer.NewSQLiteStore(logDB, tasks)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open log buffer store")
	}
	logBuffer := logbuffer.New(logStore, cfg.LogBufferThreshold, time.Duration(cfg.LogFlushInterval)*time.Second, log)
	spillDir := cfg.LogSpillDir
	if spillDir == "" {
		spillDir = filepath.Join(cfg.DataDir, "logspill")
	}
	logBuffer.EnableSpill(spillDir, cfg.LogSpillThreshold)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	logBuffer.Start(ctx)

	p := pipeline.New(reader)
	runner := jobs.New(factors, tasks, bundles, p, logBuffer, cfg.JobWorkers, uuid.NewString, log)

	srv := server.New(server.Config{
		Log: log, Factors: factors, Tasks: tasks, Bundles: bundles,
		Query: query, Runner: runner, LogBuffer: logBuffer,
		Port: cfg.Port, DevMode: cfg.DevMode,
	})

	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("http server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down")
	cancel()
	logBuffer.Shutdown(context.Background())

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}
	log.Info().Msg("server stopped")
}
