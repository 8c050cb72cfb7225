package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/M1nhHoang/marketintel/internal/adapters"
	"github.com/M1nhHoang/marketintel/internal/adapters/calendar"
	"github.com/M1nhHoang/marketintel/internal/adapters/sbv"
	"github.com/M1nhHoang/marketintel/internal/adapters/vneconomy"
	"github.com/M1nhHoang/marketintel/internal/adapters/vnexpress"
	"github.com/M1nhHoang/marketintel/internal/config"
	"github.com/M1nhHoang/marketintel/internal/database"
	"github.com/M1nhHoang/marketintel/internal/extractor"
	"github.com/M1nhHoang/marketintel/internal/llmgateway"
	"github.com/M1nhHoang/marketintel/internal/pipeline/classifier"
	"github.com/M1nhHoang/marketintel/internal/pipeline/orchestrator"
	"github.com/M1nhHoang/marketintel/internal/pipeline/ranker"
	"github.com/M1nhHoang/marketintel/internal/pipeline/scorer"
	"github.com/M1nhHoang/marketintel/internal/repository"
	"github.com/M1nhHoang/marketintel/internal/scheduler"
	"github.com/M1nhHoang/marketintel/internal/server"
	"github.com/M1nhHoang/marketintel/pkg/logger"

	"github.com/rs/zerolog"
)

// llmCallWorkers/llmCallQueueDepth size the background LLM call
// history writer; history is fire-and-forget so a small pool suffices.
const (
	llmCallWorkers    = 2
	llmCallQueueDepth = 256
)

func main() {
	runCmd := flag.NewFlagSet("run", flag.ExitOnError)
	once := runCmd.Bool("once", false, "perform exactly one pass synchronously and exit")
	verbose := runCmd.Bool("verbose", false, "enable debug-level logging")

	if len(os.Args) < 2 || os.Args[1] != "run" {
		fmt.Fprintln(os.Stderr, "usage: marketintel run [--once] [--verbose]")
		os.Exit(2)
	}
	_ = runCmd.Parse(os.Args[2:])

	level := "info"
	if *verbose {
		level = "debug"
	}
	log := logger.New(logger.Config{Level: level, Pretty: true})

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	db, err := database.New(cfg.DatabasePath, database.ProfileStandard, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open database")
	}
	defer db.Close()

	if err := db.Migrate(); err != nil {
		log.Fatal().Err(err).Msg("failed to run migrations")
	}

	orch, repos := wireOrchestrator(db, cfg, log)
	sched := scheduler.New(orch, cfg.ScheduleInterval, cfg.StartupDelay, cfg.ShutdownGrace, log)

	if *once {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		if err := sched.RunOnce(ctx); err != nil {
			log.Error().Err(err).Msg("run failed")
			os.Exit(1)
		}
		os.Exit(0)
	}

	srv := server.New(server.Config{
		Port:    cfg.Port,
		Log:     log,
		Repos:   repos,
		DevMode: cfg.DevMode,
	})

	sched.Start()
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	log.Info().Int("port", cfg.Port).Msg("marketintel started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down")

	sched.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("marketintel stopped")
}

// wireOrchestrator constructs every repository, the LLM gateway, each
// source adapter, and the pipeline stages, returning the assembled
// Orchestrator plus the read-only repo bundle the HTTP server queries.
func wireOrchestrator(db *database.DB, cfg *config.Config, log zerolog.Logger) (*orchestrator.Orchestrator, server.Repos) {
	conn := db.Conn()

	eventRepo := repository.NewEventRepository(conn, log)
	indicatorRepo := repository.NewIndicatorRepository(conn, log)
	indicatorHistoryRepo := repository.NewIndicatorHistoryRepository(conn, log)
	calendarRepo := repository.NewCalendarRepository(conn, log)
	causalAnalysisRepo := repository.NewCausalAnalysisRepository(conn, log)
	signalRepo := repository.NewSignalRepository(conn, log)
	themeRepo := repository.NewThemeRepository(conn, log)
	watchlistRepo := repository.NewWatchlistRepository(conn, log)
	runHistoryRepo := repository.NewRunHistoryRepository(conn, log)
	llmCallHistoryRepo := repository.NewLLMCallHistoryRepository(conn, log)

	callSink := llmgateway.NewCallSink(llmCallHistoryRepo, log, llmCallWorkers, llmCallQueueDepth)
	gateway := llmgateway.NewOpenAIGateway(cfg.LLMBaseURL, cfg.LLMAPIKey, cfg.LLMModel, callSink, log)

	ext := extractor.New(extractor.Budgets{
		HTTPTimeout:   cfg.ExtractorHTTPTimeout,
		PDFTimeout:    cfg.ExtractorPDFTimeout,
		MaxPDFSize:    cfg.MaxPDFSizeBytes,
		MaxRetries:    3,
		RetryBaseWait: 5 * time.Second,
	}, log)

	crawlers := []orchestrator.Crawler{
		adapters.NewDriver(sbv.New(sbv.DefaultEndpoints(), ext, log), cfg.AdapterMinInterval, log),
		adapters.NewDriver(vnexpress.New(ext, log), cfg.AdapterMinInterval, log),
		adapters.NewDriver(vneconomy.New(ext, log), cfg.AdapterMinInterval, log),
		adapters.NewDriver(calendar.New(log), cfg.AdapterMinInterval, log),
	}

	cls := classifier.New(gateway, cfg.LLMMaxRetries, cfg.LLMRetryDelay, log)
	scr := scorer.New(gateway, log)
	rnk := ranker.New(ranker.Config{
		ThresholdKeyEvents: cfg.ThresholdKeyEvents,
		ThresholdOtherNews: cfg.ThresholdOtherNews,
		MaxKeyEvents:       cfg.MaxKeyEvents,
		MaxEventAgeDays:    cfg.MaxEventAgeDays,
	}, log)

	orch := orchestrator.New(orchestrator.Deps{
		Crawlers:         crawlers,
		Events:           eventRepo,
		Indicators:       indicatorRepo,
		IndicatorHistory: indicatorHistoryRepo,
		Calendar:         calendarRepo,
		CausalAnalyses:   causalAnalysisRepo,
		Signals:          signalRepo,
		Themes:           themeRepo,
		Watchlist:        watchlistRepo,
		RunHistory:       runHistoryRepo,
		Classifier:       cls,
		Scorer:           scr,
		Ranker:           rnk,
	}, log)

	repos := server.Repos{
		Events:     eventRepo,
		Indicators: indicatorRepo,
		History:    indicatorHistoryRepo,
		Signals:    signalRepo,
		Themes:     themeRepo,
		Watchlist:  watchlistRepo,
		RunHistory: runHistoryRepo,
	}

	return orch, repos
}
