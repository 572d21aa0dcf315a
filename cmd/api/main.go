package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/examsentry/backend/internal/config"
	"github.com/examsentry/backend/internal/handler"
	"github.com/examsentry/backend/internal/service/detection"
	"github.com/examsentry/backend/internal/service/hub"
	"github.com/examsentry/backend/internal/service/report"
	sessionService "github.com/examsentry/backend/internal/service/session"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Printf("warning: failed to load .env file: %v", err)
		log.Println("continuing with system environment variables only")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	registry := sessionService.NewService()
	broadcastHub := hub.NewHub(registry, cfg.Detection.SubscriberBuffer)

	pipeline := detection.NewPipeline(cfg.Detection.DetectorTimeout,
		&detection.FaceCountDetector{SecondFaceRate: cfg.Detection.Tuning.SecondFaceRate},
		&detection.GazeDetector{OffScreenRate: cfg.Detection.Tuning.GazeOffRate},
		&detection.VoiceActivityDetector{ActivityRate: cfg.Detection.Tuning.VoiceRate},
	)

	aggregator := detection.NewAggregator(registry, broadcastHub)
	dispatcher := detection.NewDispatcher(registry, pipeline, aggregator)

	reports := initReportService(ctx, cfg.AI)

	router := handler.NewRouter(registry, broadcastHub, dispatcher, pipeline, reports)

	startServer(ctx, cfg.Server, router, dispatcher)
}

// initReportService wires the optional model-backed report generator. The
// heuristic fallback is always available, so any failure here only costs the
// narrative summaries.
func initReportService(ctx context.Context, aiCfg config.AIConfig) *report.Service {
	reportCfg := report.Config{Enabled: aiCfg.ReportEnabled}

	if !aiCfg.Enabled() {
		if aiCfg.ReportEnabled {
			log.Println("report LLM requested but Ark credentials missing, using heuristic summaries")
		}
		reports, _ := report.NewService(ctx, nil, report.Config{})
		return reports
	}

	chatModel, err := aiCfg.NewChatModel(ctx)
	if err != nil {
		log.Printf("warning: failed to initialize chat model: %v", err)
		reports, _ := report.NewService(ctx, nil, report.Config{})
		return reports
	}

	reports, err := report.NewService(ctx, chatModel, reportCfg)
	if err != nil {
		log.Printf("warning: failed to initialize report service: %v", err)
		reports, _ = report.NewService(ctx, nil, report.Config{})
		return reports
	}

	if reports.Enabled() {
		log.Println("report service using model-backed summaries")
	}
	return reports
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler, dispatcher *detection.Dispatcher) {
	srv := &http.Server{
		Addr:              serverCfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	log.Printf("ExamSentry backend listening on %s", serverCfg.Addr)
	if err := runServer(ctx, srv, dispatcher); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

func runServer(ctx context.Context, srv *http.Server, dispatcher *detection.Dispatcher) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)

		// Let in-flight frames finish so accepted work is fully applied.
		if err := dispatcher.Drain(shutdownCtx); err != nil {
			log.Printf("shutdown: frame drain incomplete: %v", err)
		}

		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
