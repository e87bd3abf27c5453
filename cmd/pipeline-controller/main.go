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

	"go.uber.org/zap"

	"github.com/tendant/detect-archive-pipeline/internal/config"
	"github.com/tendant/detect-archive-pipeline/internal/handlers"
	"github.com/tendant/detect-archive-pipeline/internal/logging"
	"github.com/tendant/detect-archive-pipeline/pkg/runner"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := logging.NewLogger(cfg.LogLevel)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// A share that cannot be reached at startup is fatal
	r, err := runner.New(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to start pipeline", zap.Error(err))
	}
	defer r.Close()

	var metricsServer *http.Server
	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.HandleFunc("/health", handlers.HandleHealth)
		mux.Handle("/metrics", r.Metrics().Handler())
		metricsServer = &http.Server{
			Addr:    cfg.MetricsAddr,
			Handler: mux,
		}

		go func() {
			logger.Info("metrics server starting", zap.String("addr", cfg.MetricsAddr))
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server failed", zap.Error(err))
			}
		}()
	}

	done := make(chan error, 1)
	go func() {
		done <- r.Run(ctx)
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		logger.Info("shutting down, waiting for the running cycle")
		cancel()
		if err := <-done; err != nil {
			logger.Error("controller stopped with error", zap.Error(err))
		}
	case err := <-done:
		if err != nil {
			logger.Error("controller stopped with error", zap.Error(err))
		}
	}

	if metricsServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn("metrics server forced to shutdown", zap.Error(err))
		}
	}

	logger.Info("pipeline stopped")
}
