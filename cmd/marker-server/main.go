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
	"github.com/tendant/detect-archive-pipeline/internal/storage"
)

func main() {
	cfg, err := config.LoadMarker()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := logging.NewLogger(cfg.LogLevel)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	store, err := storage.NewFilesystemStorage(cfg.Stores.Positive)
	if err != nil {
		logger.Fatal("failed to open positive store", zap.Error(err))
	}

	server := &http.Server{
		Addr:    cfg.MarkerAddr,
		Handler: handlers.NewMarkerHandler(store, logger).Routes(),
	}

	// Start server in goroutine
	go func() {
		logger.Info("marker server starting",
			zap.String("addr", cfg.MarkerAddr),
			zap.String("store", store.BaseDir()),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server")

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Fatal("server forced to shutdown", zap.Error(err))
	}

	logger.Info("server stopped")
}
