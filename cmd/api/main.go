package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/meterline/meterline/internal/config"
	"github.com/meterline/meterline/internal/handler"
	"github.com/meterline/meterline/internal/logger"
	"github.com/meterline/meterline/internal/pipeline"
	"github.com/meterline/meterline/internal/service"
	"github.com/meterline/meterline/internal/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	log, err := logger.New(cfg.ServiceEnvironment)
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer func(log *zap.Logger) {
		if err := log.Sync(); err != nil {
			log.Error("Failed to sync logger", zap.Error(err))
		}
	}(log)

	log.Info("Starting meterline",
		zap.String("environment", cfg.ServiceEnvironment),
		zap.String("port", cfg.ServiceAPIPort),
		zap.String("data_dir", cfg.DataDir))

	db, err := storage.Open(storage.Config{
		Path:       cfg.DataDir,
		InMemory:   cfg.DataInMemory,
		SyncWrites: cfg.DataSyncWrites,
		Logger:     log,
	})
	if err != nil {
		log.Fatal("Failed to open storage", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Failed to close storage", zap.Error(err))
		}
	}()

	events := storage.NewEventStore(db, log)
	identities := storage.NewIdentityStore(db, log)

	ingestor := pipeline.New(events, identities, log)
	queries := service.NewQueryService(events, log)

	h := handler.NewHandler(ingestor, queries, log)

	server := &http.Server{
		Addr:    ":" + cfg.ServiceAPIPort,
		Handler: h,
	}

	go func() {
		log.Info("API server starting", zap.String("address", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start API server", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	log.Info("Shutting down gracefully")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.ShutdownTimeoutSec)*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("Server shutdown failed", zap.Error(err))
	}
}
