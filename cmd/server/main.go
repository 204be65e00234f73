package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"mindlink/infrastructure/config"
	"mindlink/infrastructure/di"
	"mindlink/interfaces/sync"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	container, err := di.InitializeContainer(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to initialize container: %v", err)
	}
	logger := container.Logger

	// TCP sync listener
	tcpServer := sync.NewTCPServer(cfg.ListenAddress, container.Registry, container.Store, container.Allocator, logger)
	go func() {
		if err := tcpServer.Start(ctx); err != nil {
			logger.Fatal("Sync server failed to start", zap.Error(err))
		}
	}()

	// WebSocket + health endpoints
	httpServer := sync.NewHTTPServer(ctx, container.Registry, container.Store, container.Allocator, cfg.AllowedOrigins, logger)
	srv := &http.Server{
		Addr:         cfg.HTTPAddress,
		Handler:      httpServer.Routes(cfg.AllowedOrigins),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("Starting server",
			zap.String("syncAddress", cfg.ListenAddress),
			zap.String("httpAddress", cfg.HTTPAddress),
			zap.String("environment", cfg.Environment),
			zap.String("documentID", cfg.DocumentID),
			zap.String("persistence", cfg.PersistenceBackend),
		)

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server failed to start", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	// Graceful shutdown
	logger.Info("Shutting down server...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", zap.Error(err))
	}
	container.Registry.CloseAll()

	if err := logger.Sync(); err != nil {
		log.Printf("Failed to sync logger: %v", err)
	}

	log.Println("Server stopped")
}
