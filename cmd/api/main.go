package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"flightdeck/internal/config"
	"flightdeck/internal/logger"
	"flightdeck/internal/server"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if err := logger.Init(cfg.LogLevel, cfg.LogDevelopment); err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv, err := server.New(cfg)
	if err != nil {
		logger.Log.Fatal("failed to build server", zap.Error(err))
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Listen(fmt.Sprintf(":%d", cfg.Port))
	}()
	logger.Log.Info("listening", zap.Int("port", cfg.Port))

	select {
	case <-ctx.Done():
		logger.Log.Info("signal received, shutting down")
	case err := <-errCh:
		if err != nil {
			logger.Log.Error("failed to serve", zap.Error(err))
		}
	}

	if err := srv.Shutdown(); err != nil {
		logger.Log.Error("shutdown", zap.Error(err))
	}
}
