package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/Izanagi078/Final-Work/internal/config"
	"github.com/Izanagi078/Final-Work/internal/server"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	// Load .env (optional)
	if err := godotenv.Load(); err != nil {
		log.Println("Ledger: No .env file found, relying on system env vars")
	}

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync()

	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv, err := server.NewLedgerServer(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to start ledger service", zap.Error(err))
	}

	if err := srv.Run(ctx); err != nil {
		logger.Fatal("ledger service failed", zap.Error(err))
	}
	logger.Info("ledger service stopped")
}
