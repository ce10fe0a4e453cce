package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"

	"github.com/joho/godotenv"

	"github.com/ChanticoMarketing/Comparador-de-Documentos-sub000/internal/common"
	"github.com/ChanticoMarketing/Comparador-de-Documentos-sub000/internal/repository"
)

func main() {
	_ = godotenv.Load()
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	cfg, err := common.LoadConfig()
	if err != nil {
		logger.Error("config load failed", "error", err)
		os.Exit(2)
	}
	if cfg.Database.DSN == "" {
		logger.Error("DB_URL env var is required")
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	db, err := repository.Open(cfg.Database, logger)
	if err != nil {
		logger.Error("opening DB failed", "error", err)
		os.Exit(1)
	}
	defer repository.Close(db, logger)

	if err := repository.HealthCheck(ctx, db, cfg.Database); err != nil {
		logger.Error("DB health: FAIL", "error", err)
		os.Exit(1)
	}
	logger.Info("DB health: OK", "driver", cfg.Database.Driver)

	// Typed query as a smoke test of the schema.
	sessions := repository.NewSessionRepository(db, logger)
	recent, err := sessions.List(ctx, "", 5)
	if err != nil {
		logger.Error("listing sessions failed", "error", err)
		os.Exit(1)
	}
	logger.Info("recent sessions", "count", len(recent))
	for _, s := range recent {
		logger.Info("session",
			"id", s.ID,
			"status", s.Status,
			"invoice", s.InvoiceFilename,
			"delivery", s.DeliveryFilename,
		)
	}
}
