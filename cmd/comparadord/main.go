package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/ChanticoMarketing/Comparador-de-Documentos-sub000/internal/common"
	"github.com/ChanticoMarketing/Comparador-de-Documentos-sub000/internal/export"
	"github.com/ChanticoMarketing/Comparador-de-Documentos-sub000/internal/llm/openai"
	"github.com/ChanticoMarketing/Comparador-de-Documentos-sub000/internal/ocr"
	"github.com/ChanticoMarketing/Comparador-de-Documentos-sub000/internal/pipeline"
	"github.com/ChanticoMarketing/Comparador-de-Documentos-sub000/internal/repository"
	"github.com/ChanticoMarketing/Comparador-de-Documentos-sub000/internal/server"
)

func main() {
	_ = godotenv.Load()
	logger := newLogger()
	slog.SetDefault(logger)

	cfg, err := common.LoadConfig()
	if err != nil {
		logger.Error("config load failed", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		logger.Error("config invalid", "error", err)
		os.Exit(1)
	}
	if err := os.MkdirAll(cfg.Pipeline.UploadDir, 0o755); err != nil {
		logger.Error("create upload dir failed", "dir", cfg.Pipeline.UploadDir, "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := repository.Open(cfg.Database, logger)
	if err != nil {
		logger.Error("database open failed", "error", err)
		os.Exit(1)
	}
	defer repository.Close(db, logger)
	if err := repository.HealthCheck(ctx, db, cfg.Database); err != nil {
		logger.Error("database health check failed", "error", err)
		os.Exit(1)
	}
	logger.Info("database health OK")

	extractor, err := ocr.NewFromConfig(cfg.OCR, logger)
	if err != nil {
		logger.Error("ocr setup failed", "error", err)
		os.Exit(1)
	}
	comparator := openai.NewClient(openai.Config{
		APIKey:        cfg.LLM.APIKey,
		BaseURL:       cfg.LLM.BaseURL,
		Model:         cfg.LLM.Model,
		FallbackModel: cfg.LLM.FallbackModel,
		Temperature:   cfg.LLM.Temperature,
		Timeout:       cfg.LLM.Timeout,
	}, logger)

	sessions := repository.NewSessionRepository(db, logger)
	comparisons := repository.NewComparisonRepository(db, logger)
	store := repository.NewStore(sessions, comparisons)

	manager := pipeline.NewManager(logger, extractor, comparator, store,
		pipeline.WithPairTimeout(cfg.Pipeline.PairTimeout),
	)

	exporter := export.NewService(comparisons, logger)
	srv := server.New(cfg.Server, cfg.Pipeline.UploadDir, manager, sessions, comparisons, exporter, logger)

	go func() {
		if err := srv.Start(); err != nil {
			logger.Error("http server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Stop(shutdownCtx); err != nil {
		logger.Error("http shutdown failed", "error", err)
	}
	manager.Wait()
	logger.Info("stopped")
}

func newLogger() *slog.Logger {
	level := slog.LevelInfo
	switch os.Getenv("LOG_LEVEL") {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}
