package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/safeflow-app/receipts-backend/internal/common"
	"github.com/safeflow-app/receipts-backend/internal/export"
	"github.com/safeflow-app/receipts-backend/internal/extract"
	"github.com/safeflow-app/receipts-backend/internal/llm/openai"
	"github.com/safeflow-app/receipts-backend/internal/record"
	"github.com/safeflow-app/receipts-backend/internal/repository"
	"github.com/safeflow-app/receipts-backend/internal/server"
)

func main() {
	cfg := common.LoadConfig()
	logger := common.NewLogger("receiptsd", cfg.LogLevel)

	if err := cfg.Validate(); err != nil {
		logger.Error("config validation failed", "error", err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var (
		users    repository.UserRepository
		receipts repository.ReceiptRepository
	)
	switch cfg.Database.Driver {
	case "postgres":
		pool, err := repository.Open(ctx, cfg.Database, logger)
		if err != nil {
			logger.Error("opening database", "error", err)
			os.Exit(1)
		}
		defer pool.Close()
		if err := repository.InitSchema(ctx, pool); err != nil {
			logger.Error("initializing schema", "error", err)
			os.Exit(1)
		}
		users = repository.NewPostgresUserRepository(pool, logger)
		receipts = repository.NewPostgresReceiptRepository(pool, logger)
	case "sqlite":
		db, err := repository.OpenSQLite(ctx, cfg.Database.DSN, logger)
		if err != nil {
			logger.Error("opening sqlite database", "error", err)
			os.Exit(1)
		}
		defer func() { _ = db.Close() }()
		if err := repository.InitSQLiteSchema(ctx, db); err != nil {
			logger.Error("initializing sqlite schema", "error", err)
			os.Exit(1)
		}
		users = repository.NewSQLiteUserRepository(db, logger)
		receipts = repository.NewSQLiteReceiptRepository(db, logger)
	}

	registry, err := extract.NewDefaultRegistry(logger)
	if err != nil {
		logger.Error("building profile registry", "error", err)
		os.Exit(1)
	}

	vision := openai.NewClient(openai.Config{
		APIKey:      cfg.LLM.APIKey,
		BaseURL:     cfg.LLM.BaseURL,
		Model:       cfg.LLM.Model,
		Temperature: cfg.LLM.Temperature,
		MaxTokens:   cfg.LLM.MaxTokens,
		Timeout:     cfg.LLM.Timeout,
	}, logger)

	srv := server.New(
		logger,
		vision,
		users,
		receipts,
		extract.NewPipeline(registry, logger),
		record.NewAssembler(),
		export.NewService(receipts, logger),
	)

	httpServer := &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           srv.Router(cfg.Server.AllowedOrigins),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("server.listening", "addr", cfg.Server.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server stopped", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("server.shutting_down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
		os.Exit(1)
	}
	logger.Info("server.stopped")
}
