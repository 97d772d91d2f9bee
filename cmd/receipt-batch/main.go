package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/safeflow-app/receipts-backend/constants"
	"github.com/safeflow-app/receipts-backend/internal/common"
	"github.com/safeflow-app/receipts-backend/internal/export"
	"github.com/safeflow-app/receipts-backend/internal/extract"
	"github.com/safeflow-app/receipts-backend/internal/ingest"
	"github.com/safeflow-app/receipts-backend/internal/llm/openai"
	"github.com/safeflow-app/receipts-backend/internal/record"
	"github.com/safeflow-app/receipts-backend/internal/repository"
)

// printError prints an error message to stderr, falling back to stdout if stderr fails
func printError(format string, args ...interface{}) {
	if _, err := fmt.Fprintf(os.Stderr, format, args...); err != nil {
		fmt.Printf(format, args...)
	}
}

func main() {
	var (
		dir      = flag.String("dir", "", "directory to process receipts from (required)")
		userID   = flag.String("user", "", "user id to file receipts under (required)")
		profile  = flag.String("profile", "basic", "extraction profile for -inmem runs")
		business = flag.String("business", "", "business name for -inmem runs")
		inmem    = flag.Bool("inmem", false, "use in-memory SQLite database")
		out      = flag.String("out", "", "output XLSX file path (optional, defaults to parent directory)")
		fromStr  = flag.String("from", "", "from date YYYY-MM-DD")
		toStr    = flag.String("to", "", "to date YYYY-MM-DD")
		watch    = flag.Bool("watch", false, "keep watching the directory for new images")
		workers  = flag.Int("workers", 4, "concurrent extractions")
	)
	flag.Parse()

	if *dir == "" {
		printError("Error: -dir is required\n")
		os.Exit(1)
	}
	if *userID == "" {
		printError("Error: -user is required\n")
		os.Exit(1)
	}
	if *out == "" {
		*out = filepath.Join(filepath.Dir(*dir), "receipts.xlsx")
	}

	var from, to *time.Time
	if *fromStr != "" {
		parsed, err := time.Parse("2006-01-02", *fromStr)
		if err != nil {
			printError("Error: invalid -from date format, use YYYY-MM-DD: %v\n", err)
			os.Exit(1)
		}
		from = &parsed
	}
	if *toStr != "" {
		parsed, err := time.Parse("2006-01-02", *toStr)
		if err != nil {
			printError("Error: invalid -to date format, use YYYY-MM-DD: %v\n", err)
			os.Exit(1)
		}
		to = &parsed
	}

	cfg := common.LoadConfig()
	logger := common.NewLogger("receipt-batch", cfg.LogLevel)

	if cfg.LLM.APIKey == "" {
		printError("Error: OPENAI_API_KEY env var is required\n")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	var (
		users    repository.UserRepository
		receipts repository.ReceiptRepository
	)
	switch {
	case *inmem || cfg.Database.Driver == "sqlite":
		dsn := cfg.Database.DSN
		if *inmem {
			dsn = ":memory:"
		}
		db, err := repository.OpenSQLite(ctx, dsn, logger)
		if err != nil {
			logger.Error("opening sqlite database", "error", err)
			os.Exit(1)
		}
		defer func() { _ = db.Close() }()
		if err := repository.InitSQLiteSchema(ctx, db); err != nil {
			logger.Error("initializing sqlite schema", "error", err)
			os.Exit(1)
		}
		if *inmem {
			err := repository.SeedUser(ctx, db, repository.User{
				ID:                *userID,
				BusinessName:      *business,
				Tier:              constants.DefaultTier,
				ExtractionProfile: constants.ProfileName(*profile),
			})
			if err != nil {
				logger.Error("seeding user", "error", err)
				os.Exit(1)
			}
		}
		users = repository.NewSQLiteUserRepository(db, logger)
		receipts = repository.NewSQLiteReceiptRepository(db, logger)
	default:
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

	ingestor := ingest.NewIngestor(
		vision,
		extract.NewPipeline(registry, logger),
		record.NewAssembler(),
		users,
		receipts,
		*workers,
		logger,
	)

	logger.Info("starting batch ingestion", "dir", *dir, "user", *userID)
	results, stats, err := ingestor.IngestDirectory(ctx, *userID, *dir, nil, true)
	if err != nil {
		logger.Error("failed to ingest directory", "error", err)
		os.Exit(1)
	}

	processed := 0
	failures := 0
	for _, r := range results {
		if r.Err == "" {
			processed++
		} else {
			failures++
		}
	}
	logger.Info("ingestion complete",
		"scanned", stats.Scanned,
		"matched", stats.Matched,
		"processed", processed,
		"failures", failures,
	)

	if *watch {
		watchDirectory(ctx, ingestor, *userID, *dir, logger)
	}

	logger.Info("exporting to XLSX", "output", *out)
	exportService := export.NewService(receipts, logger)
	xlsxBytes, err := exportService.ExportReceiptsXLSX(ctx, *userID, from, to)
	if err != nil {
		logger.Error("failed to export receipts", "error", err)
		os.Exit(1)
	}
	if err := os.WriteFile(*out, xlsxBytes, 0o644); err != nil {
		logger.Error("failed to write output file", "error", err)
		os.Exit(1)
	}

	fmt.Printf("Batch processing complete!\n")
	fmt.Printf("- Files matched: %d\n", stats.Matched)
	fmt.Printf("- Files processed: %d\n", processed)
	fmt.Printf("- Failures: %d\n", failures)
	fmt.Printf("- Output: %s\n", *out)
}

// watchDirectory processes new images as they land until interrupted.
func watchDirectory(ctx context.Context, ingestor *ingest.Ingestor, userID, dir string, logger *slog.Logger) {
	events, errs, err := ingest.StartWatcher(ctx, ingest.WatchConfig{
		Roots:    []string{dir},
		Debounce: 500 * time.Millisecond,
	}, logger)
	if err != nil {
		logger.Error("failed to start watcher", "error", err)
		return
	}
	logger.Info("watching for new receipts", "dir", dir)

	for {
		select {
		case <-ctx.Done():
			return
		case path, ok := <-events:
			if !ok {
				return
			}
			if _, err := ingestor.IngestPath(ctx, userID, path); err != nil {
				logger.Error("failed to process new receipt", "path", path, "error", err)
			}
		case err, ok := <-errs:
			if !ok {
				return
			}
			logger.Error("watcher error", "error", err)
		}
	}
}
