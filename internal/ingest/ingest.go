package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"mime"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/safeflow-app/receipts-backend/internal/async"
	"github.com/safeflow-app/receipts-backend/internal/extract"
	"github.com/safeflow-app/receipts-backend/internal/llm"
	"github.com/safeflow-app/receipts-backend/internal/record"
	"github.com/safeflow-app/receipts-backend/internal/repository"
)

// FileResult is the per-file outcome of a batch run.
type FileResult struct {
	Path      string
	ReceiptID string
	Degraded  bool
	Err       string
}

// Ingestor pushes receipt images from the local filesystem through the same
// extraction path the upload endpoint uses.
type Ingestor struct {
	vision    llm.FieldExtractor
	pipeline  *extract.Pipeline
	assembler *record.Assembler
	users     repository.UserRepository
	receipts  repository.ReceiptRepository
	logger    *slog.Logger
	workers   int
}

func NewIngestor(
	vision llm.FieldExtractor,
	pipeline *extract.Pipeline,
	assembler *record.Assembler,
	users repository.UserRepository,
	receipts repository.ReceiptRepository,
	workers int,
	logger *slog.Logger,
) *Ingestor {
	if workers <= 0 {
		workers = 4
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Ingestor{
		vision:    vision,
		pipeline:  pipeline,
		assembler: assembler,
		users:     users,
		receipts:  receipts,
		logger:    logger,
		workers:   workers,
	}
}

// IngestDirectory scans root and processes every matched image for the given
// user, a bounded number in flight at a time. Per-file failures land in the
// results, not the returned error.
func (g *Ingestor) IngestDirectory(ctx context.Context, userID, root string, includeExts []string, skipHidden bool) ([]FileResult, DirStats, error) {
	user, err := g.users.GetUser(ctx, userID)
	if err != nil {
		return nil, DirStats{}, err
	}

	paths, stats, err := ScanDirectory(root, includeExts, skipHidden)
	if err != nil {
		return nil, stats, err
	}
	g.logger.Info("ingest.scan_complete",
		"root", root,
		"scanned", stats.Scanned,
		"matched", stats.Matched,
	)

	results := make([]FileResult, len(paths))
	var mu sync.Mutex

	queue := async.NewQueue(ctx, g.workers, len(paths), g.logger)
	for i, path := range paths {
		i, path := i, path
		err := queue.Enqueue(ctx, func(ctx context.Context) {
			res := g.ingestOne(ctx, user, path)
			mu.Lock()
			results[i] = res
			mu.Unlock()
		})
		if err != nil {
			results[i] = FileResult{Path: path, Err: err.Error()}
		}
	}
	if err := queue.Shutdown(ctx); err != nil {
		return results, stats, err
	}

	for _, r := range results {
		if r.Err != "" {
			stats.Failed++
		}
	}
	return results, stats, nil
}

// IngestPath processes a single image file for the given user.
func (g *Ingestor) IngestPath(ctx context.Context, userID, path string) (FileResult, error) {
	user, err := g.users.GetUser(ctx, userID)
	if err != nil {
		return FileResult{Path: path, Err: err.Error()}, err
	}
	res := g.ingestOne(ctx, user, path)
	if res.Err != "" {
		return res, fmt.Errorf("ingest %s: %s", path, res.Err)
	}
	return res, nil
}

func (g *Ingestor) ingestOne(ctx context.Context, user *repository.User, path string) FileResult {
	start := time.Now()

	image, err := os.ReadFile(path)
	if err != nil {
		return FileResult{Path: path, Err: err.Error()}
	}

	baseline, rawContent, err := g.vision.ExtractBaseline(ctx, llm.ExtractRequest{
		Image:        image,
		ContentType:  mime.TypeByExtension(filepath.Ext(path)),
		FilenameHint: filepath.Base(path),
	})
	if err != nil {
		g.logger.Error("ingest.vision_failed", "path", path, "error", err)
		return FileResult{Path: path, Err: err.Error()}
	}

	result := g.pipeline.Run(string(rawContent), user.ExtractionProfile, baseline)
	doc := g.assembler.Assemble(result.Record, record.Meta{
		SubmitterID:  user.ID,
		BusinessName: user.BusinessName,
		Tier:         user.Tier,
		ProfileUsed:  result.ProfileUsed,
		ErrorDetail:  result.ErrorDetail,
	})

	saved, err := g.receipts.SaveReceipt(ctx, user.ID, doc)
	if err != nil {
		g.logger.Error("ingest.save_failed", "path", path, "error", err)
		return FileResult{Path: path, Err: err.Error()}
	}

	g.logger.Info("ingest.file_ok",
		"path", path,
		"receipt_id", saved.ID,
		"profile", result.ProfileUsed,
		"degraded", result.Degraded,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return FileResult{Path: path, ReceiptID: saved.ID, Degraded: result.Degraded}
}
