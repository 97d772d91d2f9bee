package ingest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/safeflow-app/receipts-backend/constants"
	"github.com/safeflow-app/receipts-backend/internal/common"
	"github.com/safeflow-app/receipts-backend/internal/extract"
	"github.com/safeflow-app/receipts-backend/internal/llm"
	"github.com/safeflow-app/receipts-backend/internal/record"
	"github.com/safeflow-app/receipts-backend/internal/repository"
)

type fakeVision struct {
	err error
}

func (f *fakeVision) ExtractBaseline(ctx context.Context, req llm.ExtractRequest) (extract.Record, []byte, error) {
	if f.err != nil {
		return nil, nil, f.err
	}
	return extract.Record{
		constants.FieldTotalSales: 45.67,
		constants.FieldTax:        3.21,
		constants.FieldCash:       50.00,
		constants.FieldTimestamp:  "01/15/2025",
	}, []byte(`{"total_sales":45.67}`), nil
}

type fakeUsers struct{}

func (f *fakeUsers) GetUser(ctx context.Context, userID string) (*repository.User, error) {
	if userID != "user-123" {
		return nil, common.NewAppError("USER_NOT_FOUND", "user not found", common.ErrNotFound)
	}
	return &repository.User{
		ID:                userID,
		BusinessName:      "Joe's Shop",
		Tier:              "basic",
		ExtractionProfile: constants.ProfileBasic,
	}, nil
}

type fakeReceipts struct {
	mu    sync.Mutex
	saved []extract.Record
}

func (f *fakeReceipts) SaveReceipt(ctx context.Context, userID string, doc extract.Record) (*repository.StoredReceipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saved = append(f.saved, extract.Clone(doc))
	return &repository.StoredReceipt{
		ID:        "receipt-1",
		UserID:    userID,
		Document:  extract.Clone(doc),
		CreatedAt: time.Now().UTC(),
	}, nil
}

func (f *fakeReceipts) ListReceipts(ctx context.Context, userID string, from, to *time.Time) ([]repository.StoredReceipt, error) {
	return nil, nil
}

func newTestIngestor(t *testing.T, vision *fakeVision, receipts *fakeReceipts) *Ingestor {
	t.Helper()
	registry, err := extract.NewDefaultRegistry(nil)
	require.NoError(t, err)
	return NewIngestor(
		vision,
		extract.NewPipeline(registry, nil),
		record.NewAssembler(),
		&fakeUsers{},
		receipts,
		2,
		nil,
	)
}

func writeFiles(t *testing.T, dir string, names ...string) {
	t.Helper()
	for _, name := range names {
		path := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte("image-bytes"), 0o644))
	}
}

func TestScanDirectoryFiltersAndStats(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir,
		"a.jpg", "b.PNG", "notes.txt", ".hidden.jpg",
		filepath.Join("sub", "c.jpeg"),
		filepath.Join(".git", "d.jpg"),
	)

	paths, stats, err := ScanDirectory(dir, nil, true)
	require.NoError(t, err)

	require.Len(t, paths, 3)
	assert.Equal(t, uint32(3), stats.Matched)
	assert.Zero(t, stats.Failed)
}

func TestScanDirectoryCustomExts(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, "a.jpg", "b.heic")

	paths, _, err := ScanDirectory(dir, []string{".HEIC"}, true)
	require.NoError(t, err)
	require.Len(t, paths, 1)
	assert.Equal(t, "b.heic", filepath.Base(paths[0]))
}

func TestScanDirectoryEmptyRoot(t *testing.T) {
	_, _, err := ScanDirectory("   ", nil, true)
	assert.Error(t, err)
}

func TestIngestDirectory(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, "a.jpg", "b.png", "skip.txt")

	receipts := &fakeReceipts{}
	g := newTestIngestor(t, &fakeVision{}, receipts)

	results, stats, err := g.IngestDirectory(context.Background(), "user-123", dir, nil, true)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, uint32(2), stats.Matched)
	assert.Zero(t, stats.Failed)

	for _, r := range results {
		assert.Empty(t, r.Err)
		assert.Equal(t, "receipt-1", r.ReceiptID)
		assert.False(t, r.Degraded)
	}

	require.Len(t, receipts.saved, 2)
	doc := receipts.saved[0]
	assert.Equal(t, 45.67, doc[constants.FieldTotalSales])
	assert.Equal(t, "user-123", doc[constants.FieldUserID])
	assert.Equal(t, "basic", doc[constants.FieldExtractionProfile])
}

func TestIngestDirectoryUnknownUser(t *testing.T) {
	g := newTestIngestor(t, &fakeVision{}, &fakeReceipts{})

	_, _, err := g.IngestDirectory(context.Background(), "ghost", t.TempDir(), nil, true)
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestIngestDirectoryVisionFailureIsPerFile(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, "a.jpg")

	g := newTestIngestor(t, &fakeVision{err: errors.New("model offline")}, &fakeReceipts{})

	results, stats, err := g.IngestDirectory(context.Background(), "user-123", dir, nil, true)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Contains(t, results[0].Err, "model offline")
	assert.Equal(t, uint32(1), stats.Failed)
}

func TestIngestPath(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, "a.jpg")

	receipts := &fakeReceipts{}
	g := newTestIngestor(t, &fakeVision{}, receipts)

	res, err := g.IngestPath(context.Background(), "user-123", filepath.Join(dir, "a.jpg"))
	require.NoError(t, err)
	assert.Equal(t, "receipt-1", res.ReceiptID)
	require.Len(t, receipts.saved, 1)
}

func TestWatcherEmitsInitialScan(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, "a.jpg", "notes.txt")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events, _, err := StartWatcher(ctx, WatchConfig{
		Roots:       []string{dir},
		InitialScan: true,
	}, nil)
	require.NoError(t, err)

	select {
	case path := <-events:
		assert.Equal(t, "a.jpg", filepath.Base(path))
	case <-time.After(2 * time.Second):
		t.Fatal("expected initial scan event")
	}
}

func TestWatcherDebouncedBurstDeliversEveryFile(t *testing.T) {
	dir := t.TempDir()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events, _, err := StartWatcher(ctx, WatchConfig{
		Roots:    []string{dir},
		Debounce: time.Millisecond,
	}, nil)
	require.NoError(t, err)

	const n = 200
	go func() {
		for i := 0; i < n; i++ {
			name := fmt.Sprintf("burst-%03d.jpg", i)
			_ = os.WriteFile(filepath.Join(dir, name), []byte("image-bytes"), 0o644)
		}
	}()

	seen := map[string]struct{}{}
	deadline := time.After(10 * time.Second)
	for len(seen) < n {
		select {
		case path, ok := <-events:
			require.True(t, ok, "event channel closed early")
			seen[filepath.Base(path)] = struct{}{}
		case <-deadline:
			t.Fatalf("received %d of %d burst events", len(seen), n)
		}
	}

	// Cancelling mid-stream must close the channel without panicking a
	// straggling debounce flush.
	cancel()
	for range events {
	}
}

func TestWatcherEmitsNewFile(t *testing.T) {
	dir := t.TempDir()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events, _, err := StartWatcher(ctx, WatchConfig{Roots: []string{dir}}, nil)
	require.NoError(t, err)

	writeFiles(t, dir, "fresh.png")

	select {
	case path := <-events:
		assert.Equal(t, "fresh.png", filepath.Base(path))
	case <-time.After(2 * time.Second):
		t.Fatal("expected create event")
	}
}
