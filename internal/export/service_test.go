package export

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/safeflow-app/receipts-backend/constants"
	"github.com/safeflow-app/receipts-backend/internal/extract"
	"github.com/safeflow-app/receipts-backend/internal/repository"
)

type fakeReceiptRepo struct {
	receipts []repository.StoredReceipt
	gotUser  string
	gotFrom  *time.Time
	gotTo    *time.Time
}

func (f *fakeReceiptRepo) SaveReceipt(ctx context.Context, userID string, doc extract.Record) (*repository.StoredReceipt, error) {
	panic("not used")
}

func (f *fakeReceiptRepo) ListReceipts(ctx context.Context, userID string, from, to *time.Time) ([]repository.StoredReceipt, error) {
	f.gotUser = userID
	f.gotFrom = from
	f.gotTo = to
	return f.receipts, nil
}

func TestExportReceiptsXLSX(t *testing.T) {
	created := time.Date(2025, 1, 20, 14, 30, 0, 0, time.UTC)
	repo := &fakeReceiptRepo{receipts: []repository.StoredReceipt{
		{
			ID:     "r1",
			UserID: "user-123",
			Document: extract.Record{
				constants.FieldTotalSales:        45.67,
				constants.FieldTax:               3.21,
				constants.FieldCash:              50.00,
				constants.FieldTimestamp:         "01/15/2025",
				constants.FieldBusinessName:      "Corner Grocery",
				constants.FieldExtractionProfile: "grocery_ebt",
			},
			CreatedAt: created,
		},
		{
			ID:     "r2",
			UserID: "user-123",
			Document: extract.Record{
				constants.FieldTotalSales:      0.0,
				constants.FieldTax:             0.0,
				constants.FieldCash:            0.0,
				constants.FieldTimestamp:       "",
				constants.FieldExtractionError: "profile crashed",
			},
			CreatedAt: created,
		},
	}}

	svc := NewService(repo, nil)
	out, err := svc.ExportReceiptsXLSX(context.Background(), "user-123", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "user-123", repo.gotUser)

	wb, err := excelize.OpenReader(bytes.NewReader(out))
	require.NoError(t, err)
	defer func() { _ = wb.Close() }()

	rows, err := wb.GetRows("Receipts")
	require.NoError(t, err)
	require.Len(t, rows, 3)

	assert.Equal(t, []string{
		"Date", "Total Sales", "Tax", "Cash", "Credit", "EBT", "Tip",
		"Profile", "Extraction Error", "Business",
	}, rows[0])

	// Receipt timestamps are re-rendered as ISO dates.
	assert.Equal(t, "2025-01-15", rows[1][0])
	assert.Equal(t, "45.67", rows[1][1])
	assert.Equal(t, "grocery_ebt", rows[1][7])
	assert.Equal(t, "Corner Grocery", rows[1][9])

	// Empty receipt timestamp falls back to the stored row's date.
	assert.Equal(t, "2025-01-20", rows[2][0])
	assert.Equal(t, "profile crashed", rows[2][8])
}

func TestExportDateWindowNormalized(t *testing.T) {
	repo := &fakeReceiptRepo{}
	svc := NewService(repo, nil)

	from := time.Date(2025, 1, 10, 18, 45, 0, 0, time.UTC)
	_, err := svc.ExportReceiptsXLSX(context.Background(), "user-123", &from, nil)
	require.NoError(t, err)

	require.NotNil(t, repo.gotFrom)
	assert.Equal(t, time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC), *repo.gotFrom)
	require.NotNil(t, repo.gotTo) // open "to" defaults to end of today
	assert.Equal(t, 23, repo.gotTo.Hour())
}

func TestTruncateKeepsRunesIntact(t *testing.T) {
	long := strings.Repeat("é", 150)
	got := truncate(long, 140)

	assert.True(t, utf8.ValidString(got))
	assert.Equal(t, 140, utf8.RuneCountInString(got))
	assert.Equal(t, "…", string([]rune(got)[139]))

	assert.Equal(t, "short", truncate("short", 140))
	assert.Equal(t, "é", truncate("éé", 1))
}

func TestExportEmptyWorkbookStillHasHeader(t *testing.T) {
	svc := NewService(&fakeReceiptRepo{}, nil)
	out, err := svc.ExportReceiptsXLSX(context.Background(), "user-123", nil, nil)
	require.NoError(t, err)

	wb, err := excelize.OpenReader(bytes.NewReader(out))
	require.NoError(t, err)
	defer func() { _ = wb.Close() }()

	rows, err := wb.GetRows("Receipts")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "Date", rows[0][0])
}
