package export

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"

	"github.com/safeflow-app/receipts-backend/constants"
	"github.com/safeflow-app/receipts-backend/internal/extract"
	"github.com/safeflow-app/receipts-backend/internal/repository"
)

// Service is a tiny façade over the receipt repository that produces XLSX
// bytes for exports.
type Service struct {
	receipts repository.ReceiptRepository
	logger   *slog.Logger
}

func NewService(receipts repository.ReceiptRepository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{receipts: receipts, logger: logger}
}

// ExportReceiptsXLSX returns an XLSX workbook (as bytes) for the given user
// and date window.
// If only from is provided -> from..today (inclusive).
// If only to is provided   -> beginning..to (inclusive).
// If neither is provided   -> all receipts for the user.
func (s *Service) ExportReceiptsXLSX(ctx context.Context, userID string, from, to *time.Time) ([]byte, error) {
	start := time.Now()

	// Normalize dates (date-only, UTC); "to" bound covers the whole day.
	var fromDate, toDate *time.Time
	if from != nil {
		f := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, time.UTC)
		fromDate = &f
	}
	if to != nil {
		t := time.Date(to.Year(), to.Month(), to.Day(), 23, 59, 59, 0, time.UTC)
		toDate = &t
	}
	if fromDate != nil && toDate == nil {
		today := time.Now().UTC()
		t := time.Date(today.Year(), today.Month(), today.Day(), 23, 59, 59, 0, time.UTC)
		toDate = &t
	}

	recs, err := s.receipts.ListReceipts(ctx, userID, fromDate, toDate)
	if err != nil {
		return nil, fmt.Errorf("query receipts: %w", err)
	}

	f := excelize.NewFile()
	const sheet = "Receipts"
	if index, _ := f.GetSheetIndex(sheet); index == -1 {
		if _, err := f.NewSheet(sheet); err != nil {
			return nil, err
		}
	}
	activeIndex, _ := f.GetSheetIndex(sheet)
	f.SetActiveSheet(activeIndex)

	headers := []string{
		"Date",
		"Total Sales",
		"Tax",
		"Cash",
		"Credit",
		"EBT",
		"Tip",
		"Profile",
		"Extraction Error",
		"Business",
	}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}

	row := 2
	for _, r := range recs {
		doc := r.Document

		write := func(col int, v any) {
			cell, _ := excelize.CoordinatesToCellName(col, row)
			_ = f.SetCellValue(sheet, cell, v)
		}

		write(1, exportDate(doc, r.CreatedAt))
		write(2, amountCell(doc, constants.FieldTotalSales))
		write(3, amountCell(doc, constants.FieldTax))
		write(4, amountCell(doc, constants.FieldCash))
		write(5, amountCell(doc, constants.FieldCredit))
		write(6, amountCell(doc, constants.FieldEBT))
		write(7, amountCell(doc, constants.FieldTip))
		write(8, stringField(doc, constants.FieldExtractionProfile))
		write(9, truncate(stringField(doc, constants.FieldExtractionError), 140))
		write(10, stringField(doc, constants.FieldBusinessName))

		row++
	}

	// Widen a few columns
	_ = f.SetColWidth(sheet, "A", "A", 14) // date
	_ = f.SetColWidth(sheet, "B", "G", 12) // amounts
	_ = f.SetColWidth(sheet, "H", "H", 16) // profile
	_ = f.SetColWidth(sheet, "I", "I", 48) // error detail
	_ = f.SetColWidth(sheet, "J", "J", 28) // business

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}

	s.logger.Info("export.xlsx.ok",
		"user_id", userID,
		"rows", len(recs),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return buf.Bytes(), nil
}

// exportDate prefers the receipt's own timestamp field, falling back to the
// row's created_at. Parseable timestamps render as YYYY-MM-DD.
func exportDate(doc extract.Record, createdAt time.Time) string {
	raw := stringField(doc, constants.FieldTimestamp)
	if raw == "" {
		if createdAt.IsZero() {
			return ""
		}
		return createdAt.UTC().Format("2006-01-02")
	}
	for _, layout := range []string{"2006-01-02T15:04:05", "01/02/2006", "1/2/2006", "2006-01-02"} {
		if ts, err := time.Parse(layout, raw); err == nil {
			return ts.Format("2006-01-02")
		}
	}
	return raw
}

func amountCell(doc extract.Record, key string) any {
	if v, ok := doc[key]; ok {
		if f, isNum := v.(float64); isNum {
			return f
		}
	}
	return ""
}

func stringField(doc extract.Record, key string) string {
	if v, ok := doc[key]; ok {
		if s, isStr := v.(string); isStr {
			return s
		}
		return strings.TrimSpace(fmt.Sprintf("%v", v))
	}
	return ""
}

func truncate(s string, n int) string {
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	if n == 1 {
		return string(r[:1])
	}
	return string(r[:n-1]) + "…"
}
