package llm

import (
	"context"

	"github.com/safeflow-app/receipts-backend/internal/extract"
)

// ExtractRequest carries one receipt image to the vision model.
type ExtractRequest struct {
	Image        []byte
	ContentType  string // image/jpeg, image/png; sniffed when empty
	FilenameHint string
}

// FieldExtractor is the vision capability the transport shell depends on:
// given a receipt image, return the baseline fields the model can see, plus
// the raw model content for diagnostics.
type FieldExtractor interface {
	ExtractBaseline(ctx context.Context, req ExtractRequest) (extract.Record, []byte, error)
}
