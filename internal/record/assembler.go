package record

import (
	"time"

	"github.com/safeflow-app/receipts-backend/constants"
	"github.com/safeflow-app/receipts-backend/internal/extract"
)

// Meta is the caller-supplied context merged into every persisted receipt.
type Meta struct {
	SubmitterID  string
	BusinessName string
	Tier         string
	ProfileUsed  string
	ErrorDetail  string
}

// Assembler merges extracted fields with submitter metadata into the final
// persisted document shape. Documents are written once and never mutated.
type Assembler struct {
	now func() time.Time
}

func NewAssembler() *Assembler {
	return &Assembler{now: time.Now}
}

// NewAssemblerWithClock pins the ingestion timestamp for tests.
func NewAssemblerWithClock(now func() time.Time) *Assembler {
	if now == nil {
		now = time.Now
	}
	return &Assembler{now: now}
}

// Assemble returns a new document; extracted is never mutated. The
// extraction_error key appears only on degraded records so downstream
// consumers can spot them without re-deriving the fact from the data.
func (a *Assembler) Assemble(extracted extract.Record, meta Meta) extract.Record {
	doc := extract.EnsureCanonical(extract.Clone(extracted))

	doc[constants.FieldUserID] = meta.SubmitterID
	doc[constants.FieldBusinessName] = meta.BusinessName
	tier := meta.Tier
	if tier == "" {
		tier = constants.DefaultTier
	}
	doc[constants.FieldTier] = tier
	doc[constants.FieldExtractionProfile] = meta.ProfileUsed
	doc[constants.FieldUploadTimestamp] = a.now().UTC().Format(time.RFC3339)
	if meta.ErrorDetail != "" {
		doc[constants.FieldExtractionError] = meta.ErrorDetail
	}
	return doc
}
