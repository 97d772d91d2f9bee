package record

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/safeflow-app/receipts-backend/constants"
	"github.com/safeflow-app/receipts-backend/internal/extract"
)

func fixedClock() time.Time {
	return time.Date(2025, 1, 15, 14, 30, 0, 0, time.UTC)
}

func TestAssembleAddsMetadata(t *testing.T) {
	t.Parallel()

	extracted := extract.Record{
		constants.FieldTotalSales: 45.67,
		constants.FieldTax:        3.21,
		constants.FieldCash:       50.00,
		constants.FieldTimestamp:  "01/15/2025",
	}
	a := NewAssemblerWithClock(fixedClock)

	doc := a.Assemble(extracted, Meta{
		SubmitterID:  "user-1",
		BusinessName: "Corner Deli",
		Tier:         "pro",
		ProfileUsed:  "basic",
	})

	assert.Equal(t, "user-1", doc[constants.FieldUserID])
	assert.Equal(t, "Corner Deli", doc[constants.FieldBusinessName])
	assert.Equal(t, "pro", doc[constants.FieldTier])
	assert.Equal(t, "basic", doc[constants.FieldExtractionProfile])
	assert.Equal(t, "2025-01-15T14:30:00Z", doc[constants.FieldUploadTimestamp])
	assert.Equal(t, 45.67, doc[constants.FieldTotalSales])
	assert.NotContains(t, doc, constants.FieldExtractionError)
}

func TestAssembleSurfacesExtractionError(t *testing.T) {
	t.Parallel()

	a := NewAssemblerWithClock(fixedClock)

	doc := a.Assemble(extract.Record{}, Meta{
		SubmitterID: "user-1",
		ProfileUsed: "grocery_ebt",
		ErrorDetail: "parser grocery_ebt: boom",
	})

	assert.Equal(t, "parser grocery_ebt: boom", doc[constants.FieldExtractionError])
	// Canonical keys survive even when extraction produced nothing.
	assert.Equal(t, float64(0), doc[constants.FieldTotalSales])
	assert.Equal(t, "", doc[constants.FieldTimestamp])
}

func TestAssembleDefaultsTier(t *testing.T) {
	t.Parallel()

	a := NewAssemblerWithClock(fixedClock)
	doc := a.Assemble(extract.Record{}, Meta{SubmitterID: "user-1", ProfileUsed: "basic"})

	assert.Equal(t, constants.DefaultTier, doc[constants.FieldTier])
}

func TestAssembleDoesNotMutateInput(t *testing.T) {
	t.Parallel()

	extracted := extract.Record{constants.FieldTotalSales: 1.00}
	a := NewAssemblerWithClock(fixedClock)

	_ = a.Assemble(extracted, Meta{SubmitterID: "user-1"})

	assert.Equal(t, extract.Record{constants.FieldTotalSales: 1.00}, extracted)
}

func TestAssembledDocumentIsJSONSerializable(t *testing.T) {
	t.Parallel()

	a := NewAssemblerWithClock(fixedClock)
	doc := a.Assemble(extract.Record{
		constants.FieldTotalSales: 45.67,
		constants.FieldEBT:        12.00,
	}, Meta{SubmitterID: "user-1", ProfileUsed: "grocery_ebt", ErrorDetail: "detail"})

	b, err := json.Marshal(doc)
	require.NoError(t, err)

	var back map[string]any
	require.NoError(t, json.Unmarshal(b, &back))
	assert.Equal(t, 45.67, back[constants.FieldTotalSales])
	assert.Equal(t, "detail", back[constants.FieldExtractionError])
}
