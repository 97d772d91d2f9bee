package llm

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/safeflow-app/receipts-backend/constants"
	"github.com/safeflow-app/receipts-backend/internal/extract"
)

func TestSanitizeBaselineCoercesNumericStrings(t *testing.T) {
	t.Parallel()

	rec, adjusted := SanitizeBaseline(extract.Record{
		constants.FieldTotalSales: "45.67",
		constants.FieldTax:        "$3.21",
		constants.FieldCash:       50.00,
		constants.FieldTimestamp:  " 01/15/2025 ",
	}, nil)

	assert.Equal(t, 45.67, rec[constants.FieldTotalSales])
	assert.Equal(t, 3.21, rec[constants.FieldTax])
	assert.Equal(t, 50.00, rec[constants.FieldCash])
	assert.Equal(t, "01/15/2025", rec[constants.FieldTimestamp])
	assert.NotEmpty(t, adjusted)
}

func TestSanitizeBaselineDropsJunk(t *testing.T) {
	t.Parallel()

	rec, adjusted := SanitizeBaseline(extract.Record{
		constants.FieldTotalSales: nil,
		constants.FieldTax:        "n/a",
		constants.FieldTimestamp:  12345.0,
		"merchant_notes":          "ignored",
	}, nil)

	assert.NotContains(t, rec, constants.FieldTotalSales)
	assert.NotContains(t, rec, constants.FieldTax)
	assert.NotContains(t, rec, constants.FieldTimestamp)
	assert.NotContains(t, rec, "merchant_notes")
	assert.Len(t, adjusted, 4)
}

func TestSanitizeBaselineKeepsProfileTenders(t *testing.T) {
	t.Parallel()

	rec, _ := SanitizeBaseline(extract.Record{
		constants.FieldEBT:    12.00,
		constants.FieldCredit: "0.00",
		constants.FieldTip:    6.50,
	}, nil)

	assert.Equal(t, 12.00, rec[constants.FieldEBT])
	assert.Equal(t, 0.00, rec[constants.FieldCredit])
	assert.Equal(t, 6.50, rec[constants.FieldTip])
}

func TestBaselineSchemaAcceptsCanonicalRecord(t *testing.T) {
	t.Parallel()

	doc, err := json.Marshal(extract.EnsureCanonical(extract.Record{
		constants.FieldTotalSales: 45.67,
		constants.FieldEBT:        12.00,
	}))
	require.NoError(t, err)

	assert.NoError(t, ValidateJSONAgainstSchema(BuildBaselineJSONSchema(), doc))
}

func TestBaselineSchemaRejectsWrongTypes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		doc  string
	}{
		{"string total", `{"total_sales":"a lot","tax":0,"cash":0,"timestamp":""}`},
		{"missing timestamp", `{"total_sales":1.00,"tax":0,"cash":0}`},
		{"unknown key", `{"total_sales":1.00,"tax":0,"cash":0,"timestamp":"","extra":true}`},
		{"negative amount", `{"total_sales":-1.00,"tax":0,"cash":0,"timestamp":""}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Error(t, ValidateJSONAgainstSchema(BuildBaselineJSONSchema(), []byte(tt.doc)))
		})
	}
}
