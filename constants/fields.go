package constants

// Canonical field keys guaranteed on every extracted record.
const (
	FieldTotalSales = "total_sales"
	FieldTax        = "tax"
	FieldCash       = "cash"
	FieldTimestamp  = "timestamp"
)

// Profile-specific field keys.
const (
	FieldCredit = "credit"
	FieldEBT    = "ebt"
	FieldTip    = "tip"
)

// Metadata keys added by the record assembler. The names match the documents
// the frontend already reads.
const (
	FieldUserID            = "userId"
	FieldBusinessName      = "businessName"
	FieldTier              = "tier"
	FieldExtractionProfile = "extractionProfile"
	FieldUploadTimestamp   = "upload_timestamp"
	FieldExtractionError   = "extraction_error"
)
