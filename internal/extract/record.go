package extract

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/safeflow-app/receipts-backend/constants"
	"github.com/safeflow-app/receipts-backend/internal/common"
)

// Record maps field names to extracted values. Values are only ever float64 or
// string so a record marshals cleanly for any sink.
type Record map[string]any

var reJSONObject = regexp.MustCompile(`(?s)\{.*\}`)

// DecodeModelOutput turns raw model content into a baseline record. It accepts
// either a bare JSON object or prose with a JSON object embedded in it.
func DecodeModelOutput(content string) (Record, error) {
	trimmed := strings.TrimSpace(content)

	var rec Record
	if err := json.Unmarshal([]byte(trimmed), &rec); err == nil {
		return rec, nil
	}

	blob := reJSONObject.FindString(trimmed)
	if blob == "" {
		return nil, common.NewAppError("MALFORMED_MODEL_OUTPUT", "no JSON object in model output", common.ErrMalformedModelOutput)
	}
	if err := json.Unmarshal([]byte(blob), &rec); err != nil {
		return nil, common.NewAppError("MALFORMED_MODEL_OUTPUT", "embedded JSON object does not parse", common.ErrMalformedModelOutput)
	}
	return rec, nil
}

// EnsureCanonical installs defaults for any missing canonical key: 0 for the
// numeric fields, "" for the timestamp. Returns rec for chaining.
func EnsureCanonical(rec Record) Record {
	if rec == nil {
		rec = Record{}
	}
	for _, k := range []string{constants.FieldTotalSales, constants.FieldTax, constants.FieldCash} {
		if _, ok := rec[k]; !ok {
			rec[k] = float64(0)
		}
	}
	if _, ok := rec[constants.FieldTimestamp]; !ok {
		rec[constants.FieldTimestamp] = ""
	}
	return rec
}

// Merge lays overlay on top of base without mutating either.
func Merge(base, overlay Record) Record {
	out := make(Record, len(base)+len(overlay))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range overlay {
		out[k] = v
	}
	return out
}

// Clone returns a shallow copy of rec.
func Clone(rec Record) Record {
	out := make(Record, len(rec))
	for k, v := range rec {
		out[k] = v
	}
	return out
}
