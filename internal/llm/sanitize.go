package llm

import (
	"log/slog"
	"strconv"
	"strings"

	"github.com/safeflow-app/receipts-backend/constants"
	"github.com/safeflow-app/receipts-backend/internal/extract"
)

var numericKeys = []string{
	constants.FieldTotalSales,
	constants.FieldTax,
	constants.FieldCash,
	constants.FieldCredit,
	constants.FieldEBT,
	constants.FieldTip,
}

// SanitizeBaseline nudges a decoded model record toward the baseline schema:
// numeric strings become numbers, the timestamp is trimmed, null and unknown
// keys are dropped. Returns the cleaned record and the adjustments made.
func SanitizeBaseline(rec extract.Record, logger *slog.Logger) (extract.Record, []string) {
	if logger == nil {
		logger = slog.Default()
	}

	out := make(extract.Record, len(rec))
	var adjusted []string

	for _, k := range numericKeys {
		v, ok := rec[k]
		if !ok {
			continue
		}
		switch t := v.(type) {
		case float64:
			out[k] = t
		case string:
			s := strings.TrimSpace(strings.TrimPrefix(t, "$"))
			if f, err := strconv.ParseFloat(s, 64); err == nil {
				out[k] = f
				adjusted = append(adjusted, k+"(string)")
			} else {
				adjusted = append(adjusted, k+"(dropped)")
			}
		case nil:
			adjusted = append(adjusted, k+"(null)")
		default:
			adjusted = append(adjusted, k+"(type)")
		}
	}

	if v, ok := rec[constants.FieldTimestamp]; ok {
		if s, isStr := v.(string); isStr {
			out[constants.FieldTimestamp] = strings.TrimSpace(s)
		} else {
			adjusted = append(adjusted, constants.FieldTimestamp+"(type)")
		}
	}

	for k := range rec {
		if !isBaselineKey(k) {
			adjusted = append(adjusted, k+"(unknown)")
		}
	}

	if len(adjusted) > 0 {
		logger.Warn("vision.extract.sanitized", "adjusted", adjusted)
	}
	return out, adjusted
}

func isBaselineKey(k string) bool {
	if k == constants.FieldTimestamp {
		return true
	}
	for _, n := range numericKeys {
		if k == n {
			return true
		}
	}
	return false
}
