package extract

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// amountSuffix follows a field label: optional colon or dash, optional dollar
// sign, then a decimal amount with exactly two fractional digits.
const amountSuffix = `\s*[:\-]?\s*\$?(\d+\.\d{2})`

var reDateToken = regexp.MustCompile(`\b(\d{1,2}[/\-]\d{1,2}[/\-]\d{2,4})\b`)

// findAmount returns the first amount captured by re in text. The boolean
// reports whether the label matched at all, so callers can tell a real $0.00
// from a defaulted field.
func findAmount(text string, re *regexp.Regexp) (float64, bool) {
	m := re.FindStringSubmatch(text)
	if m == nil {
		return 0, false
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// findDate returns the first month/day/year token in text.
func findDate(text string) (string, bool) {
	m := reDateToken.FindStringSubmatch(text)
	if m == nil {
		return "", false
	}
	return m[1], true
}

type dateFormat int

const (
	// dateUS renders zero-padded MM/DD/YYYY.
	dateUS dateFormat = iota
	// dateISO renders a full ISO-8601 date-time at midnight.
	dateISO
)

// normalizeDate reformats a matched month/day/year token. Tokens with bad
// calendar values or two-digit years are kept as matched rather than dropped.
func normalizeDate(raw string, format dateFormat) string {
	t, err := time.Parse("1/2/2006", strings.ReplaceAll(raw, "-", "/"))
	if err != nil {
		return raw
	}
	switch format {
	case dateISO:
		return t.Format("2006-01-02T15:04:05")
	default:
		return t.Format("01/02/2006")
	}
}
