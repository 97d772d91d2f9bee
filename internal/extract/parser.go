package extract

import (
	"regexp"

	"github.com/safeflow-app/receipts-backend/constants"
)

// Parser is the single capability every profile variant implements. Parse is
// total: a field its patterns cannot locate degrades to that field's default
// instead of propagating an error.
type Parser interface {
	Name() string
	// Parse returns the variant's complete record: every field of the variant
	// is present, located values overlaid on defaults.
	Parse(text string) Record
	// Extract returns only the fields actually located in text, so callers can
	// tell a matched $0.00 from a defaulted one.
	Extract(text string) Record
	// Defaults returns the variant's full field set at default values.
	Defaults() Record
}

// labelParser drives a fixed set of label-anchored amount patterns plus one
// date field. All built-in profile variants are instances of it.
type labelParser struct {
	name    constants.ProfileName
	amounts []amountField
	date    dateFormat
}

type amountField struct {
	key string
	re  *regexp.Regexp
}

func newAmountField(key, label string) amountField {
	return amountField{key: key, re: regexp.MustCompile(`(?i)` + label + amountSuffix)}
}

// NewBasicParser covers the four canonical fields only.
func NewBasicParser() Parser {
	return &labelParser{
		name: constants.ProfileBasic,
		amounts: []amountField{
			newAmountField(constants.FieldTotalSales, `total`),
			newAmountField(constants.FieldTax, `tax`),
			newAmountField(constants.FieldCash, `cash`),
		},
		date: dateUS,
	}
}

// NewGroceryEBTParser adds credit and EBT tenders, accepts "Total" or
// "Total Amount", and normalizes the timestamp to full ISO-8601.
func NewGroceryEBTParser() Parser {
	return &labelParser{
		name: constants.ProfileGroceryEBT,
		amounts: []amountField{
			newAmountField(constants.FieldTotalSales, `total(?:\s+amount)?`),
			newAmountField(constants.FieldTax, `tax`),
			newAmountField(constants.FieldCash, `cash`),
			newAmountField(constants.FieldCredit, `credit`),
			newAmountField(constants.FieldEBT, `ebt`),
		},
		date: dateISO,
	}
}

// NewRestaurantTipParser adds a tip field on top of the canonical set.
func NewRestaurantTipParser() Parser {
	return &labelParser{
		name: constants.ProfileRestaurantTip,
		amounts: []amountField{
			newAmountField(constants.FieldTotalSales, `total`),
			newAmountField(constants.FieldTax, `tax`),
			newAmountField(constants.FieldCash, `cash`),
			newAmountField(constants.FieldTip, `tip`),
		},
		date: dateUS,
	}
}

func (p *labelParser) Name() string {
	return string(p.name)
}

func (p *labelParser) Parse(text string) Record {
	return Merge(p.Defaults(), p.Extract(text))
}

func (p *labelParser) Extract(text string) Record {
	rec := Record{}
	for _, f := range p.amounts {
		if v, ok := findAmount(text, f.re); ok {
			rec[f.key] = v
		}
	}
	if raw, ok := findDate(text); ok {
		rec[constants.FieldTimestamp] = normalizeDate(raw, p.date)
	}
	return rec
}

func (p *labelParser) Defaults() Record {
	rec := make(Record, len(p.amounts)+1)
	for _, f := range p.amounts {
		rec[f.key] = float64(0)
	}
	rec[constants.FieldTimestamp] = ""
	return rec
}
