package llm

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/safeflow-app/receipts-backend/constants"
)

// BuildBaselineJSONSchema returns the JSON-Schema (draft 2020-12 subset) a
// sanitized baseline record must match before it enters the pipeline: the four
// canonical fields, plus optional profile tenders the model sometimes reads
// off the receipt on its own.
func BuildBaselineJSONSchema() map[string]any {
	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties": map[string]any{
			constants.FieldTotalSales: numberProp(),
			constants.FieldTax:        numberProp(),
			constants.FieldCash:       numberProp(),
			constants.FieldCredit:     numberProp(),
			constants.FieldEBT:        numberProp(),
			constants.FieldTip:        numberProp(),
			constants.FieldTimestamp:  map[string]any{"type": "string"},
		},
		"required": []string{
			constants.FieldTotalSales,
			constants.FieldTax,
			constants.FieldCash,
			constants.FieldTimestamp,
		},
	}
}

func numberProp() map[string]any {
	return map[string]any{"type": "number", "minimum": 0.0}
}

// ValidateJSONAgainstSchema validates "data" against "schemaMap".
func ValidateJSONAgainstSchema(schemaMap map[string]any, data []byte) error {
	b, err := json.Marshal(schemaMap)
	if err != nil {
		return fmt.Errorf("marshal schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("schema.json", bytes.NewReader(b)); err != nil {
		return fmt.Errorf("add schema: %w", err)
	}
	schema, err := compiler.Compile("schema.json")
	if err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("unmarshal data: %w", err)
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("json does not match schema: %w", err)
	}
	return nil
}
