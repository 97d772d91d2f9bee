package openai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/safeflow-app/receipts-backend/internal/common"
	"github.com/safeflow-app/receipts-backend/internal/extract"
	"github.com/safeflow-app/receipts-backend/internal/llm"
)

const systemPrompt = "You are a receipt data extraction assistant. Analyze the receipt image and " +
	"return ONLY a raw JSON object with no markdown formatting, no code blocks, no extra text. " +
	"The JSON must be valid and parseable. Use exactly these field names: total_sales, tax, cash, " +
	"timestamp. If a field cannot be found, use 0 for numbers or an empty string for text."

const userPrompt = "Extract the following data from this receipt and return ONLY raw JSON: " +
	"total_sales (number), tax (number), cash (number), timestamp (string). " +
	"Return nothing but the JSON object."

// ExtractBaseline implements llm.FieldExtractor against the chat/completions
// endpoint with the receipt image attached as a data URL.
func (c *Client) ExtractBaseline(ctx context.Context, req llm.ExtractRequest) (extract.Record, []byte, error) {
	rid := uuid.New().String()
	start := time.Now()

	c.log.Info("vision.extract.start",
		"req_id", rid,
		"model", c.cfg.Model,
		"image_bytes", len(req.Image),
		"content_type", req.ContentType,
	)

	body := map[string]any{
		"model":           c.cfg.Model,
		"temperature":     c.cfg.Temperature,
		"max_tokens":      c.cfg.MaxTokens,
		"response_format": map[string]any{"type": "json_object"},
		"messages": []map[string]any{
			{"role": "system", "content": systemPrompt},
			{"role": "user", "content": []map[string]any{
				{"type": "text", "text": userPrompt},
				{"type": "image_url", "image_url": map[string]any{
					"url": dataURL(req.Image, req.ContentType),
				}},
			}},
		},
	}

	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/chat/completions"
	raw, err := c.breaker.Execute(func() ([]byte, error) {
		return c.post(ctx, endpoint, body)
	})
	if err != nil {
		c.log.Error("vision.extract.http_error",
			"req_id", rid, "error", err,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return nil, nil, err
	}

	var cc struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(raw, &cc); err != nil {
		c.log.Error("vision.extract.decode_error", "req_id", rid, "error", err, "raw_bytes", len(raw))
		return nil, raw, fmt.Errorf("decode openai response: %w", err)
	}
	if len(cc.Choices) == 0 {
		c.log.Error("vision.extract.no_choices", "req_id", rid, "raw_bytes", len(raw))
		return nil, raw, fmt.Errorf("no choices in openai response")
	}
	content := strings.TrimSpace(cc.Choices[0].Message.Content)
	rawContent := []byte(content)

	rec, err := extract.DecodeModelOutput(content)
	if err != nil {
		c.log.Error("vision.extract.malformed_output",
			"req_id", rid, "error", err,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return nil, rawContent, err
	}

	rec, _ = llm.SanitizeBaseline(rec, c.log)
	rec = extract.EnsureCanonical(rec)

	doc, err := json.Marshal(rec)
	if err != nil {
		return nil, rawContent, fmt.Errorf("encode baseline: %w", err)
	}
	if err := llm.ValidateJSONAgainstSchema(llm.BuildBaselineJSONSchema(), doc); err != nil {
		c.log.Error("vision.extract.schema_validation_failed", "req_id", rid, "error", err)
		return nil, rawContent, common.NewAppError("MALFORMED_MODEL_OUTPUT",
			"model output failed baseline schema validation", common.ErrMalformedModelOutput)
	}

	c.log.Info("vision.extract.ok",
		"req_id", rid,
		"fields", len(rec),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return rec, rawContent, nil
}

func (c *Client) post(ctx context.Context, url string, body map[string]any) ([]byte, error) {
	b, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("openai http error: %w", err)
	}
	defer func(body io.ReadCloser) {
		if err := body.Close(); err != nil {
			c.log.Warn("openai response body close error", "error", err)
		}
	}(resp.Body)

	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("openai status %d: %s", resp.StatusCode, string(raw))
	}
	return raw, nil
}

func dataURL(image []byte, contentType string) string {
	if contentType == "" {
		contentType = http.DetectContentType(image)
	}
	return "data:" + contentType + ";base64," + base64.StdEncoding.EncodeToString(image)
}
