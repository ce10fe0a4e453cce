package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ChanticoMarketing/Comparador-de-Documentos-sub000/internal/llm"
)

// Compare implements llm.Comparator using text-only chat/completions.
// The primary model is tried first; on a backend-level failure (transport
// error, bad status, unusable response) the fallback model is tried once
// before a ComparisonError is surfaced. Input validation failures are not
// retried, and neither is anything once the caller's context has ended.
func (c *Client) Compare(ctx context.Context, req llm.Request) (*llm.Result, error) {
	if strings.TrimSpace(req.InvoiceText) == "" || strings.TrimSpace(req.DeliveryText) == "" {
		return nil, llm.NewComparisonError("both document texts are required", nil)
	}

	rid := uuid.New().String()
	start := time.Now()
	c.log.Info("llm.compare.start",
		"req_id", rid,
		"model", c.cfg.Model,
		"fallback", c.cfg.FallbackModel,
		"invoice", req.InvoiceName,
		"delivery", req.DeliveryName,
		"invoice_bytes", len(req.InvoiceText),
		"delivery_bytes", len(req.DeliveryText),
	)

	res, err := c.compareWithModel(ctx, rid, c.cfg.Model, req)
	if err != nil && c.cfg.FallbackModel != "" && c.cfg.FallbackModel != c.cfg.Model && ctx.Err() == nil {
		c.log.Warn("llm.compare.fallback",
			"req_id", rid, "from", c.cfg.Model, "to", c.cfg.FallbackModel, "cause", err)
		res, err = c.compareWithModel(ctx, rid, c.cfg.FallbackModel, req)
	}
	if err != nil {
		c.log.Error("llm.compare.failed",
			"req_id", rid, "error", err,
			"elapsed_ms", time.Since(start).Milliseconds())
		return nil, llm.NewComparisonError("all comparison backends exhausted", err)
	}

	c.log.Info("llm.compare.ok",
		"req_id", rid,
		"items", len(res.Items),
		"metadata", len(res.Metadata),
		"matches", res.Summary.Matches,
		"warnings", res.Summary.Warnings,
		"errors", res.Summary.Errors,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return res, nil
}

func (c *Client) compareWithModel(ctx context.Context, rid, model string, req llm.Request) (*llm.Result, error) {
	schema := llm.BuildComparisonJSONSchema()
	body := map[string]any{
		"model":           model,
		"temperature":     c.cfg.Temperature,
		"response_format": map[string]any{"type": "json_object"},
		"messages": []map[string]any{
			{"role": "system", "content": llm.BuildSystemPrompt()},
			{"role": "user", "content": llm.BuildUserPrompt(req) + "\n\nReturn ONLY JSON that matches the provided schema."},
			{"role": "system", "content": "JSON Schema:\n" + mustJSON(schema)},
		},
	}

	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/chat/completions"
	raw, err := c.post(ctx, endpoint, body)
	if err != nil {
		return nil, err
	}

	var cc struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(raw, &cc); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if len(cc.Choices) == 0 {
		return nil, fmt.Errorf("no choices in response")
	}
	content := strings.TrimSpace(cc.Choices[0].Message.Content)

	res, err := llm.CoerceResult([]byte(content), req, c.log)
	if err != nil {
		return nil, fmt.Errorf("model %s returned unusable content: %w", model, err)
	}
	return res, nil
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

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("llm http error: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	buf, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("llm status %d: %s", resp.StatusCode, string(buf))
	}
	return buf, nil
}

func mustJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return "{}"
	}
	return string(b)
}
