package ocr

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ChanticoMarketing/Comparador-de-Documentos-sub000/internal/common"
)

// APIExtractor uploads files to an OCR HTTP API (OCR.space-compatible
// request/response shape) and returns the parsed text.
type APIExtractor struct {
	cfg        common.OCRConfig
	httpClient *http.Client
	logger     *slog.Logger
}

func NewAPIExtractor(cfg common.OCRConfig, logger *slog.Logger) *APIExtractor {
	if logger == nil {
		logger = slog.Default()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &APIExtractor{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

type apiResponse struct {
	ParsedResults []struct {
		ParsedText string `json:"ParsedText"`
		ErrorMsg   string `json:"ErrorMessage"`
	} `json:"ParsedResults"`
	IsErroredOnProcessing bool `json:"IsErroredOnProcessing"`
	// The API returns either a string or an array here depending on the
	// failure; keep it raw and stringify later.
	ErrorMessage json.RawMessage `json:"ErrorMessage"`
}

// Extract uploads the file and concatenates the per-page parsed text.
func (e *APIExtractor) Extract(ctx context.Context, path string) (ExtractionResult, error) {
	start := time.Now()
	name := filepath.Base(path)

	f, err := os.Open(path)
	if err != nil {
		return ExtractionResult{}, NewExtractionError(name, fmt.Errorf("open file: %w", err))
	}
	defer func() { _ = f.Close() }()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", name)
	if err != nil {
		return ExtractionResult{}, NewExtractionError(name, err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return ExtractionResult{}, NewExtractionError(name, fmt.Errorf("read file: %w", err))
	}
	_ = mw.WriteField("language", e.cfg.Language)
	_ = mw.WriteField("isTable", "true")
	_ = mw.WriteField("OCREngine", "2")
	if err := mw.Close(); err != nil {
		return ExtractionResult{}, NewExtractionError(name, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.cfg.APIURL, &buf)
	if err != nil {
		return ExtractionResult{}, NewExtractionError(name, err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("apikey", e.cfg.APIKey)

	resp, err := e.httpClient.Do(req)
	if err != nil {
		e.logger.Error("ocr.api.http_error", "file", name, "error", err,
			"elapsed_ms", time.Since(start).Milliseconds())
		return ExtractionResult{}, NewExtractionError(name, fmt.Errorf("ocr api request: %w", err))
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return ExtractionResult{}, NewExtractionError(name, fmt.Errorf("read ocr response: %w", err))
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		e.logger.Error("ocr.api.bad_status", "file", name, "status", resp.StatusCode)
		return ExtractionResult{}, NewExtractionError(name, fmt.Errorf("ocr api status %d: %s", resp.StatusCode, truncate(string(body), 512)))
	}

	var parsed apiResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return ExtractionResult{}, NewExtractionError(name, fmt.Errorf("decode ocr response: %w", err))
	}
	if parsed.IsErroredOnProcessing {
		return ExtractionResult{}, NewExtractionError(name, fmt.Errorf("ocr api error: %s", rawToString(parsed.ErrorMessage)))
	}
	if len(parsed.ParsedResults) == 0 {
		return ExtractionResult{}, NewExtractionError(name, fmt.Errorf("ocr api returned no results"))
	}

	var sb strings.Builder
	for _, pr := range parsed.ParsedResults {
		sb.WriteString(pr.ParsedText)
		sb.WriteString("\n")
	}

	res := ExtractionResult{
		Text:     sb.String(),
		Pages:    len(parsed.ParsedResults),
		Method:   "api",
		Language: e.cfg.Language,
		Duration: time.Since(start),
	}
	e.logger.Debug("ocr.api.ok", "file", name, "pages", res.Pages,
		"text_bytes", len(res.Text), "elapsed_ms", res.Duration.Milliseconds())
	return res, nil
}

func rawToString(raw json.RawMessage) string {
	if len(raw) == 0 {
		return "unknown error"
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		return strings.Join(list, "; ")
	}
	return string(raw)
}
