// Package ocr abstracts text extraction behind a single port so the batch
// pipeline never special-cases a vendor.
package ocr

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ChanticoMarketing/Comparador-de-Documentos-sub000/internal/common"
)

// ExtractionResult is the outcome of extracting one file.
type ExtractionResult struct {
	Text       string
	Pages      int
	SourceType string // constants.PDF | constants.IMAGE
	Method     string // "pdf-text" | "pdf-ocr" | "image-ocr" | "api"
	Language   string
	Duration   time.Duration
	Warnings   []string
}

// Extractor is the text-extraction port the pipeline depends on.
type Extractor interface {
	Extract(ctx context.Context, path string) (ExtractionResult, error)
}

// ExtractionError marks an OCR backend failure for a single file. The
// pipeline isolates it to the owning document pair.
type ExtractionError struct {
	Filename string
	Err      error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extraction failed for %s: %v", e.Filename, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// NewExtractionError wraps err for filename.
func NewExtractionError(filename string, err error) *ExtractionError {
	return &ExtractionError{Filename: filename, Err: err}
}

// NewFromConfig builds the configured extractor.
func NewFromConfig(cfg common.OCRConfig, logger *slog.Logger) (Extractor, error) {
	switch cfg.Provider {
	case "api", "":
		return NewAPIExtractor(cfg, logger), nil
	case "tesseract":
		return NewLocalExtractor(cfg, logger), nil
	default:
		return nil, fmt.Errorf("unknown ocr provider: %q", cfg.Provider)
	}
}
