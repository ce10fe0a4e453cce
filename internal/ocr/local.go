package ocr

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/ChanticoMarketing/Comparador-de-Documentos-sub000/constants"
	"github.com/ChanticoMarketing/Comparador-de-Documentos-sub000/internal/common"
)

// minEmbeddedTextBytes is the threshold below which a PDF's embedded text
// layer is considered useless and the file is rasterized for OCR instead.
const minEmbeddedTextBytes = 64

// LocalExtractor drives pdftotext / pdftoppm / tesseract binaries.
type LocalExtractor struct {
	cfg    common.OCRConfig
	runner Runner
	logger *slog.Logger
}

func NewLocalExtractor(cfg common.OCRConfig, logger *slog.Logger) *LocalExtractor {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Pdftotext == "" {
		cfg.Pdftotext = "pdftotext"
	}
	if cfg.Pdftoppm == "" {
		cfg.Pdftoppm = "pdftoppm"
	}
	if cfg.Tesseract == "" {
		cfg.Tesseract = "tesseract"
	}
	if cfg.Language == "" {
		cfg.Language = "spa"
	}
	if cfg.DPI <= 0 {
		cfg.DPI = 300
	}
	return &LocalExtractor{cfg: cfg, runner: execRunner{}, logger: logger}
}

// Extract picks a strategy based on file extension.
func (e *LocalExtractor) Extract(ctx context.Context, path string) (ExtractionResult, error) {
	start := time.Now()
	ext := constants.NormalizeExt(filepath.Ext(path))
	e.logger.Debug("starting local extraction", "path", path, "ext", ext)

	var res ExtractionResult
	var err error
	switch constants.MapExtToFormat(ext) {
	case "PDF":
		res, err = e.extractPDF(ctx, path)
	case "IMAGE":
		res, err = e.extractImage(ctx, path)
	default:
		return ExtractionResult{}, NewExtractionError(filepath.Base(path), fmt.Errorf("unsupported extension: %q", ext))
	}
	res.Duration = time.Since(start)
	if err != nil {
		return res, NewExtractionError(filepath.Base(path), err)
	}
	return res, nil
}

// extractPDF tries the embedded text layer first; scanned PDFs fall back
// to rasterization + tesseract.
func (e *LocalExtractor) extractPDF(ctx context.Context, path string) (ExtractionResult, error) {
	out, _, err := e.runner.Run(ctx, e.cfg.Pdftotext, "-layout", path, "-")
	if err == nil && len(strings.TrimSpace(string(out))) >= minEmbeddedTextBytes {
		return ExtractionResult{
			Text:       string(out),
			SourceType: "PDF",
			Method:     "pdf-text",
			Language:   e.cfg.Language,
		}, nil
	}

	tmpDir, mkErr := os.MkdirTemp("", "comparador-ocr-*")
	if mkErr != nil {
		return ExtractionResult{SourceType: "PDF"}, mkErr
	}
	defer func() { _ = os.RemoveAll(tmpDir) }()

	prefix := filepath.Join(tmpDir, "page")
	if _, errb, err := e.runner.Run(ctx, e.cfg.Pdftoppm, "-png", "-r", fmt.Sprint(e.cfg.DPI), path, prefix); err != nil {
		return ExtractionResult{SourceType: "PDF"}, fmt.Errorf("pdftoppm failed: %w (%s)", err, truncate(string(errb), 512))
	}

	pages, globErr := filepath.Glob(prefix + "*.png")
	if globErr != nil || len(pages) == 0 {
		return ExtractionResult{SourceType: "PDF"}, fmt.Errorf("rasterization produced no pages")
	}
	sort.Strings(pages)

	var sb strings.Builder
	var warns []string
	for _, page := range pages {
		txt, err := e.runTesseract(ctx, page)
		if err != nil {
			warns = append(warns, fmt.Sprintf("%s: %v", filepath.Base(page), err))
			continue
		}
		sb.WriteString(txt)
		sb.WriteString("\n")
	}
	if sb.Len() == 0 {
		return ExtractionResult{SourceType: "PDF", Warnings: warns}, fmt.Errorf("ocr produced no text for any page")
	}
	return ExtractionResult{
		Text:       sb.String(),
		Pages:      len(pages),
		SourceType: "PDF",
		Method:     "pdf-ocr",
		Language:   e.cfg.Language,
		Warnings:   warns,
	}, nil
}

func (e *LocalExtractor) extractImage(ctx context.Context, path string) (ExtractionResult, error) {
	txt, err := e.runTesseract(ctx, path)
	if err != nil {
		return ExtractionResult{SourceType: "IMAGE"}, err
	}
	return ExtractionResult{
		Text:       txt,
		Pages:      1,
		SourceType: "IMAGE",
		Method:     "image-ocr",
		Language:   e.cfg.Language,
	}, nil
}

func (e *LocalExtractor) runTesseract(ctx context.Context, imgPath string) (string, error) {
	out, errb, err := e.runner.Run(ctx, e.cfg.Tesseract, imgPath, "stdout", "-l", e.cfg.Language, "--psm", "6")
	if err != nil {
		return "", fmt.Errorf("tesseract failed: %w (%s)", err, truncate(string(errb), 512))
	}
	return string(out), nil
}
