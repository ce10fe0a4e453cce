package ocr

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ChanticoMarketing/Comparador-de-Documentos-sub000/internal/common"
)

// fakeRunner dispatches on the binary name so each tool can be scripted.
type fakeRunner struct {
	pdftotext func(args []string) ([]byte, error)
	pdftoppm  func(args []string) ([]byte, error)
	tesseract func(args []string) ([]byte, error)
	calls     []string
}

func (f *fakeRunner) Run(_ context.Context, name string, args ...string) ([]byte, []byte, error) {
	f.calls = append(f.calls, name)
	var fn func([]string) ([]byte, error)
	switch name {
	case "pdftotext":
		fn = f.pdftotext
	case "pdftoppm":
		fn = f.pdftoppm
	case "tesseract":
		fn = f.tesseract
	}
	if fn == nil {
		return nil, nil, errors.New("unexpected binary: " + name)
	}
	out, err := fn(args)
	if err != nil {
		return nil, []byte("tool stderr"), err
	}
	return out, nil, nil
}

func localExtractor(r Runner) *LocalExtractor {
	e := NewLocalExtractor(common.OCRConfig{Language: "spa", DPI: 150}, nil)
	e.runner = r
	return e
}

func TestLocalExtractPDFWithTextLayer(t *testing.T) {
	embedded := strings.Repeat("A01 Coca Cola 600ml $18.50\n", 5)
	r := &fakeRunner{
		pdftotext: func(args []string) ([]byte, error) {
			assert.Equal(t, []string{"-layout", "doc.pdf", "-"}, args)
			return []byte(embedded), nil
		},
	}

	res, err := localExtractor(r).Extract(context.Background(), "doc.pdf")
	require.NoError(t, err)

	assert.Equal(t, embedded, res.Text)
	assert.Equal(t, "pdf-text", res.Method)
	assert.Equal(t, "PDF", res.SourceType)
	assert.Equal(t, []string{"pdftotext"}, r.calls, "no rasterization for a text PDF")
}

func TestLocalExtractScannedPDFFallsBackToOCR(t *testing.T) {
	r := &fakeRunner{
		// Nearly empty text layer forces rasterization.
		pdftotext: func([]string) ([]byte, error) { return []byte("  \n"), nil },
		pdftoppm: func(args []string) ([]byte, error) {
			prefix := args[len(args)-1]
			require.NoError(t, os.WriteFile(prefix+"-2.png", []byte("png"), 0o644))
			require.NoError(t, os.WriteFile(prefix+"-1.png", []byte("png"), 0o644))
			return nil, nil
		},
		tesseract: func(args []string) ([]byte, error) {
			page := filepath.Base(args[0])
			return []byte("texto de " + page), nil
		},
	}

	res, err := localExtractor(r).Extract(context.Background(), "scan.pdf")
	require.NoError(t, err)

	assert.Equal(t, "pdf-ocr", res.Method)
	assert.Equal(t, 2, res.Pages)
	// Pages are OCRed in sorted order.
	assert.Equal(t, "texto de page-1.png\ntexto de page-2.png\n", res.Text)
	assert.Empty(t, res.Warnings)
}

func TestLocalExtractScannedPDFPartialPageFailure(t *testing.T) {
	r := &fakeRunner{
		pdftotext: func([]string) ([]byte, error) { return nil, errors.New("no text layer") },
		pdftoppm: func(args []string) ([]byte, error) {
			prefix := args[len(args)-1]
			require.NoError(t, os.WriteFile(prefix+"-1.png", []byte("png"), 0o644))
			require.NoError(t, os.WriteFile(prefix+"-2.png", []byte("png"), 0o644))
			return nil, nil
		},
		tesseract: func(args []string) ([]byte, error) {
			if strings.HasSuffix(args[0], "-1.png") {
				return nil, errors.New("unreadable page")
			}
			return []byte("pagina dos"), nil
		},
	}

	res, err := localExtractor(r).Extract(context.Background(), "scan.pdf")
	require.NoError(t, err)

	assert.Equal(t, "pagina dos\n", res.Text)
	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0], "unreadable page")
}

func TestLocalExtractScannedPDFAllPagesFail(t *testing.T) {
	r := &fakeRunner{
		pdftotext: func([]string) ([]byte, error) { return nil, errors.New("no text layer") },
		pdftoppm: func(args []string) ([]byte, error) {
			prefix := args[len(args)-1]
			require.NoError(t, os.WriteFile(prefix+"-1.png", []byte("png"), 0o644))
			return nil, nil
		},
		tesseract: func([]string) ([]byte, error) { return nil, errors.New("unreadable page") },
	}

	_, err := localExtractor(r).Extract(context.Background(), "scan.pdf")
	require.Error(t, err)

	var extErr *ExtractionError
	require.ErrorAs(t, err, &extErr)
	assert.Equal(t, "scan.pdf", extErr.Filename)
}

func TestLocalExtractImage(t *testing.T) {
	r := &fakeRunner{
		tesseract: func(args []string) ([]byte, error) {
			assert.Equal(t, []string{"foto.jpg", "stdout", "-l", "spa", "--psm", "6"}, args)
			return []byte("texto de la foto"), nil
		},
	}

	res, err := localExtractor(r).Extract(context.Background(), "foto.jpg")
	require.NoError(t, err)

	assert.Equal(t, "texto de la foto", res.Text)
	assert.Equal(t, "image-ocr", res.Method)
	assert.Equal(t, 1, res.Pages)
}

func TestLocalExtractUnsupportedExtension(t *testing.T) {
	_, err := localExtractor(&fakeRunner{}).Extract(context.Background(), "doc.docx")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported extension")
}

func TestNewFromConfig(t *testing.T) {
	api, err := NewFromConfig(common.OCRConfig{Provider: "api"}, nil)
	require.NoError(t, err)
	assert.IsType(t, &APIExtractor{}, api)

	local, err := NewFromConfig(common.OCRConfig{Provider: "tesseract"}, nil)
	require.NoError(t, err)
	assert.IsType(t, &LocalExtractor{}, local)

	_, err = NewFromConfig(common.OCRConfig{Provider: "cloudvision"}, nil)
	assert.Error(t, err)
}
