// Package ingest discovers document pairs on disk for the batch CLI.
package ingest

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/ChanticoMarketing/Comparador-de-Documentos-sub000/constants"
	"github.com/ChanticoMarketing/Comparador-de-Documentos-sub000/internal/pipeline"
)

// DiscoverPairs lists both directories, filters to allowed extensions,
// sorts each side by filename and pairs positionally — the same pairing
// rule the upload endpoint applies. Surplus files on the longer side are
// returned too; the pipeline ignores them for processing.
func DiscoverPairs(invoiceDir, deliveryDir string) (invoices, deliveries []string, err error) {
	if strings.TrimSpace(invoiceDir) == "" || strings.TrimSpace(deliveryDir) == "" {
		return nil, nil, errors.New("both invoice and delivery directories are required")
	}
	invoices, err = listDocuments(invoiceDir)
	if err != nil {
		return nil, nil, fmt.Errorf("scan invoices: %w", err)
	}
	deliveries, err = listDocuments(deliveryDir)
	if err != nil {
		return nil, nil, fmt.Errorf("scan deliveries: %w", err)
	}
	return invoices, deliveries, nil
}

func listDocuments(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() || isHidden(e.Name()) {
			continue
		}
		if !constants.IsAllowedExt(filepath.Ext(e.Name())) {
			continue
		}
		out = append(out, filepath.Join(dir, e.Name()))
	}
	sort.Strings(out)
	return out, nil
}

func isHidden(name string) bool {
	return strings.HasPrefix(name, ".")
}

// Stage copies source documents into the pipeline's scratch dir so the
// pipeline can delete its inputs without touching the originals.
func Stage(paths []string, uploadDir string) ([]pipeline.UploadedFile, error) {
	out := make([]pipeline.UploadedFile, 0, len(paths))
	for _, p := range paths {
		staged, err := stageOne(p, uploadDir)
		if err != nil {
			for _, f := range out {
				_ = os.Remove(f.Path)
			}
			return nil, err
		}
		out = append(out, staged)
	}
	return out, nil
}

func stageOne(src, uploadDir string) (pipeline.UploadedFile, error) {
	in, err := os.Open(src)
	if err != nil {
		return pipeline.UploadedFile{}, fmt.Errorf("open %s: %w", src, err)
	}
	defer func() { _ = in.Close() }()

	dstPath := filepath.Join(uploadDir, uuid.New().String()+filepath.Ext(src))
	out, err := os.Create(dstPath)
	if err != nil {
		return pipeline.UploadedFile{}, fmt.Errorf("stage %s: %w", src, err)
	}
	n, err := io.Copy(out, in)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(dstPath)
		return pipeline.UploadedFile{}, fmt.Errorf("stage %s: %w", src, err)
	}
	return pipeline.UploadedFile{Name: filepath.Base(src), Path: dstPath, Size: n}, nil
}
