package export

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"

	"github.com/ChanticoMarketing/Comparador-de-Documentos-sub000/internal/repository"
)

// Service is a tiny façade over the comparison repository that produces
// XLSX bytes for exports.
type Service struct {
	comparisons repository.ComparisonRepository
	logger      *slog.Logger
}

func NewService(comparisons repository.ComparisonRepository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{comparisons: comparisons, logger: logger}
}

// ExportComparisonXLSX renders one comparison as a workbook: a summary
// block, the line items and the document metadata.
func (s *Service) ExportComparisonXLSX(ctx context.Context, comparisonID uuid.UUID) ([]byte, error) {
	start := time.Now()

	cmp, err := s.comparisons.GetComparison(ctx, comparisonID)
	if err != nil {
		return nil, fmt.Errorf("query comparison: %w", err)
	}

	f := excelize.NewFile()
	const itemsSheet = "Items"
	const metaSheet = "Metadata"

	idx, err := f.NewSheet(itemsSheet)
	if err != nil {
		return nil, err
	}
	if _, err := f.NewSheet(metaSheet); err != nil {
		return nil, err
	}
	f.SetActiveSheet(idx)
	// Drop the default sheet excelize creates.
	_ = f.DeleteSheet("Sheet1")

	write := func(sheet string, col, row int, v any) {
		cell, _ := excelize.CoordinatesToCellName(col, row)
		_ = f.SetCellValue(sheet, cell, v)
	}

	// Summary block at the top of the items sheet.
	var matches, warnings, errs int
	for _, it := range cmp.Items {
		countStatus(it.Status, &matches, &warnings, &errs)
	}
	for _, md := range cmp.Metadata {
		countStatus(md.Status, &matches, &warnings, &errs)
	}
	write(itemsSheet, 1, 1, "Invoice")
	write(itemsSheet, 2, 1, cmp.InvoiceFilename)
	write(itemsSheet, 1, 2, "Delivery Order")
	write(itemsSheet, 2, 2, cmp.DeliveryFilename)
	write(itemsSheet, 1, 3, "Matches")
	write(itemsSheet, 2, 3, matches)
	write(itemsSheet, 3, 3, "Warnings")
	write(itemsSheet, 4, 3, warnings)
	write(itemsSheet, 5, 3, "Errors")
	write(itemsSheet, 6, 3, errs)

	headers := []string{"Product", "Invoice Value", "Delivery Value", "Status", "Note"}
	const headerRow = 5
	for i, h := range headers {
		write(itemsSheet, i+1, headerRow, h)
	}
	row := headerRow + 1
	for _, it := range cmp.Items {
		write(itemsSheet, 1, row, it.ProductName)
		write(itemsSheet, 2, row, it.InvoiceValue)
		write(itemsSheet, 3, row, it.DeliveryValue)
		write(itemsSheet, 4, row, it.Status)
		write(itemsSheet, 5, row, it.Note)
		row++
	}

	metaHeaders := []string{"Field", "Invoice Value", "Delivery Value", "Status"}
	for i, h := range metaHeaders {
		write(metaSheet, i+1, 1, h)
	}
	row = 2
	for _, md := range cmp.Metadata {
		write(metaSheet, 1, row, md.Field)
		write(metaSheet, 2, row, md.InvoiceValue)
		write(metaSheet, 3, row, md.DeliveryValue)
		write(metaSheet, 4, row, md.Status)
		row++
	}

	_ = f.SetColWidth(itemsSheet, "A", "A", 36)
	_ = f.SetColWidth(itemsSheet, "B", "C", 18)
	_ = f.SetColWidth(itemsSheet, "D", "D", 10)
	_ = f.SetColWidth(itemsSheet, "E", "E", 48)
	_ = f.SetColWidth(metaSheet, "A", "A", 24)
	_ = f.SetColWidth(metaSheet, "B", "C", 28)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}

	s.logger.Info("export.xlsx.ok",
		"comparison_id", comparisonID.String(),
		"items", len(cmp.Items),
		"metadata", len(cmp.Metadata),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return buf.Bytes(), nil
}

func countStatus(status string, matches, warnings, errs *int) {
	switch status {
	case "match":
		*matches++
	case "warning":
		*warnings++
	default:
		*errs++
	}
}
