package llm

import (
	"context"
	"fmt"
)

// Request carries both extracted texts plus the original filenames so the
// model can anchor its answer to the right documents.
type Request struct {
	InvoiceText  string
	DeliveryText string
	InvoiceName  string
	DeliveryName string
}

// Item is one compared line item.
type Item struct {
	ProductName   string `json:"product_name"`
	InvoiceValue  string `json:"invoice_value"`
	DeliveryValue string `json:"delivery_value"`
	Status        string `json:"status"` // match | warning | error
	Note          string `json:"note,omitempty"`
}

// MetadataField is one compared document-level field.
type MetadataField struct {
	Field         string `json:"field"`
	InvoiceValue  string `json:"invoice_value"`
	DeliveryValue string `json:"delivery_value"`
	Status        string `json:"status"`
}

// Summary aggregates item and metadata statuses. Always derived locally,
// never trusted from the upstream response.
type Summary struct {
	Matches  int `json:"matches"`
	Warnings int `json:"warnings"`
	Errors   int `json:"errors"`
}

// Result is the structured comparison of one document pair.
type Result struct {
	InvoiceFilename  string          `json:"invoice_filename"`
	DeliveryFilename string          `json:"delivery_filename"`
	Items            []Item          `json:"items"`
	Metadata         []MetadataField `json:"metadata"`
	Summary          Summary         `json:"summary"`
}

// Comparator is the comparison port the pipeline depends on.
type Comparator interface {
	Compare(ctx context.Context, req Request) (*Result, error)
}

// ComparisonError marks a comparison backend failure after the fallback
// model has been exhausted. The pipeline isolates it to the owning pair.
type ComparisonError struct {
	Message string
	Err     error
}

func (e *ComparisonError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("comparison failed: %s: %v", e.Message, e.Err)
	}
	return fmt.Sprintf("comparison failed: %s", e.Message)
}

func (e *ComparisonError) Unwrap() error { return e.Err }

// NewComparisonError wraps err with a short message.
func NewComparisonError(message string, err error) *ComparisonError {
	return &ComparisonError{Message: message, Err: err}
}
