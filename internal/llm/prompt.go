package llm

import "strings"

// BuildSystemPrompt composes the system message: role, matching rules and
// strict-but-practical formatting rules.
func BuildSystemPrompt() string {
	parts := []string{
		"You compare a supplier invoice against its delivery order. Return ONLY JSON that matches the provided JSON Schema.",
		"Under 'items', list every product line that appears on either document, with the quantity/value seen on the invoice and on the delivery order.",
		"Status per item: 'match' when the values agree, 'warning' for small or explainable differences (rounding, unit notation), 'error' when the line is missing from one document or the quantities disagree.",
		"Under 'metadata', compare document-level fields: date, folio/number, supplier name, totals.",
		"Product names may differ in accents, punctuation and pack notation ('12p', '12 pz'); treat those as the same product.",
		"Write a short 'note' only when the status is not 'match'.",
		"Never output null. If a value is missing on one side, use an empty string and status 'error'.",
	}
	return strings.Join(parts, " ")
}

// BuildUserPrompt interleaves both documents with their filenames so the
// model keeps the sides straight.
func BuildUserPrompt(req Request) string {
	var sb strings.Builder
	sb.WriteString("INVOICE (" + req.InvoiceName + "):\n")
	sb.WriteString(req.InvoiceText)
	sb.WriteString("\n\nDELIVERY ORDER (" + req.DeliveryName + "):\n")
	sb.WriteString(req.DeliveryText)
	return sb.String()
}
