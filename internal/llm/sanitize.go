package llm

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ChanticoMarketing/Comparador-de-Documentos-sub000/constants"
)

// Placeholders for required strings the model failed to supply.
const (
	PlaceholderProduct = "unknown product"
	PlaceholderField   = "unknown field"
)

// NormalizeAndSanitizeJSON makes a model response schema-friendly:
//   - strips markdown code fences around the JSON body
//   - guarantees items/metadata arrays exist
//   - coerces numeric values to strings, drops unknown keys
//   - fills placeholder names and collapses unknown statuses to "error"
//
// Returns the cleaned document plus a list of applied fixes for logging.
func NormalizeAndSanitizeJSON(raw []byte, logger *slog.Logger) ([]byte, []string, error) {
	if logger == nil {
		logger = slog.Default()
	}

	raw = stripCodeFences(raw)

	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, nil, fmt.Errorf("sanitize: decode: %w", err)
	}

	fixes := make([]string, 0, 8)

	items, ok := m["items"].([]any)
	if !ok {
		items = []any{}
		fixes = append(fixes, "items(missing)")
	}
	cleanItems := make([]any, 0, len(items))
	for i, it := range items {
		obj, ok := it.(map[string]any)
		if !ok {
			fixes = append(fixes, fmt.Sprintf("items[%d](not object)", i))
			continue
		}
		cleanItems = append(cleanItems, sanitizeEntry(obj, "product_name", PlaceholderProduct,
			[]string{"product_name", "invoice_value", "delivery_value", "status", "note"}, i, "items", &fixes))
	}
	m["items"] = cleanItems

	metadata, ok := m["metadata"].([]any)
	if !ok {
		metadata = []any{}
		fixes = append(fixes, "metadata(missing)")
	}
	cleanMeta := make([]any, 0, len(metadata))
	for i, md := range metadata {
		obj, ok := md.(map[string]any)
		if !ok {
			fixes = append(fixes, fmt.Sprintf("metadata[%d](not object)", i))
			continue
		}
		cleanMeta = append(cleanMeta, sanitizeEntry(obj, "field", PlaceholderField,
			[]string{"field", "invoice_value", "delivery_value", "status"}, i, "metadata", &fixes))
	}
	m["metadata"] = cleanMeta

	// Everything outside the schema goes; the model sometimes wraps the
	// answer in extra commentary keys.
	for k := range m {
		switch k {
		case "items", "metadata", "summary":
		default:
			delete(m, k)
			fixes = append(fixes, k+"(unknown)")
		}
	}

	b, err := json.Marshal(m)
	if err != nil {
		return nil, nil, err
	}
	if len(fixes) > 0 {
		logger.Debug("llm response sanitized", "fixes", fixes)
	}
	return b, fixes, nil
}

func sanitizeEntry(obj map[string]any, nameKey, placeholder string, allowed []string, idx int, kind string, fixes *[]string) map[string]any {
	out := make(map[string]any, len(allowed))
	for _, k := range allowed {
		v, ok := obj[k]
		if !ok {
			continue
		}
		switch t := v.(type) {
		case string:
			out[k] = strings.TrimSpace(t)
		case float64:
			out[k] = trimFloat(t)
		case bool:
			out[k] = fmt.Sprintf("%t", t)
		case nil:
			// omit
		default:
			*fixes = append(*fixes, fmt.Sprintf("%s[%d].%s(type)", kind, idx, k))
		}
	}
	if name, _ := out[nameKey].(string); name == "" {
		out[nameKey] = placeholder
		*fixes = append(*fixes, fmt.Sprintf("%s[%d].%s(placeholder)", kind, idx, nameKey))
	}
	status, _ := out["status"].(string)
	coerced := string(constants.CoerceItemStatus(status))
	if status != coerced {
		*fixes = append(*fixes, fmt.Sprintf("%s[%d].status(%q->error)", kind, idx, status))
	}
	out["status"] = coerced
	return out
}

func trimFloat(f float64) string {
	s := fmt.Sprintf("%g", f)
	return s
}

// stripCodeFences removes a leading ```json / trailing ``` wrapper.
func stripCodeFences(raw []byte) []byte {
	s := strings.TrimSpace(string(raw))
	if !strings.HasPrefix(s, "```") {
		return raw
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return []byte(strings.TrimSpace(s))
}

// CoerceResult runs the full defensive boundary: sanitize, validate
// against the schema, decode, and recompute the summary from statuses.
func CoerceResult(raw []byte, req Request, logger *slog.Logger) (*Result, error) {
	cleaned, _, err := NormalizeAndSanitizeJSON(raw, logger)
	if err != nil {
		return nil, err
	}
	if err := ValidateJSONAgainstSchema(BuildComparisonJSONSchema(), cleaned); err != nil {
		return nil, err
	}
	var res Result
	if err := json.Unmarshal(cleaned, &res); err != nil {
		return nil, fmt.Errorf("unmarshal result: %w", err)
	}
	res.InvoiceFilename = req.InvoiceName
	res.DeliveryFilename = req.DeliveryName
	res.Summary = RecomputeSummary(&res)
	return &res, nil
}

// RecomputeSummary derives the summary counts from item and metadata
// statuses, ignoring whatever summary object the model supplied.
func RecomputeSummary(r *Result) Summary {
	var s Summary
	count := func(status string) {
		switch constants.CoerceItemStatus(status) {
		case constants.ItemStatusMatch:
			s.Matches++
		case constants.ItemStatusWarning:
			s.Warnings++
		default:
			s.Errors++
		}
	}
	for _, it := range r.Items {
		count(it.Status)
	}
	for _, md := range r.Metadata {
		count(md.Status)
	}
	return s
}
