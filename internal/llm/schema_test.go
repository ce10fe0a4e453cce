package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateJSONAgainstSchema(t *testing.T) {
	schema := BuildComparisonJSONSchema()

	tests := []struct {
		name    string
		data    string
		wantErr bool
	}{
		{
			name: "minimal valid document",
			data: `{"items":[],"metadata":[]}`,
		},
		{
			name: "full document",
			data: `{"items":[{"product_name":"Coca Cola 600ml","invoice_value":"12","delivery_value":"12","status":"match","note":""}],
				"metadata":[{"field":"date","invoice_value":"2026-01-10","delivery_value":"2026-01-10","status":"match"}],
				"summary":{"matches":2,"anything":"goes"}}`,
		},
		{
			name:    "missing required arrays",
			data:    `{"summary":{}}`,
			wantErr: true,
		},
		{
			name:    "status outside the enum",
			data:    `{"items":[{"product_name":"Pan","status":"mismatch"}],"metadata":[]}`,
			wantErr: true,
		},
		{
			name:    "item missing product_name",
			data:    `{"items":[{"status":"match"}],"metadata":[]}`,
			wantErr: true,
		},
		{
			name:    "unknown top-level key",
			data:    `{"items":[],"metadata":[],"commentary":"x"}`,
			wantErr: true,
		},
		{
			name:    "numeric value where string expected",
			data:    `{"items":[{"product_name":"Pan","invoice_value":4}],"metadata":[]}`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateJSONAgainstSchema(schema, []byte(tt.data))
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
