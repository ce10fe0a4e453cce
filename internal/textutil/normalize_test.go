package textutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCleanOCRText(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "empty input",
			input:    "",
			expected: "",
		},
		{
			name:     "windows line endings folded",
			input:    "linea uno\r\nlinea dos\r",
			expected: "linea uno\nlinea dos",
		},
		{
			name:     "tabs and double spaces collapsed",
			input:    "CODIGO\tDESCRIPCION\t\tCANTIDAD\nA01   Coca  Cola",
			expected: "CODIGO DESCRIPCION CANTIDAD\nA01 Coca Cola",
		},
		{
			name:     "blank line runs capped at one",
			input:    "encabezado\n\n\n\n\ncuerpo",
			expected: "encabezado\n\ncuerpo",
		},
		{
			name:     "trailing spaces trimmed per line",
			input:    "  producto uno   \nproducto dos  ",
			expected: "producto uno\nproducto dos",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, CleanOCRText(tt.input))
		})
	}
}

func TestFold(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "diacritics and case",
			input:    "Café Olé 600ML",
			expected: "cafe ole 600ml",
		},
		{
			name:     "punctuation collapses to single spaces",
			input:    "COCA-COLA (600 ml) $18.50",
			expected: "coca cola 600 ml 18 50",
		},
		{
			name:     "enye decomposes",
			input:    "Piña Colada",
			expected: "pina colada",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Fold(tt.input))
		})
	}
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "filler tokens removed",
			input:    "12 pz de leche con azúcar",
			expected: "12 leche azucar",
		},
		{
			name:     "standalone p removed but pack suffix kept",
			input:    "caja 12p y 1 p suelta",
			expected: "caja 12p y 1 suelta",
		},
		{
			name:     "accents fold before comparison",
			input:    "Café con Leche",
			expected: "cafe leche",
		},
		{
			name:     "already clean text untouched",
			input:    "coca cola 600ml",
			expected: "coca cola 600ml",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Normalize(tt.input)
			assert.Equal(t, tt.expected, got)
			assert.Equal(t, got, Normalize(got), "Normalize must be idempotent")
		})
	}
}
