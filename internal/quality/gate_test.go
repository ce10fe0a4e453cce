package quality

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const productTable = `CODIGO DESCRIPCION CANTIDAD PRECIO
A01 Coca Cola 600ml 12 $18.50
A02 Leche Lala 1l 6 $24.00
A03 Bimbo Pan Blanco 680g 4 $42.00
A04 Jugo Jumex 355ml 10 $12.00`

func TestAssessProductTablePasses(t *testing.T) {
	a := Assess(productTable, DefaultOptions())

	assert.True(t, a.IsProductDocument)
	assert.Equal(t, 1, a.Stats.HeaderHits)
	assert.Equal(t, 4, a.Stats.ProductLikeLines)
	assert.GreaterOrEqual(t, a.Score, DefaultOptions().PassScore)
	assert.Less(t, a.Stats.RepetitionRatio, DefaultOptions().RepetitionLimit)
	assert.Contains(t, a.Reasons, "table header detected")
}

func TestAssessRepeatedBoilerplateFails(t *testing.T) {
	lines := make([]string, 10)
	for i := range lines {
		lines[i] = "SELLO DIGITAL DEL SAT"
	}
	a := Assess(strings.Join(lines, "\n"), DefaultOptions())

	assert.False(t, a.IsProductDocument)
	assert.InDelta(t, 1.0, a.Stats.RepetitionRatio, 1e-9)
	assert.Equal(t, 0, a.Stats.ProductLikeLines)
	assert.Negative(t, a.Score)

	found := false
	for _, r := range a.Reasons {
		if strings.HasPrefix(r, "high line repetition") {
			found = true
		}
	}
	assert.True(t, found, "expected a repetition reason, got %v", a.Reasons)
}

func TestAssessEmptyDocument(t *testing.T) {
	a := Assess("   \n\n  ", DefaultOptions())

	assert.False(t, a.IsProductDocument)
	assert.Equal(t, 0, a.Stats.TotalLines)
	assert.Contains(t, a.Reasons, "empty document")
}

func TestAssessTaxFooterDoesNotCountAsProducts(t *testing.T) {
	text := `RFC XAXX010101000
IVA 16% $123.45
SUBTOTAL $771.55
TOTAL $895.00`
	a := Assess(text, DefaultOptions())

	require.Equal(t, 0, a.Stats.ProductLikeLines)
	assert.False(t, a.IsProductDocument)
	assert.Contains(t, a.Reasons, "no product-like lines")
}

func TestAssessZeroOptionsFallBackToDefaults(t *testing.T) {
	a := Assess(productTable, Options{})
	b := Assess(productTable, DefaultOptions())

	assert.Equal(t, b.IsProductDocument, a.IsProductDocument)
	assert.Equal(t, b.Score, a.Score)
}

func TestAssessCustomThresholds(t *testing.T) {
	// Two product lines fail the default line minimum but pass a looser one.
	text := `FACTURA 1234
A01 Coca Cola 600ml $18.50
A02 Leche Lala 1l $24.00`

	strict := Assess(text, DefaultOptions())
	assert.False(t, strict.IsProductDocument)

	loose := Assess(text, Options{MinProductLines: 2, RepetitionLimit: 0.9, PassScore: 2})
	assert.True(t, loose.IsProductDocument)
}
