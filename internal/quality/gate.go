// Package quality scores whether extracted OCR text looks like a genuine
// line-item document before an LLM call is spent on it.
package quality

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/ChanticoMarketing/Comparador-de-Documentos-sub000/internal/textutil"
)

// Options tune the gate. Zero values fall back to defaults.
type Options struct {
	MinProductLines int     // minimum product-like lines to pass
	RepetitionLimit float64 // max duplicate-line ratio to pass
	PassScore       int     // minimum score to pass
}

// DefaultOptions returns the tuning used in production.
func DefaultOptions() Options {
	return Options{MinProductLines: 3, RepetitionLimit: 0.45, PassScore: 5}
}

// Stats carries the raw counters behind an Assessment.
type Stats struct {
	TotalLines       int     `json:"totalLines"`
	HeaderHits       int     `json:"headerHits"`
	ColumnHits       int     `json:"columnHits"`
	ProductLikeLines int     `json:"productLikeLines"`
	RepetitionRatio  float64 `json:"repetitionRatio"`
}

// Assessment is the gate verdict. It is a quality signal, not a hard
// rejection: consumers decide what to do with it.
type Assessment struct {
	IsProductDocument bool     `json:"isProductDocument"`
	Score             int      `json:"score"`
	Reasons           []string `json:"reasons"`
	Stats             Stats    `json:"stats"`
}

var (
	// Table headers as they survive accent folding.
	reHeaders = []*regexp.Regexp{
		regexp.MustCompile(`codigo.*descripcion.*cantidad`),
		regexp.MustCompile(`(articulo|producto|descripcion).*(cantidad|cant)\b`),
		regexp.MustCompile(`\bclave\b.*\bdescripcion\b`),
	}
	// Price / quantity column indicators, matched on the raw lowercased
	// line so "$" and decimal amounts are still visible.
	reColumns = []*regexp.Regexp{
		regexp.MustCompile(`\$\s*\d`),
		regexp.MustCompile(`\d+[.,]\d{2}\b`),
		regexp.MustCompile(`\b(precio|importe|p\.?\s*unit(ario)?)\b`),
	}

	reUnitToken  = regexp.MustCompile(`\b\d+(\.\d+)? ?(ml|l|lt|kg|g|gr)\b`)
	rePackToken  = regexp.MustCompile(`\b\d+ ?pz?\b|\bpk ?\d+\b`)
	reBrandDigit = regexp.MustCompile(`\b(coca|pepsi|bimbo|lala|sabritas|jumex|boing|gamesa|barcel|marinela|bonafont|electropura)\b.*\d|\d.*\b(coca|pepsi|bimbo|lala|sabritas|jumex|boing|gamesa|barcel|marinela|bonafont|electropura)\b`)

	// Tax / legal boilerplate that disqualifies a line from counting as
	// product-like even when it carries digits.
	reNoise = regexp.MustCompile(`\b(iva|rfc|cfdi|sat|folio fiscal|regimen|impuesto|retencion|subtotal|total|domicilio|certificado|sello)\b`)
)

// Assess splits the text into non-blank lines, measures boilerplate
// repetition and table structure, and scores how product-like it is.
func Assess(text string, opts Options) Assessment {
	if opts.MinProductLines <= 0 {
		opts.MinProductLines = 3
	}
	if opts.RepetitionLimit <= 0 {
		opts.RepetitionLimit = 0.45
	}
	if opts.PassScore <= 0 {
		opts.PassScore = 5
	}

	var lines []string
	for _, ln := range strings.Split(text, "\n") {
		if t := strings.TrimSpace(ln); t != "" {
			lines = append(lines, t)
		}
	}

	a := Assessment{Stats: Stats{TotalLines: len(lines)}}
	if len(lines) == 0 {
		a.Reasons = append(a.Reasons, "empty document")
		return a
	}

	// Duplicate counting runs on folded lines so "I.V.A." and "iva"
	// collapse to the same key.
	dupes := make(map[string]int, len(lines))
	maxDup := 0
	for _, ln := range lines {
		folded := textutil.Fold(ln)
		dupes[folded]++
		if dupes[folded] > maxDup {
			maxDup = dupes[folded]
		}
	}
	a.Stats.RepetitionRatio = float64(maxDup) / float64(len(lines))

	for _, ln := range lines {
		raw := strings.ToLower(ln)
		folded := textutil.Fold(ln)

		for _, re := range reHeaders {
			if re.MatchString(folded) {
				a.Stats.HeaderHits++
				break
			}
		}
		for _, re := range reColumns {
			if re.MatchString(raw) {
				a.Stats.ColumnHits++
				break
			}
		}
		if reNoise.MatchString(folded) {
			continue
		}
		if reUnitToken.MatchString(folded) || rePackToken.MatchString(folded) || reBrandDigit.MatchString(folded) {
			a.Stats.ProductLikeLines++
		}
	}

	penalty := 0
	if a.Stats.RepetitionRatio > 0.35 {
		penalty += 2
		a.Reasons = append(a.Reasons, fmt.Sprintf("high line repetition (%.2f)", a.Stats.RepetitionRatio))
	}
	if a.Stats.RepetitionRatio > 0.45 {
		penalty += 4
	}

	productLike := a.Stats.ProductLikeLines
	if productLike > 10 {
		productLike = 10
	}
	a.Score = 2*a.Stats.HeaderHits + 2*a.Stats.ColumnHits + productLike - penalty

	if a.Stats.HeaderHits > 0 {
		a.Reasons = append(a.Reasons, "table header detected")
	}
	if a.Stats.ProductLikeLines > 0 {
		a.Reasons = append(a.Reasons, fmt.Sprintf("%d product-like lines", a.Stats.ProductLikeLines))
	} else {
		a.Reasons = append(a.Reasons, "no product-like lines")
	}

	a.IsProductDocument = a.Score >= opts.PassScore &&
		a.Stats.ProductLikeLines >= opts.MinProductLines &&
		a.Stats.RepetitionRatio < opts.RepetitionLimit
	return a
}
