// Package textutil holds the deterministic string cleanup applied to OCR
// output before it reaches the comparison backend.
package textutil

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

var (
	reCRLF       = regexp.MustCompile(`\r\n?`)
	reTabs       = regexp.MustCompile(`\t+`)
	reMultiSpace = regexp.MustCompile(` {2,}`)
	reMultiBlank = regexp.MustCompile(`\n{3,}`)

	// Filler tokens that OCR sprinkles between product words ("12 pz de
	// leche con azucar" -> "12 leche azucar"). Standalone words only;
	// pack tokens like "12p" keep their suffix.
	reFiller   = regexp.MustCompile(`\b(p|pz|de|con)\b`)
	reNonAlnum = regexp.MustCompile(`[^a-z0-9]+`)
)

// CleanOCRText collapses noisy whitespace in raw extracted text.
// Conservative: keeps line breaks; collapses >2 newlines into a single
// blank line.
func CleanOCRText(s string) string {
	if s == "" {
		return s
	}
	s = reCRLF.ReplaceAllString(s, "\n")
	s = reTabs.ReplaceAllString(s, " ")
	s = reMultiSpace.ReplaceAllString(s, " ")
	s = reMultiBlank.ReplaceAllString(s, "\n\n")
	lines := strings.Split(s, "\n")
	for i := range lines {
		lines[i] = strings.TrimRight(lines[i], " ")
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

// Fold lowercases, strips diacritics and collapses every run of
// non-alphanumeric characters to a single space. Pure and idempotent.
func Fold(s string) string {
	s = strings.ToLower(s)
	s = stripDiacritics(s)
	s = reNonAlnum.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// Normalize canonicalizes an OCR text fragment for comparison: Fold plus
// removal of filler tokens that carry no product information. Idempotent:
// Normalize(Normalize(x)) == Normalize(x).
func Normalize(s string) string {
	s = Fold(s)
	s = reFiller.ReplaceAllString(s, " ")
	s = reMultiSpace.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// stripDiacritics removes combining marks after canonical decomposition,
// so "café" and "CAFE" fold to the same bytes.
func stripDiacritics(s string) string {
	decomposed := norm.NFD.String(s)
	var b strings.Builder
	b.Grow(len(decomposed))
	for _, r := range decomposed {
		if unicode.Is(unicode.Mn, r) {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
