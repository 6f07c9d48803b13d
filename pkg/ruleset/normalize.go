package ruleset

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// stripDiacritics decomposes to NFD, drops combining marks, recomposes to NFC.
var stripDiacritics = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Content carries one interaction's text in both raw and normalized form.
// Normalization is done once per evaluation so every matcher sees the same
// bytes; spans from normalized matchers are offsets into Normalized.
type Content struct {
	Raw        string
	Locale     string
	Normalized string
}

// NewContent normalizes raw once: diacritics stripped, whitespace runs
// collapsed to single spaces, lowercased.
func NewContent(raw, locale string) Content {
	return Content{Raw: raw, Locale: locale, Normalized: Normalize(raw)}
}

// Normalize returns the canonical matching form of raw content.
func Normalize(raw string) string {
	stripped, _, err := transform.String(stripDiacritics, raw)
	if err != nil {
		// Remove/NFC cannot fail on valid UTF-8; fall back to the input.
		stripped = raw
	}
	return strings.ToLower(strings.Join(strings.Fields(stripped), " "))
}
