package photo

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// removeDiacritics removes diacritical marks from a string (e.g., "Léto" -> "Leto").
func removeDiacritics(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	result, _, _ := transform.String(t, s)
	return result
}

// NormalizeBucket normalizes a bucket label for comparison
// (lowercase, no diacritics, trimmed).
func NormalizeBucket(name string) string {
	name = removeDiacritics(name)
	name = strings.ToLower(name)
	return strings.TrimSpace(name)
}
