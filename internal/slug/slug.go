// Package slug builds URL-safe identifiers from Polish event names.
package slug

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Fallback is used when a name folds to nothing.
const Fallback = "event"

var (
	// Letters without a decomposed form in Unicode.
	unfoldable = strings.NewReplacer(
		"ł", "l", "Ł", "L",
		"ß", "ss",
		"ø", "o", "Ø", "O",
		"æ", "ae", "Æ", "AE",
		"đ", "d", "Đ", "D",
	)
	nonAlnum = regexp.MustCompile(`[^a-z0-9]+`)
)

// Fold strips diacritics and maps the remaining non-decomposable letters to
// ASCII.
func Fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}
	return unfoldable.Replace(folded)
}

// Make joins the non-empty parts into one lower-case hyphenated slug.
func Make(parts ...string) string {
	kept := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			kept = append(kept, s)
		}
	}
	s := strings.ToLower(Fold(strings.Join(kept, " ")))
	s = strings.Trim(nonAlnum.ReplaceAllString(s, "-"), "-")
	if s == "" {
		return Fallback
	}
	return s
}

// WithSuffix returns base for attempt 1 and base-N for attempt N >= 2.
func WithSuffix(base string, attempt int) string {
	if attempt < 2 {
		return base
	}
	return base + "-" + strconv.Itoa(attempt)
}
