package keyword

import (
	"log/slog"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// FoldText lower-cases free-form text and strips combining marks, so that
// "Kíll" and "kill" compare equal. Everything else (punctuation, whitespace,
// non-latin scripts) is kept, which keeps substring matching meaningful.
func FoldText(text string) string {
	// transformers carry state, so the chain is built per call
	normFunc := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	lower := strings.ToLower(text)
	folded, _, err := transform.String(normFunc, lower)
	if err != nil {
		slog.Warn("unicode normalization error", "err", err)
		return lower
	}
	return folded
}

// Splits free-form text in to lower-case, folded tokens on any non-letter,
// non-digit boundary.
func TokenizeText(text string) []string {
	return strings.FieldsFunc(FoldText(text), func(c rune) bool {
		return !unicode.IsLetter(c) && !unicode.IsNumber(c)
	})
}
