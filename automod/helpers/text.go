package helpers

import (
	"fmt"
	"unicode/utf8"

	"github.com/spaolacci/murmur3"
)

// returns a fast, compact hash of a string
//
// current implementation uses murmur3, default seed, and hex encoding. Used to
// correlate user text in logs without logging the text itself.
func HashOfString(s string) string {
	val := murmur3.Sum64([]byte(s))
	return fmt.Sprintf("%016x", val)
}

// Truncates to at most n runes, appending an ellipsis when anything was cut.
func TruncateText(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n]) + "…"
}
