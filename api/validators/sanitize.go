package validators

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// SanitizeString trims input, drops control characters and invalid UTF-8,
// and cuts the result to at most maxLen bytes without splitting a rune.
// maxLen <= 0 disables the cut.
func SanitizeString(input string, maxLen int) string {
	clean := strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, strings.ToValidUTF8(input, ""))
	clean = strings.TrimSpace(clean)
	if maxLen <= 0 || len(clean) <= maxLen {
		return clean
	}

	cut := maxLen
	for cut > 0 && !utf8.RuneStart(clean[cut]) {
		cut--
	}
	return strings.TrimSpace(clean[:cut])
}
