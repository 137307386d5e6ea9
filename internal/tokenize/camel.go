package tokenize

import (
	"unicode"
)

// SplitCamelCase splits an alphanumeric word at case and letter/digit
// transitions. Acronyms stay together.
// Examples:
//   - "VideoEditEngine2026" -> ["Video", "Edit", "Engine", "2026"]
//   - "parseHTTPRequest" -> ["parse", "HTTP", "Request"]
//   - "CSC207" -> ["CSC", "207"]
func SplitCamelCase(s string) []string {
	if s == "" {
		return []string{}
	}

	runes := []rune(s)
	var parts []string
	start := 0

	for i := 1; i < len(runes); i++ {
		prev, cur := runes[i-1], runes[i]

		split := unicode.IsDigit(prev) != unicode.IsDigit(cur)
		if !split && unicode.IsUpper(cur) {
			nextIsLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
			split = unicode.IsLower(prev) || (unicode.IsUpper(prev) && nextIsLower)
		}

		if split {
			parts = append(parts, string(runes[start:i]))
			start = i
		}
	}

	return append(parts, string(runes[start:]))
}
