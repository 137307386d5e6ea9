package search

import (
	"strings"
	"unicode/utf8"

	"github.com/Aman-CERP/mixsearch/internal/chunk"
)

// MaxSnippetRunes bounds a snippet's length.
const MaxSnippetRunes = 160

// Snippet returns the first chunk of content containing one of terms, or
// fallback when none does. The result is at most MaxSnippetRunes runes.
func Snippet(content string, terms []string, fallback string) string {
	if content != "" && len(terms) > 0 {
		for _, c := range chunk.Split(content, chunk.DefaultConfig()) {
			lower := strings.ToLower(c)
			for _, term := range terms {
				if term != "" && strings.Contains(lower, term) {
					return truncateRunes(c, MaxSnippetRunes)
				}
			}
		}
	}
	return truncateRunes(fallback, MaxSnippetRunes)
}

func truncateRunes(s string, n int) string {
	r := []rune(strings.TrimSpace(s))
	if len(r) <= n {
		return string(r)
	}
	return string(r[:n-1]) + "…"
}

// snippetLead is how many runes of context SnippetAt keeps before a match.
const snippetLead = 24

// SnippetAt returns the text of content around byte offset at, starting at
// the enclosing line when it begins within snippetLead runes. Whitespace
// runs become single spaces. An offset outside content yields fallback.
func SnippetAt(content string, at int, fallback string) string {
	if at < 0 || at >= len(content) {
		return truncateRunes(fallback, MaxSnippetRunes)
	}
	for at > 0 && !utf8.RuneStart(content[at]) {
		at--
	}

	start := strings.LastIndexByte(content[:at], '\n') + 1
	prefix := ""
	if utf8.RuneCountInString(content[start:at]) > snippetLead {
		start = at
		for i := 0; i < snippetLead; i++ {
			_, size := utf8.DecodeLastRuneInString(content[:start])
			start -= size
		}
		prefix = "…"
	}

	return truncateRunes(prefix+strings.Join(strings.Fields(content[start:]), " "), MaxSnippetRunes)
}
