// Package chunk splits normalized text into sentence- and structure-bounded
// chunks for the tokenizer, and extracts plain text from Markdown sources.
package chunk

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Config controls how text is split.
type Config struct {
	// KeepNewlines treats every line as its own chunk before further splitting.
	KeepNewlines bool `yaml:"keep_newlines" json:"keep_newlines"`
	// SplitSentences cuts after terminal punctuation.
	SplitSentences bool `yaml:"split_sentences" json:"split_sentences"`
	// MinChunkLength drops chunks shorter than this many runes.
	MinChunkLength int `yaml:"min_chunk_length" json:"min_chunk_length"`
	// SplitOnSeparators cuts on structural separators such as / | , ; ( ).
	SplitOnSeparators bool `yaml:"split_on_separators" json:"split_on_separators"`
	// ProtectPatterns keeps URLs and e-mail addresses intact while splitting.
	ProtectPatterns bool `yaml:"protect_patterns" json:"protect_patterns"`
}

// DefaultConfig returns the chunking used for both indexing and queries.
func DefaultConfig() Config {
	return Config{
		KeepNewlines:      true,
		SplitSentences:    true,
		MinChunkLength:    1,
		SplitOnSeparators: true,
		ProtectPatterns:   true,
	}
}

// Split returns the chunks of text in their original order. Empty input
// yields an empty, non-nil slice.
func Split(text string, cfg Config) []string {
	chunks := []string{}
	if strings.TrimSpace(text) == "" {
		return chunks
	}

	var shield *protector
	if cfg.ProtectPatterns {
		shield = newProtector()
		text = shield.protect(text)
	}

	pieces := []string{text}
	if cfg.KeepNewlines {
		pieces = strings.Split(text, "\n")
	}
	if cfg.SplitSentences {
		pieces = flatMap(pieces, splitSentences)
	}
	if cfg.SplitOnSeparators {
		pieces = flatMap(pieces, splitSeparators)
	}

	for _, p := range pieces {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if shield != nil {
			p = shield.restore(p)
		}
		if utf8.RuneCountInString(p) < cfg.MinChunkLength {
			continue
		}
		chunks = append(chunks, p)
	}
	return chunks
}

func flatMap(in []string, fn func(string) []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		out = append(out, fn(s)...)
	}
	return out
}

// isCJKTerminal reports sentence-ending marks that split regardless of what
// follows, since CJK text has no space after a sentence.
func isCJKTerminal(r rune) bool {
	switch r {
	case '。', '！', '？', '…', '｡':
		return true
	}
	return false
}

func isLatinTerminal(r rune) bool {
	return r == '.' || r == '!' || r == '?'
}

// splitSentences cuts after a run of terminal punctuation. Latin terminals
// (including "...") only end a sentence when followed by whitespace or the end
// of the text, so "3.14" and "v1.2" stay whole.
func splitSentences(s string) []string {
	runes := []rune(s)
	var out []string
	start := 0

	for i := 0; i < len(runes); i++ {
		r := runes[i]
		if !isCJKTerminal(r) && !isLatinTerminal(r) {
			continue
		}

		j := i
		cjk := false
		for j < len(runes) && (isCJKTerminal(runes[j]) || isLatinTerminal(runes[j])) {
			if isCJKTerminal(runes[j]) {
				cjk = true
			}
			j++
		}

		if cjk || j == len(runes) || unicode.IsSpace(runes[j]) {
			out = append(out, string(runes[start:j]))
			start = j
		}
		i = j - 1
	}

	if start < len(runes) {
		out = append(out, string(runes[start:]))
	}
	return out
}

func isSeparator(r rune) bool {
	switch r {
	case '/', '\\', '|', ',', '_', ':', ';', '(', ')', '[', ']', '{', '}', '<', '>':
		return true
	}
	return false
}

func isDash(r rune) bool {
	return r == '-' || r == '—' || r == '–' || r == '―'
}

// splitSeparators cuts on single separator runes and on runs of two or more
// dashes. A lone hyphen stays, so "e-mail" is not split.
func splitSeparators(s string) []string {
	runes := []rune(s)
	var out []string
	start := 0

	for i := 0; i < len(runes); i++ {
		if isSeparator(runes[i]) {
			out = append(out, string(runes[start:i]))
			start = i + 1
			continue
		}
		if !isDash(runes[i]) {
			continue
		}

		j := i
		for j < len(runes) && isDash(runes[j]) {
			j++
		}
		if j-i >= 2 || runes[i] != '-' {
			out = append(out, string(runes[start:i]))
			start = j
		}
		i = j - 1
	}

	out = append(out, string(runes[start:]))
	return out
}
