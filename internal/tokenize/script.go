package tokenize

import (
	"unicode"
	"unicode/utf8"
)

// isCJK reports runes tokenized by character rather than by word.
func isCJK(r rune) bool {
	return unicode.In(r, unicode.Han, unicode.Hiragana, unicode.Katakana, unicode.Hangul)
}

// isWordRune reports letters, digits and combining marks outside CJK.
// Everything in this class is tokenized as a "Latin" run, which also covers
// Cyrillic, Greek and other space-delimited scripts.
func isWordRune(r rune) bool {
	if isCJK(r) {
		return false
	}
	return unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsMark(r)
}

// isConnector reports punctuation that may sit inside a Latin run, as in
// "don't", "e-mail", "snake_case" or "node.js".
func isConnector(r rune) bool {
	switch r {
	case '\'', '’', '-', '_', '.':
		return true
	}
	return false
}

func allRunes(s string, pred func(rune) bool) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !pred(r) {
			return false
		}
	}
	return true
}

// IsNumeral reports tokens made only of digits.
func IsNumeral(s string) bool {
	return allRunes(s, unicode.IsDigit)
}

// IsCJKToken reports tokens made only of CJK runes.
func IsCJKToken(s string) bool {
	return allRunes(s, isCJK)
}

// IsLatinToken reports tokens made only of non-CJK word runes.
func IsLatinToken(s string) bool {
	return allRunes(s, isWordRune)
}

func isLatinLetters(s string) bool {
	return allRunes(s, func(r rune) bool {
		return isWordRune(r) && !unicode.IsDigit(r)
	})
}

func isLowerLatin(s string) bool {
	return allRunes(s, func(r rune) bool {
		return isWordRune(r) && !unicode.IsDigit(r) && !unicode.IsUpper(r)
	})
}

func runeLen(s string) int {
	return utf8.RuneCountInString(s)
}
