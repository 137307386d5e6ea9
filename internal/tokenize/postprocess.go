package tokenize

import (
	"strings"
	"unicode"
)

// Term is a token with its offset in the document's raw token stream.
// Position is -1 when unknown.
type Term struct {
	Text     string `json:"term"`
	Position int    `json:"position"`
}

// Token is satisfied by plain string tokens and by positioned Terms. Filters
// that accept a Token slice return the same shape they were given.
type Token interface {
	string | Term
}

func textOf[T Token](t T) string {
	switch v := any(t).(type) {
	case string:
		return v
	case Term:
		return v.Text
	}
	return ""
}

func withText[T Token](t T, text string) T {
	switch v := any(t).(type) {
	case string:
		return any(text).(T)
	case Term:
		v.Text = text
		return any(v).(T)
	}
	return t
}

// PostConfig controls the final token clean-up.
type PostConfig struct {
	RemoveStopwords bool `yaml:"remove_stopwords" json:"remove_stopwords"`
	// Stopwords overrides the English list when RemoveStopwords is set.
	Stopwords         []string `yaml:"stopwords,omitempty" json:"stopwords,omitempty"`
	RemoveZhStopwords bool     `yaml:"remove_zh_stopwords" json:"remove_zh_stopwords"`
	// ZhStopwords overrides the CJK list when RemoveZhStopwords is set.
	ZhStopwords    []string `yaml:"zh_stopwords,omitempty" json:"zh_stopwords,omitempty"`
	MinTokenLength int      `yaml:"min_token_length" json:"min_token_length"`
	// MaxTokenLength of 0 disables the upper bound.
	MaxTokenLength int `yaml:"max_token_length" json:"max_token_length"`
	// MaxTokens of 0 keeps every token.
	MaxTokens       int  `yaml:"max_tokens" json:"max_tokens"`
	DropNumericOnly bool `yaml:"drop_numeric_only" json:"drop_numeric_only"`
	DropNoiseTokens bool `yaml:"drop_noise_tokens" json:"drop_noise_tokens"`
	// Dedupe keeps the first occurrence of each term. Off by default because
	// ranking needs the repeated occurrences.
	Dedupe bool `yaml:"dedupe" json:"dedupe"`
}

// DefaultPostConfig returns the post-processing applied by both modes.
func DefaultPostConfig() PostConfig {
	return PostConfig{
		MinTokenLength:  1,
		MaxTokenLength:  64,
		DropNoiseTokens: true,
	}
}

// noiseRunLength is the repeat count at which a token counts as noise, as in
// "aaaaaaa" or "=======".
const noiseRunLength = 7

// PostProcess trims and validates tokens, enforces length bounds, drops
// numeral-only and noise tokens when configured, removes stopwords per
// script, optionally deduplicates and finally truncates to MaxTokens.
func PostProcess[T Token](tokens []T, cfg PostConfig) []T {
	out := make([]T, 0, len(tokens))
	if len(tokens) == 0 {
		return out
	}

	var english, cjk map[string]struct{}
	if cfg.RemoveStopwords {
		english = defaultEnglishStops
		if len(cfg.Stopwords) > 0 {
			english = BuildStopWordMap(cfg.Stopwords)
		}
	}
	if cfg.RemoveZhStopwords {
		cjk = defaultCJKStops
		if len(cfg.ZhStopwords) > 0 {
			cjk = BuildStopWordMap(cfg.ZhStopwords)
		}
	}

	var seen map[string]struct{}
	if cfg.Dedupe {
		seen = make(map[string]struct{}, len(tokens))
	}

	for _, tok := range tokens {
		text := strings.TrimSpace(textOf(tok))
		if text == "" {
			continue
		}

		n := runeLen(text)
		if n < cfg.MinTokenLength || (cfg.MaxTokenLength > 0 && n > cfg.MaxTokenLength) {
			continue
		}
		if cfg.DropNumericOnly && IsNumeral(text) {
			continue
		}
		if cfg.DropNoiseTokens && isNoiseToken(text) {
			continue
		}
		if isStopword(text, english, cjk) {
			continue
		}
		if seen != nil {
			if _, dup := seen[text]; dup {
				continue
			}
			seen[text] = struct{}{}
		}

		out = append(out, withText(tok, text))
		if cfg.MaxTokens > 0 && len(out) >= cfg.MaxTokens {
			break
		}
	}
	return out
}

func isNoiseToken(text string) bool {
	if allRunes(text, func(r rune) bool { return unicode.IsPunct(r) || unicode.IsSymbol(r) }) {
		return true
	}

	var prev rune
	run := 0
	for _, r := range text {
		if r == prev {
			run++
		} else {
			prev, run = r, 1
		}
		if run >= noiseRunLength {
			return true
		}
	}
	return false
}
