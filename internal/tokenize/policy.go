package tokenize

// PolicyConfig controls lexical filtering after the core scan.
type PolicyConfig struct {
	EnableStopwords     bool `yaml:"enable_stopwords" json:"enable_stopwords"`
	KeepNumbers         bool `yaml:"keep_numbers" json:"keep_numbers"`
	DropCJKNoiseBigrams bool `yaml:"drop_cjk_noise_bigrams" json:"drop_cjk_noise_bigrams"`
}

// DefaultPolicyConfig enables every rule and keeps numerals.
func DefaultPolicyConfig() PolicyConfig {
	return PolicyConfig{
		EnableStopwords:     true,
		KeepNumbers:         true,
		DropCJKNoiseBigrams: true,
	}
}

// ApplyPolicy drops numerals (unless KeepNumbers), English and CJK
// stopwords, and CJK bigrams whose two characters are both noise characters.
// Survivors keep their order and, for Terms, their positions.
func ApplyPolicy[T Token](tokens []T, cfg PolicyConfig) []T {
	out := make([]T, 0, len(tokens))
	for _, tok := range tokens {
		text := textOf(tok)
		if text == "" {
			continue
		}
		if !cfg.KeepNumbers && IsNumeral(text) {
			continue
		}
		if cfg.EnableStopwords && isStopword(text, defaultEnglishStops, defaultCJKStops) {
			continue
		}
		if cfg.DropCJKNoiseBigrams && isNoiseBigram(text) {
			continue
		}
		out = append(out, tok)
	}
	return out
}

// isStopword applies each list only to tokens of its own script.
func isStopword(text string, english, cjk map[string]struct{}) bool {
	if isLowerLatin(text) {
		_, ok := english[text]
		return ok
	}
	if IsCJKToken(text) {
		_, ok := cjk[text]
		return ok
	}
	return false
}

func isNoiseBigram(text string) bool {
	runes := []rune(text)
	if len(runes) != 2 || !isCJK(runes[0]) || !isCJK(runes[1]) {
		return false
	}
	_, first := noiseCharSet[runes[0]]
	_, second := noiseCharSet[runes[1]]
	return first && second
}
