package tokenize

import (
	"strings"
)

// CJKMode selects how CJK runs are cut into tokens.
type CJKMode string

const (
	// CJKSpan emits each CJK run as a single token.
	CJKSpan CJKMode = "span"
	// CJKChar emits every CJK character.
	CJKChar CJKMode = "char"
	// CJKBigram emits every overlapping two-character window, plus the
	// single characters when KeepCJKSingles is set.
	CJKBigram CJKMode = "bigram"
)

// ParseCJKMode returns the mode named by s, or false if s is unknown.
func ParseCJKMode(s string) (CJKMode, bool) {
	switch CJKMode(strings.ToLower(strings.TrimSpace(s))) {
	case CJKSpan:
		return CJKSpan, true
	case CJKChar:
		return CJKChar, true
	case CJKBigram:
		return CJKBigram, true
	}
	return "", false
}

// CoreConfig controls the single-pass mixed-script scan.
type CoreConfig struct {
	CJKMode        CJKMode `yaml:"cjk_mode" json:"cjk_mode"`
	KeepCJKSingles bool    `yaml:"keep_cjk_singles" json:"keep_cjk_singles"`
	LowerCaseLatin bool    `yaml:"lower_case_latin" json:"lower_case_latin"`
	// SplitCamel decomposes Latin runs at case and letter/digit transitions.
	SplitCamel bool `yaml:"split_camel" json:"split_camel"`
	// MinTokenLength applies to Latin components, in runes.
	MinTokenLength int `yaml:"min_token_length" json:"min_token_length"`
	// EmitJoinedLatin adds the whole run, lowercased and without
	// punctuation, next to its components.
	EmitJoinedLatin bool `yaml:"emit_joined_latin" json:"emit_joined_latin"`
	// EmitSplitLatin keeps every Latin token. When false, single letters,
	// 2-3 letter words off the allow-list and 1-2 digit numerals are dropped;
	// for decomposed runs the joined form carries recall.
	EmitSplitLatin bool `yaml:"emit_split_latin" json:"emit_split_latin"`
}

// DefaultCoreConfig returns the indexing configuration.
func DefaultCoreConfig() CoreConfig {
	return CoreConfig{
		CJKMode:         CJKBigram,
		KeepCJKSingles:  true,
		LowerCaseLatin:  true,
		SplitCamel:      true,
		MinTokenLength:  1,
		EmitJoinedLatin: true,
		EmitSplitLatin:  false,
	}
}

// shortAllowList holds 2-3 letter words that survive the post-scan filter.
var shortAllowList = map[string]struct{}{
	"ai": {}, "ml": {}, "ui": {}, "ux": {}, "id": {}, "io": {}, "os": {},
	"db": {}, "api": {}, "sql": {}, "cpu": {}, "gpu": {}, "app": {}, "web": {},
	"llm": {}, "nlp": {}, "pdf": {}, "csv": {},
}

type runKind int

const (
	runNone runKind = iota
	runLatin
	runCJK
)

// rawToken is a scan result before the post-scan filter.
type rawToken struct {
	text string
	// joined marks the whole-run form, which the filter never drops.
	joined bool
}

type scanner struct {
	cfg  CoreConfig
	kind runKind
	buf  []rune
	out  []rawToken
}

// CoreTokenize scans one chunk left to right and returns its raw tokens in
// emission order. Latin runs are flushed through camel/digit decomposition;
// CJK runs are cut according to cfg.CJKMode.
func CoreTokenize(chunk string, cfg CoreConfig) []string {
	tokens := []string{}
	if chunk == "" {
		return tokens
	}

	s := &scanner{cfg: cfg}
	runes := []rune(chunk)

	for i, r := range runes {
		switch {
		case isCJK(r):
			if s.kind != runCJK {
				s.flush()
				s.kind = runCJK
			}
			s.buf = append(s.buf, r)
		case isWordRune(r):
			if s.kind != runLatin {
				s.flush()
				s.kind = runLatin
			}
			s.buf = append(s.buf, r)
		case s.kind == runLatin && isConnector(r) && i+1 < len(runes) && isWordRune(runes[i+1]):
			s.buf = append(s.buf, r)
		default:
			s.flush()
		}
	}
	s.flush()

	for _, t := range s.out {
		if !cfg.EmitSplitLatin && dropAfterScan(t) {
			continue
		}
		tokens = append(tokens, t.text)
	}
	return tokens
}

func (s *scanner) flush() {
	if len(s.buf) > 0 {
		switch s.kind {
		case runLatin:
			s.flushLatin()
		case runCJK:
			s.flushCJK()
		}
	}
	s.buf = s.buf[:0]
	s.kind = runNone
}

func (s *scanner) flushLatin() {
	parts := strings.FieldsFunc(string(s.buf), func(r rune) bool {
		return !isWordRune(r)
	})

	var components []string
	for _, p := range parts {
		if s.cfg.SplitCamel {
			components = append(components, SplitCamelCase(p)...)
		} else {
			components = append(components, p)
		}
	}

	split := len(components) > 1
	for _, c := range components {
		if s.cfg.LowerCaseLatin {
			c = strings.ToLower(c)
		}
		if runeLen(c) < s.cfg.MinTokenLength {
			continue
		}
		s.out = append(s.out, rawToken{text: c})
	}

	if s.cfg.EmitJoinedLatin && split {
		s.out = append(s.out, rawToken{text: strings.ToLower(strings.Join(parts, "")), joined: true})
	}
}

func (s *scanner) flushCJK() {
	run := s.buf
	if len(run) == 1 {
		s.out = append(s.out, rawToken{text: string(run)})
		return
	}

	switch s.cfg.CJKMode {
	case CJKSpan:
		s.out = append(s.out, rawToken{text: string(run)})
	case CJKChar:
		for _, r := range run {
			s.out = append(s.out, rawToken{text: string(r)})
		}
	default:
		for i, r := range run {
			if s.cfg.KeepCJKSingles {
				s.out = append(s.out, rawToken{text: string(r)})
			}
			if i+1 < len(run) {
				s.out = append(s.out, rawToken{text: string(run[i : i+2])})
			}
		}
	}
}

// dropAfterScan drops single-rune Latin tokens, 1-2 digit numerals and 2-3
// letter words unless allow-listed. Joined forms always survive.
func dropAfterScan(t rawToken) bool {
	if t.joined {
		return false
	}
	if !IsLatinToken(t.text) {
		return false
	}

	n := runeLen(t.text)
	if n == 1 {
		return true
	}
	if IsNumeral(t.text) {
		return n <= 2
	}
	if n <= 3 && isLatinLetters(t.text) {
		_, ok := shortAllowList[strings.ToLower(t.text)]
		return !ok
	}
	return false
}
