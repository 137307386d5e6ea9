package tokenize

import (
	"context"
	"log/slog"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"

	mserrors "github.com/Aman-CERP/mixsearch/internal/errors"
)

// NormalizeConfig controls text canonicalization.
type NormalizeConfig struct {
	// UnicodeForm is one of NFC, NFD, NFKC, NFKD. Empty skips the step.
	UnicodeForm string `yaml:"unicode_form" json:"unicode_form"`
	// LowerCase applies Unicode case folding.
	LowerCase bool `yaml:"lower_case" json:"lower_case"`
	// KeepNewlines preserves line breaks so the chunker can split on them.
	KeepNewlines bool `yaml:"keep_newlines" json:"keep_newlines"`
	// RemoveControlChars strips Cc and Cf runes. Tabs become spaces.
	RemoveControlChars bool `yaml:"remove_control_chars" json:"remove_control_chars"`
	// CollapseWhitespace folds whitespace runs into one space (or one
	// newline when a run contains a line break and KeepNewlines is set).
	CollapseWhitespace bool `yaml:"collapse_whitespace" json:"collapse_whitespace"`
	Trim               bool `yaml:"trim" json:"trim"`
}

// DefaultNormalizeConfig returns NFKC with every step enabled.
func DefaultNormalizeConfig() NormalizeConfig {
	return NormalizeConfig{
		UnicodeForm:        "NFKC",
		LowerCase:          true,
		KeepNewlines:       true,
		RemoveControlChars: true,
		CollapseWhitespace: true,
		Trim:               true,
	}
}

var lineEndings = strings.NewReplacer("\r\n", "\n", "\r", "\n")

// Normalize canonicalizes text. It never fails: an unsupported UnicodeForm
// is logged at debug level and that step is skipped.
func Normalize(text string, cfg NormalizeConfig) string {
	if text == "" {
		return ""
	}

	s := strings.ToValidUTF8(text, "")

	if cfg.UnicodeForm != "" {
		form, err := unicodeForm(cfg.UnicodeForm)
		if err != nil {
			slog.LogAttrs(context.Background(), slog.LevelDebug, "normalize_form_skipped", mserrors.LogAttrs(err)...)
		} else {
			s = form.String(s)
		}
	}

	s = lineEndings.Replace(s)

	if cfg.RemoveControlChars {
		s = stripControl(s, cfg.KeepNewlines)
	}
	if cfg.LowerCase {
		// A Caser holds state and must not be shared between goroutines.
		s = cases.Fold().String(s)
	}
	if cfg.CollapseWhitespace {
		s = collapseWhitespace(s, cfg.KeepNewlines)
	}
	if cfg.Trim {
		s = strings.TrimSpace(s)
	}
	return s
}

func unicodeForm(name string) (norm.Form, error) {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "NFC":
		return norm.NFC, nil
	case "NFD":
		return norm.NFD, nil
	case "NFKC":
		return norm.NFKC, nil
	case "NFKD":
		return norm.NFKD, nil
	}
	return 0, mserrors.New(mserrors.ErrCodeUnsupportedForm, "unsupported unicode form "+name, nil).
		WithDetail("form", name)
}

func stripControl(s string, keepNewlines bool) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r == '\n':
			if keepNewlines {
				b.WriteRune('\n')
			} else {
				b.WriteRune(' ')
			}
		case r == '\t':
			b.WriteRune(' ')
		case unicode.IsControl(r) || unicode.Is(unicode.Cf, r):
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

func collapseWhitespace(s string, keepNewlines bool) string {
	var b strings.Builder
	b.Grow(len(s))

	pendingSpace, pendingNewline := false, false
	flush := func() {
		switch {
		case pendingNewline:
			b.WriteRune('\n')
		case pendingSpace:
			b.WriteRune(' ')
		}
		pendingSpace, pendingNewline = false, false
	}

	for _, r := range s {
		switch {
		case r == '\n' && keepNewlines:
			pendingNewline = true
		case unicode.IsSpace(r):
			pendingSpace = true
		default:
			flush()
			b.WriteRune(r)
		}
	}
	flush()
	return b.String()
}
