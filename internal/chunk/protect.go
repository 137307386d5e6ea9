package chunk

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	urlPattern   = regexp.MustCompile(`(?i)\b(?:https?://|ftp://|www\.)[^\s<>"'` + "`" + `，。！？、；：（）]+`)
	emailPattern = regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9\-]+(?:\.[A-Za-z0-9\-]+)*\.[A-Za-z]{2,}`)

	placeholderPattern = regexp.MustCompile(placeholderOpen + "([0-9]+)" + placeholderClose)
)

const (
	placeholderOpen  = "\uE000"
	placeholderClose = "\uE001"
)

// trailingPunct is stripped from a URL match so "see https://a.io/x." keeps
// the full stop as a sentence terminal.
const trailingPunct = ".,;:!?)]}'\""

// protector swaps URL and e-mail spans for private-use placeholders that none
// of the splitters cut on, and swaps them back afterwards.
type protector struct {
	spans []string
}

func newProtector() *protector {
	return &protector{}
}

func (p *protector) protect(text string) string {
	text = p.replace(text, emailPattern, false)
	return p.replace(text, urlPattern, true)
}

func (p *protector) replace(text string, re *regexp.Regexp, trimTrailing bool) string {
	locs := re.FindAllStringIndex(text, -1)
	if len(locs) == 0 {
		return text
	}

	var b strings.Builder
	last := 0
	for _, loc := range locs {
		start, end := loc[0], loc[1]
		if trimTrailing {
			for end > start && strings.ContainsRune(trailingPunct, rune(text[end-1])) {
				end--
			}
		}
		if end <= start {
			continue
		}
		b.WriteString(text[last:start])
		b.WriteString(p.placeholder(text[start:end]))
		last = end
	}
	b.WriteString(text[last:])
	return b.String()
}

func (p *protector) placeholder(span string) string {
	p.spans = append(p.spans, span)
	return placeholderOpen + strconv.Itoa(len(p.spans)-1) + placeholderClose
}

// restore undoes protect. A URL span may itself contain an e-mail
// placeholder, hence the second pass.
func (p *protector) restore(chunk string) string {
	for pass := 0; pass < 2 && strings.Contains(chunk, placeholderOpen); pass++ {
		chunk = placeholderPattern.ReplaceAllStringFunc(chunk, func(m string) string {
			sub := placeholderPattern.FindStringSubmatch(m)
			i, err := strconv.Atoi(sub[1])
			if err != nil || i >= len(p.spans) {
				return m
			}
			return p.spans[i]
		})
	}
	return chunk
}
